package progressui

import "github.com/charmbracelet/lipgloss"

// Color palette: blue accent theme.
const (
	ColorBlue     = "33"
	ColorBlueDim  = "24"
	ColorWhite    = "255"
	ColorGray     = "245"
	ColorDarkGray = "238"
	ColorRed      = "196"
	ColorYellow   = "220"
)

// Styles holds the styled components used by the TUI renderer.
type Styles struct {
	Header  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Dim     lipgloss.Style
	Stage   lipgloss.Style
	Active  lipgloss.Style
	Panel   lipgloss.Style
	Label   lipgloss.Style
}

func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorBlue)),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorBlue)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Stage:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorBlueDim)),
		Active:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorBlue)),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorDarkGray)).
			Padding(0, 1),
		Label: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
	}
}

func NoColorStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Header: plain.Bold(true), Success: plain, Warning: plain, Error: plain,
		Dim: plain, Stage: plain, Active: plain.Bold(true),
		Panel: lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1),
		Label: plain,
	}
}
