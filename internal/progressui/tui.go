package progressui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer renders build progress with bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *buildModel
	tracker *ProgressTracker
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
}

// NewTUIRenderer builds a TUI renderer. It fails if Output is not a TTY.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}

	tracker := NewProgressTracker()
	model := newBuildModel(tracker, cfg.ProjectDir)
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}

	return &TUIRenderer{cfg: cfg, tracker: tracker, model: model, done: make(chan struct{})}, nil
}

func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	_, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	var opts []tea.ProgramOption
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	opts = append(opts, tea.WithAltScreen())

	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event.Stage != r.tracker.Stats().Stage {
		r.tracker.SetStage(event.Stage, event.Total)
	}
	r.tracker.Update(event.Current, event.CurrentFile)
	if r.program != nil {
		r.program.Send(progressUpdateMsg(event))
	}
}

func (r *TUIRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracker.AddError(event)
	if r.program != nil {
		r.program.Send(errorMsg(event))
	}
}

func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracker.SetStage(StageComplete, 0)
	if r.program != nil {
		r.program.Send(completeMsg(stats))
	}
}

func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
	if r.program != nil {
		r.program.Quit()
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
		}
	}
	return nil
}

type progressUpdateMsg ProgressEvent
type errorMsg ErrorEvent
type completeMsg CompletionStats
type tickMsg time.Time

// buildModel is the bubbletea model backing the build progress screen.
type buildModel struct {
	tracker     *ProgressTracker
	width       int
	quitting    bool
	complete    bool
	stats       CompletionStats
	spinner     spinner.Model
	progressBar progress.Model
	styles      Styles
	projectDir  string
}

func newBuildModel(tracker *ProgressTracker, projectDir string) *buildModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorBlue))

	p := progress.New(
		progress.WithSolidFill(ColorBlue),
		progress.WithWidth(50),
		progress.WithoutPercentage(),
	)

	return &buildModel{
		tracker:     tracker,
		spinner:     s,
		progressBar: p,
		styles:      DefaultStyles(),
		width:       80,
		projectDir:  projectDir,
	}
}

func (m *buildModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *buildModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progressBar.Width = msg.Width - 20
		if m.progressBar.Width < 20 {
			m.progressBar.Width = 20
		}
	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit
	case tickMsg:
		return m, tickCmd()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *buildModel) View() string {
	if m.quitting {
		return "Cancelled.\n"
	}
	if m.complete {
		return m.renderComplete()
	}

	width := m.width - 4
	if width < 40 {
		width = 40
	}

	stats := m.tracker.Stats()
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), m.styles.Active.Render(stats.Stage.String()))
	if stats.Total > 0 {
		pct := float64(stats.Current) / float64(stats.Total)
		fmt.Fprintf(&b, "%s %d/%d\n", m.progressBar.ViewAs(pct), stats.Current, stats.Total)
	}
	if stats.CurrentFile != "" {
		fmt.Fprintf(&b, "%s\n", m.styles.Dim.Render(stats.CurrentFile))
	}
	if stats.Errors > 0 || stats.Warnings > 0 {
		fmt.Fprintf(&b, "%s %s\n",
			m.styles.Error.Render(fmt.Sprintf("%d errors", stats.Errors)),
			m.styles.Warning.Render(fmt.Sprintf("%d warnings", stats.Warnings)))
	}

	title := "docsmcp build"
	if m.projectDir != "" {
		title = fmt.Sprintf("docsmcp build • %s", m.projectDir)
	}
	return m.styles.Panel.Width(width).Render(m.styles.Header.Render(title) + "\n\n" + b.String())
}

func (m *buildModel) renderComplete() string {
	s := m.stats
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d files, %d chunks indexed in %s\n",
		m.styles.Success.Render("Done."), s.Files, s.Chunks, s.Duration.Round(100*time.Millisecond))
	if s.CacheTotal > 0 {
		fmt.Fprintf(&b, "Embedding cache: %d/%d hits\n", s.CacheHits, s.CacheTotal)
	}
	if s.Errors > 0 || s.Warnings > 0 {
		fmt.Fprintf(&b, "%d errors, %d warnings\n", s.Errors, s.Warnings)
	}
	if s.Embedding.Provider != "" {
		fmt.Fprintf(&b, "Embedding: %s (%s, %d dims)\n", s.Embedding.Provider, s.Embedding.Model, s.Embedding.Dimensions)
	}
	return b.String()
}
