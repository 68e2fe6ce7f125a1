package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docsmcp/docsmcp/internal/docmodel"
	"github.com/docsmcp/docsmcp/internal/manifest"
)

var headingPattern = regexp.MustCompile(`^(#{1,3})\s+\S`)

type headingCounts struct {
	h1, h2, h3 int
}

// countHeadings counts ATX h1/h2/h3 headings in markdown, skipping
// fenced code blocks.
func countHeadings(markdown string) headingCounts {
	var counts headingCounts
	inFence := false
	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		m := headingPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		switch len(m[1]) {
		case 1:
			counts.h1++
		case 2:
			counts.h2++
		case 3:
			counts.h3++
		}
	}
	return counts
}

// chunkByForCounts applies the heading heuristic: h3 if there are at
// least 6 h3 headings and at least twice as many h3 as h2; else h2 if
// there are at least 2 h2 headings; else h1 if at least 2; else h3 if
// at least 2; else fall back to whole-file chunking.
func chunkByForCounts(c headingCounts) docmodel.ChunkBy {
	switch {
	case c.h3 >= 6 && c.h3 >= 2*c.h2:
		return docmodel.ChunkByH3
	case c.h2 >= 2:
		return docmodel.ChunkByH2
	case c.h1 >= 2:
		return docmodel.ChunkByH1
	case c.h3 >= 2:
		return docmodel.ChunkByH3
	default:
		return docmodel.ChunkByFile
	}
}

func newFixCmd() *cobra.Command {
	var docsDir string
	var jsonOutput bool
	var write bool

	cmd := &cobra.Command{
		Use:   "fix",
		Short: "Synthesize a baseline manifest from heading heuristics",
		Long: `fix scans every Markdown file under docs-dir, counts its h1/h2/h3
headings, and derives a recommended chunk_by strategy per file. The
most common recommendation becomes the manifest's root default;
every file whose recommendation differs becomes a path override.

By default the result is only printed. Pass --write to save it as
.docs-mcp.json in docs-dir.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := runFix(docsDir)
			if err != nil {
				return err
			}

			if write {
				path := filepath.Join(docsDir, manifest.FileName)
				raw, err := json.MarshalIndent(m, "", "  ")
				if err != nil {
					return fmt.Errorf("marshal manifest: %w", err)
				}
				if err := os.WriteFile(path, raw, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
				return nil
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(m)
			}
			printFixHuman(cmd, m)
			return nil
		},
	}

	cmd.Flags().StringVar(&docsDir, "docs-dir", "docs", "Directory containing the Markdown corpus")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the synthesized manifest as JSON")
	cmd.Flags().BoolVar(&write, "write", false, "Write the manifest to docs-dir/.docs-mcp.json")
	return cmd
}

func runFix(docsDir string) (*docmodel.Manifest, error) {
	relPaths, err := walkMarkdownFiles(docsDir)
	if err != nil {
		return nil, err
	}

	recommended := make(map[string]docmodel.ChunkBy, len(relPaths))
	tally := map[docmodel.ChunkBy]int{}
	for _, rel := range relPaths {
		raw, err := os.ReadFile(filepath.Join(docsDir, rel))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", rel, err)
		}
		chunkBy := chunkByForCounts(countHeadings(string(raw)))
		recommended[rel] = chunkBy
		tally[chunkBy]++
	}

	def := pickDefault(tally)

	var overridePaths []string
	for rel, chunkBy := range recommended {
		if chunkBy != def {
			overridePaths = append(overridePaths, rel)
		}
	}
	sort.Strings(overridePaths)

	overrides := make([]docmodel.ManifestOverride, 0, len(overridePaths))
	for _, rel := range overridePaths {
		overrides = append(overrides, docmodel.ManifestOverride{
			Pattern:  rel,
			Strategy: &docmodel.ChunkingStrategy{ChunkBy: recommended[rel]},
		})
	}

	return &docmodel.Manifest{
		Version:   "1",
		Strategy:  &docmodel.ChunkingStrategy{ChunkBy: def},
		Overrides: overrides,
	}, nil
}

// pickDefault returns the most common chunk_by value, breaking ties
// h2 > h1 > h3 > file.
func pickDefault(tally map[docmodel.ChunkBy]int) docmodel.ChunkBy {
	order := []docmodel.ChunkBy{docmodel.ChunkByH2, docmodel.ChunkByH1, docmodel.ChunkByH3, docmodel.ChunkByFile}
	best := docmodel.ChunkByH2
	bestCount := -1
	for _, candidate := range order {
		if n := tally[candidate]; n > bestCount {
			bestCount = n
			best = candidate
		}
	}
	return best
}

func printFixHuman(cmd *cobra.Command, m *docmodel.Manifest) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "default chunk_by: %s\n", m.Strategy.ChunkBy)
	if len(m.Overrides) == 0 {
		fmt.Fprintln(out, "no per-file overrides needed")
		return
	}
	fmt.Fprintf(out, "%d override(s):\n", len(m.Overrides))
	for _, o := range m.Overrides {
		fmt.Fprintf(out, "  %s: %s\n", o.Pattern, o.Strategy.ChunkBy)
	}
}
