// Package progressui provides terminal progress and status display for
// an index build.
package progressui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage represents a build stage.
type Stage int

const (
	StageScanning Stage = iota
	StageChunking
	StageEmbedding
	StageIndexing
	StagePublishing
	StageComplete
)

func (s Stage) String() string {
	switch s {
	case StageScanning:
		return "Scanning"
	case StageChunking:
		return "Chunking"
	case StageEmbedding:
		return "Embedding"
	case StageIndexing:
		return "Indexing"
	case StagePublishing:
		return "Publishing"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

func (s Stage) Icon() string {
	switch s {
	case StageScanning:
		return "SCAN"
	case StageChunking:
		return "CHUNK"
	case StageEmbedding:
		return "EMBED"
	case StageIndexing:
		return "INDEX"
	case StagePublishing:
		return "PUBLISH"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent reports a single progress update.
type ProgressEvent struct {
	Stage       Stage
	Current     int
	Total       int
	CurrentFile string
	Message     string
}

// ErrorEvent reports an error or warning during a build.
type ErrorEvent struct {
	File   string
	Err    error
	IsWarn bool
}

// StageTimings tracks duration spent in each build stage.
type StageTimings struct {
	Scan    time.Duration
	Chunk   time.Duration
	Embed   time.Duration
	Index   time.Duration
	Publish time.Duration
}

// EmbeddingInfo summarizes the embedding provider used for a build.
type EmbeddingInfo struct {
	Provider   string
	Model      string
	Dimensions int
}

// CompletionStats summarizes a finished build.
type CompletionStats struct {
	Files      int
	Chunks     int
	CacheHits  int
	CacheTotal int
	Duration   time.Duration
	Errors     int
	Warnings   int
	Stages     StageTimings
	Embedding  EmbeddingInfo
}

// Renderer displays build progress.
type Renderer interface {
	Start(ctx context.Context) error
	UpdateProgress(event ProgressEvent)
	AddError(event ErrorEvent)
	Complete(stats CompletionStats)
	Stop() error
}

// Config configures a Renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	ProjectDir string
}

// ConfigOption modifies a Config.
type ConfigOption func(*Config)

func WithForcePlain(force bool) ConfigOption { return func(c *Config) { c.ForcePlain = force } }
func WithNoColor(noColor bool) ConfigOption  { return func(c *Config) { c.NoColor = noColor } }
func WithProjectDir(dir string) ConfigOption { return func(c *Config) { c.ProjectDir = dir } }

func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer picks a TUI renderer for interactive terminals and a plain
// renderer for pipes, CI, or when plain output is forced.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}

	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
