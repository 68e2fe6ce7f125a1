package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/docsmcp/docsmcp/internal/watcher"
)

// runBuildWatch rebuilds the index once, then watches docs-dir and
// rebuilds on every batch of debounced changes until ctx is cancelled.
func runBuildWatch(ctx context.Context, cmd *cobra.Command, f buildFlags) error {
	if _, err := runBuild(ctx, cmd, f); err != nil {
		return fmt.Errorf("initial build: %w", err)
	}

	w, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Start(ctx, f.docsDir)
	}()
	defer func() { _ = w.Stop() }()

	fmt.Fprintf(cmd.OutOrStdout(), "watching %s for changes (Ctrl-C to stop)\n", f.docsDir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err != nil && err != context.Canceled {
				return fmt.Errorf("watch %s: %w", f.docsDir, err)
			}
			return nil
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			slog.Info("docs change detected, rebuilding", slog.Int("events", len(batch)))
			if _, err := runBuild(ctx, cmd, f); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "rebuild failed: %v\n", err)
			}
		case err, ok := <-w.Errors():
			if !ok {
				continue
			}
			slog.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}
