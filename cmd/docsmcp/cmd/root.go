// Package cmd provides the CLI commands for docsmcp.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/docsmcp/docsmcp/internal/logging"
	"github.com/docsmcp/docsmcp/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the docsmcp CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docsmcp",
		Short: "Hybrid search index over a Markdown documentation corpus",
		Long: `docsmcp builds a hybrid lexical/semantic search index over a tree of
Markdown documentation and serves it over MCP for AI coding assistants.

Run 'docsmcp build --docs-dir <path>' to index a corpus, then
'docsmcp serve' to expose search_docs and get_doc over stdio.`,
		Version: version.Version,
	}

	cmd.SetVersionTemplate("docsmcp version {{.Version}}\n")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.docsmcp/logs/")
	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newBuildCmd())
	cmd.AddCommand(newFixCmd())
	cmd.AddCommand(newStatCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
