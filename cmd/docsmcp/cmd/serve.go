package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/docsmcp/docsmcp/internal/docmodel"
	"github.com/docsmcp/docsmcp/internal/embedprovider"
	"github.com/docsmcp/docsmcp/internal/manifestcfg"
	"github.com/docsmcp/docsmcp/internal/mcpserver"
	"github.com/docsmcp/docsmcp/internal/queryengine"
	"github.com/docsmcp/docsmcp/internal/tablestore"
	"github.com/docsmcp/docsmcp/pkg/version"
)

func newServeCmd() *cobra.Command {
	var out string
	var apiKey string
	var searchDesc string
	var getDocDesc string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve search_docs and get_doc over MCP on stdio",
		Long: `serve opens a previously built index and exposes it to MCP clients
(Claude Code, Claude Desktop, and other assistants) over stdio.

Run 'docsmcp build' first to create the index this command serves.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ambient, err := manifestcfg.Load(".")
			if err != nil {
				return fmt.Errorf("load docsmcp.yaml: %w", err)
			}
			if out == "" {
				out = ambient.Out
			}
			if out == "" {
				out = ".docsmcp-index"
			}

			return runServe(cmd.Context(), cmd, out, ambient, apiKey, searchDesc, getDocDesc)
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "Index directory (default: docsmcp.yaml's out, or .docsmcp-index)")
	cmd.Flags().StringVar(&apiKey, "embedding-api-key", "", "Embedding provider API key (falls back to OPENAI_API_KEY)")
	cmd.Flags().StringVar(&searchDesc, "tool-description-search", "", "Override the search_docs tool description")
	cmd.Flags().StringVar(&getDocDesc, "tool-description-get-doc", "", "Override the get_doc tool description")
	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, out string, ambient *manifestcfg.Config, apiKey, searchDesc, getDocDesc string) error {
	dbPath := filepath.Join(out, indexDBName)
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("no index found at %s: run 'docsmcp build --out %s' first", dbPath, out)
	}

	metaRaw, err := os.ReadFile(filepath.Join(out, metaSidecarName))
	if err != nil {
		return fmt.Errorf("read metadata.json: %w", err)
	}
	var meta docmodel.CorpusMetadata
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		return fmt.Errorf("parse metadata.json: %w", err)
	}

	store, err := tablestore.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer store.Close()

	var queryProvider embedprovider.Provider
	if meta.Embedding != nil && meta.Embedding.Provider != "" && meta.Embedding.Provider != "none" {
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		queryProvider, err = embedprovider.New(embedprovider.Config{
			Provider:   meta.Embedding.Provider,
			Model:      meta.Embedding.Model,
			Dimensions: meta.Embedding.Dimensions,
			APIKey:     apiKey,
			BaseURL:    ambient.Embedding.BaseURL,
		})
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: query-time embedding provider unavailable, vector search disabled: %v\n", err)
			queryProvider = nil
		}
	}

	engine := queryengine.New(store, queryengine.Options{
		QueryProvider: queryProvider,
		Taxonomy:      meta.Taxonomy,
	})

	if searchDesc == "" {
		searchDesc = meta.ToolDescriptions["search_docs"]
	}
	if getDocDesc == "" {
		getDocDesc = meta.ToolDescriptions["get_doc"]
	}

	srv, err := mcpserver.New(engine, mcpserver.Config{
		Name:                   "docsmcp",
		Version:                version.Version,
		SearchDocsDescription:  searchDesc,
		GetDocDescription:      getDocDesc,
	})

	if err != nil {
		return fmt.Errorf("construct mcp server: %w", err)
	}

	return srv.Serve(ctx)
}
