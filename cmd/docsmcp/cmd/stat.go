package cmd

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/docsmcp/docsmcp/internal/docmodel"
	"github.com/docsmcp/docsmcp/internal/embedprovider"
	"github.com/docsmcp/docsmcp/internal/manifestcfg"
	"github.com/docsmcp/docsmcp/internal/tablestore"
)

type indexStat struct {
	Out              string                 `json:"out"`
	Files            int                    `json:"files"`
	Chunks           int                    `json:"chunks"`
	VectorChunks     int                    `json:"vector_chunks"`
	IndexedAt        string                 `json:"indexed_at"`
	IndexProvider    string                 `json:"index_provider"`
	IndexModel       string                 `json:"index_model"`
	IndexDimensions  int                    `json:"index_dimensions"`
	CurrentProvider  string                 `json:"current_provider"`
	CurrentModel     string                 `json:"current_model"`
	CurrentDimension int                    `json:"current_dimensions"`
	Compatible       bool                   `json:"compatible"`
	Taxonomy         map[string]int         `json:"taxonomy_values"`
}

func newStatCmd() *cobra.Command {
	var out string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stat",
		Short: "Show index configuration and statistics",
		Long: `Display the size, embedding configuration, and vector coverage of a
built index, and check it for compatibility with the currently configured
embedding provider.`,
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

			stat, err := runStat(out, ambient)
			if err != nil {
				return err
			}
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stat)
			}
			printStatHuman(cmd, stat)
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "Index directory (default: docsmcp.yaml's out, or .docsmcp-index)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runStat(out string, ambient *manifestcfg.Config) (indexStat, error) {
	dbPath := filepath.Join(out, indexDBName)
	if _, err := os.Stat(dbPath); err != nil {
		return indexStat{}, fmt.Errorf("no index found at %s: run 'docsmcp build --out %s' first", dbPath, out)
	}

	metaRaw, err := os.ReadFile(filepath.Join(out, metaSidecarName))
	if err != nil {
		return indexStat{}, fmt.Errorf("read metadata.json: %w", err)
	}
	var meta docmodel.CorpusMetadata
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		return indexStat{}, fmt.Errorf("parse metadata.json: %w", err)
	}

	store, err := tablestore.Open(dbPath)
	if err != nil {
		return indexStat{}, fmt.Errorf("open index: %w", err)
	}
	defer store.Close()

	var chunkCount, vectorCount int
	row := store.DB().QueryRow(fmt.Sprintf("SELECT COUNT(*), SUM(has_vector) FROM %s", tablestore.Table))
	var vectorCountNull sql.NullInt64
	if err := row.Scan(&chunkCount, &vectorCountNull); err != nil {
		return indexStat{}, fmt.Errorf("count chunks: %w", err)
	}
	vectorCount = int(vectorCountNull.Int64)

	fingerprints, err := store.FileFingerprints()
	if err != nil {
		return indexStat{}, fmt.Errorf("list files: %w", err)
	}

	stat := indexStat{
		Out:             out,
		Files:           len(fingerprints),
		Chunks:          chunkCount,
		VectorChunks:    vectorCount,
		IndexedAt:       meta.Stats.IndexedAt,
		Taxonomy:        map[string]int{},
		Compatible:      true,
	}
	if meta.Embedding != nil {
		stat.IndexProvider = meta.Embedding.Provider
		stat.IndexModel = meta.Embedding.Model
		stat.IndexDimensions = meta.Embedding.Dimensions
	}
	for key, t := range meta.Taxonomy {
		stat.Taxonomy[key] = len(t.Values)
	}

	currentCfg := embedprovider.Config{
		Provider:   ambient.Embedding.Provider,
		Model:      ambient.Embedding.Model,
		Dimensions: ambient.Embedding.Dimensions,
		BaseURL:    ambient.Embedding.BaseURL,
	}
	if provider, err := embedprovider.New(currentCfg); err == nil {
		stat.CurrentProvider = provider.Name()
		stat.CurrentModel = provider.Model()
		stat.CurrentDimension = provider.Dimensions()
		stat.Compatible = meta.Embedding == nil ||
			(stat.CurrentProvider == stat.IndexProvider &&
				stat.CurrentDimension == stat.IndexDimensions)
	}

	return stat, nil
}

func printStatHuman(cmd *cobra.Command, s indexStat) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Index Statistics")
	fmt.Fprintln(out, "================")
	fmt.Fprintf(out, "Location:     %s\n", s.Out)
	fmt.Fprintf(out, "Files:        %d\n", s.Files)
	fmt.Fprintf(out, "Chunks:       %d\n", s.Chunks)
	fmt.Fprintf(out, "With vectors: %d\n", s.VectorChunks)
	if s.IndexedAt != "" {
		if ts, err := time.Parse(time.RFC3339, s.IndexedAt); err == nil {
			fmt.Fprintf(out, "Indexed at:   %s (%s ago)\n", s.IndexedAt, time.Since(ts).Round(time.Second))
		} else {
			fmt.Fprintf(out, "Indexed at:   %s\n", s.IndexedAt)
		}
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Embedding Configuration:")
	fmt.Fprintf(out, "  Index:   %s / %s (%d dims)\n", s.IndexProvider, s.IndexModel, s.IndexDimensions)
	fmt.Fprintf(out, "  Current: %s / %s (%d dims)\n", s.CurrentProvider, s.CurrentModel, s.CurrentDimension)
	if s.Compatible {
		fmt.Fprintln(out, "  Status:  compatible")
	} else {
		fmt.Fprintln(out, "  Status:  INCOMPATIBLE - semantic search degraded, rebuild the index")
	}

	if len(s.Taxonomy) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Taxonomy:")
		for key, n := range s.Taxonomy {
			fmt.Fprintf(out, "  %s: %d values\n", key, n)
		}
	}
}
