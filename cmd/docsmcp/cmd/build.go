package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/docsmcp/docsmcp/internal/atomicpublish"
	"github.com/docsmcp/docsmcp/internal/chunk"
	"github.com/docsmcp/docsmcp/internal/chunkcache"
	"github.com/docsmcp/docsmcp/internal/docmodel"
	"github.com/docsmcp/docsmcp/internal/embedcache"
	"github.com/docsmcp/docsmcp/internal/embedprovider"
	"github.com/docsmcp/docsmcp/internal/manifestcfg"
	"github.com/docsmcp/docsmcp/internal/preflight"
	"github.com/docsmcp/docsmcp/internal/progressui"
	"github.com/docsmcp/docsmcp/internal/tablestore"
)

const (
	indexDBName       = "index.db"
	chunksSidecarName = "chunks.json"
	metaSidecarName   = "metadata.json"
	embeddingCacheDir = ".embedding-cache"
)

type buildFlags struct {
	docsDir      string
	out          string
	description  string
	provider     string
	model        string
	dimensions   int
	apiKey       string
	baseURL      string
	batchSize    int
	concurrency  int
	maxRetries   int
	rebuildCache bool
	cacheDir     string
	toolSearch   string
	toolGetDoc   string
	watch         bool
	forcePlain    bool
	skipPreflight bool
}

func newBuildCmd() *cobra.Command {
	var f buildFlags

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build (or rebuild) the search index over a docs directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.watch {
				return runBuildWatch(cmd.Context(), cmd, f)
			}
			_, err := runBuild(cmd.Context(), cmd, f)
			return err
		},
	}

	cmd.Flags().StringVar(&f.docsDir, "docs-dir", "docs", "Directory containing the Markdown corpus")
	cmd.Flags().StringVar(&f.out, "out", ".docsmcp-index", "Output index directory")
	cmd.Flags().StringVar(&f.description, "description", "", "Corpus description recorded in metadata.json")
	cmd.Flags().StringVar(&f.provider, "embedding-provider", "none", "Embedding provider: none | hash | openai")
	cmd.Flags().StringVar(&f.model, "embedding-model", "", "Embedding model name (openai)")
	cmd.Flags().IntVar(&f.dimensions, "embedding-dimensions", 0, "Embedding vector dimensions")
	cmd.Flags().StringVar(&f.apiKey, "embedding-api-key", "", "Embedding provider API key (falls back to OPENAI_API_KEY)")
	cmd.Flags().StringVar(&f.baseURL, "embedding-base-url", "", "Embedding provider base URL")
	cmd.Flags().IntVar(&f.batchSize, "embedding-batch-size", 0, "Embedding request batch size")
	cmd.Flags().IntVar(&f.concurrency, "embedding-concurrency", 0, "Concurrent embedding batches")
	cmd.Flags().IntVar(&f.maxRetries, "embedding-max-retries", 0, "Max embedding retry attempts")
	cmd.Flags().BoolVar(&f.rebuildCache, "rebuild-cache", false, "Ignore the persisted embedding cache and re-embed everything")
	cmd.Flags().StringVar(&f.cacheDir, "cache-dir", "", "Embedding cache directory (default <out>/.embedding-cache)")
	cmd.Flags().StringVar(&f.toolSearch, "tool-description-search", "", "Override the search_docs tool description")
	cmd.Flags().StringVar(&f.toolGetDoc, "tool-description-get-doc", "", "Override the get_doc tool description")
	cmd.Flags().BoolVar(&f.watch, "watch", false, "Rebuild automatically on docs-dir changes")
	cmd.Flags().BoolVar(&f.forcePlain, "no-tui", false, "Force plain-text progress output")
	cmd.Flags().BoolVar(&f.skipPreflight, "skip-preflight", false, "Skip disk/memory/embedder preflight checks")

	return cmd
}

// buildSummary is returned by runBuild for the watch loop and tests.
type buildSummary struct {
	Files     int
	Chunks    int
	CacheHits int
	CacheTotal int
	Duration  time.Duration
}

func runBuild(ctx context.Context, cmd *cobra.Command, f buildFlags) (buildSummary, error) {
	start := time.Now()

	ambient, err := manifestcfg.Load(".")
	if err != nil {
		return buildSummary{}, fmt.Errorf("load docsmcp.yaml: %w", err)
	}
	applyAmbientDefaults(&f, ambient, cmd)

	cacheDir := f.cacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(f.out, embeddingCacheDir)
	}

	if !f.skipPreflight {
		if err := os.MkdirAll(f.out, 0o755); err != nil {
			return buildSummary{}, fmt.Errorf("create output directory: %w", err)
		}
		checker := preflight.New(preflight.WithOutput(cmd.ErrOrStderr()))
		results := checker.RunAll(ctx, f.out, embeddingProviderConfig(f))
		if checker.HasCriticalFailures(results) {
			checker.PrintResults(results)
			return buildSummary{}, fmt.Errorf("preflight checks failed, use --skip-preflight to bypass")
		}
		for _, r := range results {
			if r.Status != preflight.StatusPass {
				fmt.Fprintf(cmd.ErrOrStderr(), "preflight %s: %s: %s\n", r.Status, r.Name, r.Message)
			}
		}
	}

	renderer := progressui.NewRenderer(progressui.NewConfig(cmd.OutOrStdout(), progressui.WithForcePlain(f.forcePlain)))
	if err := renderer.Start(ctx); err != nil {
		return buildSummary{}, fmt.Errorf("start progress renderer: %w", err)
	}
	var errCount, warnCount int
	defer func() { _ = renderer.Stop() }()

	renderer.UpdateProgress(progressui.ProgressEvent{Stage: progressui.StageScanning, Message: f.docsDir})
	docs, err := loadDocFiles(f.docsDir)
	if err != nil {
		return buildSummary{}, fmt.Errorf("scan %s: %w", f.docsDir, err)
	}

	taxonomy, err := mergedTaxonomy(f.docsDir)
	if err != nil {
		return buildSummary{}, fmt.Errorf("merge taxonomy: %w", err)
	}

	renderer.UpdateProgress(progressui.ProgressEvent{Stage: progressui.StageChunking, Total: len(docs)})

	currentFingerprints := make(map[string]string, len(docs))
	byPath := make(map[string]docFile, len(docs))
	for _, d := range docs {
		fp, err := chunk.ChunkingFingerprint(d.Markdown, d.Config.Strategy, d.Config.Metadata)
		if err != nil {
			return buildSummary{}, fmt.Errorf("fingerprint %s: %w", d.RelPath, err)
		}
		currentFingerprints[d.RelPath] = fp
		byPath[d.RelPath] = d
	}

	dbPath := filepath.Join(f.out, indexDBName)
	var prev *chunkcache.PreviousIndex
	if !f.rebuildCache {
		if _, statErr := os.Stat(dbPath); statErr == nil {
			prev, err = chunkcache.Load(dbPath)
			if err != nil {
				return buildSummary{}, fmt.Errorf("load previous index: %w", err)
			}
		}
	}
	if prev != nil {
		defer prev.Close()
	}

	rechunk := func(relPath string) ([]docmodel.Chunk, error) {
		d := byPath[relPath]
		return chunk.BuildChunks(d.RelPath, d.Markdown, d.Config.Strategy, d.Config.Metadata)
	}
	reusable, reuseOK := chunkcache.Reusable(prev, currentFingerprints, rechunk)

	var reuseCache *chunkcache.ReuseCache
	if reuseOK {
		reuseCache, err = chunkcache.NewReuseCache(prev)
		if err != nil {
			return buildSummary{}, fmt.Errorf("create reuse cache: %w", err)
		}
	}

	var allChunks []docmodel.Chunk
	for i, d := range docs {
		var chunks []docmodel.Chunk
		if reuseOK && reusable[d.RelPath] {
			chunks, err = reuseCache.Get(d.RelPath)
		} else {
			chunks, err = chunk.BuildChunks(d.RelPath, d.Markdown, d.Config.Strategy, d.Config.Metadata)
		}
		if err != nil {
			return buildSummary{}, fmt.Errorf("chunk %s: %w", d.RelPath, err)
		}
		allChunks = append(allChunks, chunks...)
		renderer.UpdateProgress(progressui.ProgressEvent{Stage: progressui.StageChunking, Current: i + 1, Total: len(docs), CurrentFile: d.RelPath})
	}

	provider, err := embedprovider.New(embeddingProviderConfig(f))
	if err != nil {
		return buildSummary{}, fmt.Errorf("construct embedding provider: %w", err)
	}

	var cache *embedcache.Cache
	if !f.rebuildCache {
		cache, err = embedcache.Load(cacheDir, docmodel.EmbeddingConfig{
			Provider:          provider.Name(),
			Model:             provider.Model(),
			Dimensions:        provider.Dimensions(),
			BaseURL:           f.baseURL,
			ConfigFingerprint: provider.ConfigFingerprint(),
		})
		if err != nil {
			return buildSummary{}, fmt.Errorf("load embedding cache: %w", err)
		}
	}

	renderer.UpdateProgress(progressui.ProgressEvent{Stage: progressui.StageEmbedding, Total: len(allChunks)})
	embedResult, err := embedcache.EmbedChunksIncremental(ctx, provider, allChunks, cache, func(completed, total int) {
		renderer.UpdateProgress(progressui.ProgressEvent{Stage: progressui.StageEmbedding, Current: completed, Total: total})
	})
	if err != nil {
		return buildSummary{}, fmt.Errorf("embed chunks: %w", err)
	}

	if err := embedcache.Save(cacheDir, embedResult.UpdatedCache, docmodel.EmbeddingConfig{
		Provider:          provider.Name(),
		Model:             provider.Model(),
		Dimensions:        provider.Dimensions(),
		BaseURL:           f.baseURL,
		ConfigFingerprint: provider.ConfigFingerprint(),
	}); err != nil {
		renderer.AddError(progressui.ErrorEvent{Err: fmt.Errorf("save embedding cache: %w", err), IsWarn: true})
		warnCount++
	}

	if err := os.MkdirAll(f.out, 0o755); err != nil {
		return buildSummary{}, fmt.Errorf("create output directory: %w", err)
	}
	atomicpublish.CleanStale(dbPath)
	lock := atomicpublish.NewLock(dbPath)
	if err := lock.Acquire(); err != nil {
		return buildSummary{}, fmt.Errorf("acquire publish lock: %w", err)
	}
	defer lock.Release()

	tmpPath := dbPath + ".tmp"
	_ = os.Remove(tmpPath)

	renderer.UpdateProgress(progressui.ProgressEvent{Stage: progressui.StageIndexing})
	err = tablestore.BuildIndex(tablestore.BuildOptions{
		DBPath:          tmpPath,
		Chunks:          allChunks,
		MetadataKeys:    taxonomyKeys(taxonomy),
		VectorsByChunk:  embedResult.VectorsByChunkID,
		FileFingerprint: currentFingerprints,
		Dimensions:      provider.Dimensions(),
		OnProgress: func(stage string, done, total int) {
			renderer.UpdateProgress(progressui.ProgressEvent{Stage: progressui.StageIndexing, Current: done, Total: total, Message: stage})
		},
	})
	if err != nil {
		_ = os.Remove(tmpPath)
		return buildSummary{}, fmt.Errorf("build index: %w", err)
	}

	renderer.UpdateProgress(progressui.ProgressEvent{Stage: progressui.StagePublishing})
	if err := atomicpublish.Publish(dbPath, tmpPath); err != nil {
		return buildSummary{}, fmt.Errorf("publish index: %w", err)
	}

	if err := writeSidecars(f, taxonomy, allChunks, provider, docs); err != nil {
		renderer.AddError(progressui.ErrorEvent{Err: err, IsWarn: true})
		warnCount++
	}

	renderer.UpdateProgress(progressui.ProgressEvent{Stage: progressui.StageComplete})
	summary := buildSummary{
		Files:      len(docs),
		Chunks:     len(allChunks),
		CacheHits:  embedResult.Stats.Hits,
		CacheTotal: embedResult.Stats.Total,
		Duration:   time.Since(start),
	}
	renderer.Complete(progressui.CompletionStats{
		Files:      summary.Files,
		Chunks:     summary.Chunks,
		CacheHits:  summary.CacheHits,
		CacheTotal: summary.CacheTotal,
		Duration:   summary.Duration,
		Errors:     errCount,
		Warnings:   warnCount,
		Embedding: progressui.EmbeddingInfo{
			Provider:   provider.Name(),
			Model:      provider.Model(),
			Dimensions: provider.Dimensions(),
		},
	})
	return summary, nil
}

// applyAmbientDefaults fills in docsmcp.yaml's ambient values for any
// flag the user left at its cobra default, so CLI flags still take
// precedence over the committed config file.
func applyAmbientDefaults(f *buildFlags, ambient *manifestcfg.Config, cmd *cobra.Command) {
	changed := cmd.Flags().Changed
	if !changed("docs-dir") && ambient.DocsDir != "" {
		f.docsDir = ambient.DocsDir
	}
	if !changed("out") && ambient.Out != "" {
		f.out = ambient.Out
	}
	if !changed("cache-dir") && ambient.CacheDir != "" {
		f.cacheDir = ambient.CacheDir
	}
	if !changed("embedding-provider") && ambient.Embedding.Provider != "" {
		f.provider = ambient.Embedding.Provider
	}
	if !changed("embedding-model") && ambient.Embedding.Model != "" {
		f.model = ambient.Embedding.Model
	}
	if !changed("embedding-dimensions") && ambient.Embedding.Dimensions != 0 {
		f.dimensions = ambient.Embedding.Dimensions
	}
	if !changed("embedding-base-url") && ambient.Embedding.BaseURL != "" {
		f.baseURL = ambient.Embedding.BaseURL
	}
	if !changed("embedding-batch-size") && ambient.Embedding.BatchSize != 0 {
		f.batchSize = ambient.Embedding.BatchSize
	}
	if !changed("embedding-concurrency") && ambient.Embedding.Concurrency != 0 {
		f.concurrency = ambient.Embedding.Concurrency
	}
	if !changed("embedding-max-retries") && ambient.Embedding.MaxRetries != 0 {
		f.maxRetries = ambient.Embedding.MaxRetries
	}
	if !changed("tool-description-search") && ambient.Server.ToolDescriptionSearch != "" {
		f.toolSearch = ambient.Server.ToolDescriptionSearch
	}
	if !changed("tool-description-get-doc") && ambient.Server.ToolDescriptionGetDoc != "" {
		f.toolGetDoc = ambient.Server.ToolDescriptionGetDoc
	}
}

func embeddingProviderConfig(f buildFlags) embedprovider.Config {
	apiKey := f.apiKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	return embedprovider.Config{
		Provider:    f.provider,
		Model:       f.model,
		Dimensions:  f.dimensions,
		APIKey:      apiKey,
		BaseURL:     f.baseURL,
		BatchSize:   f.batchSize,
		Concurrency: f.concurrency,
		MaxRetries:  f.maxRetries,
	}
}

func writeSidecars(f buildFlags, taxonomy map[string]docmodel.TaxonomyDim, chunks []docmodel.Chunk, provider embedprovider.Provider, docs []docFile) error {
	chunksJSON, err := json.MarshalIndent(chunks, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal chunks.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(f.out, chunksSidecarName), chunksJSON, 0o644); err != nil {
		return fmt.Errorf("write chunks.json: %w", err)
	}

	files := make(map[string]bool, len(docs))
	for _, d := range docs {
		files[d.RelPath] = true
	}

	stats := make(map[string]docmodel.TaxonomyStat, len(taxonomy))
	for key, dim := range taxonomy {
		values := collectTaxonomyValues(chunks, key)
		stats[key] = docmodel.TaxonomyStat{
			Values:         values,
			VectorCollapse: dim.VectorCollapse,
			Properties:     dim.Properties,
		}
	}

	toolDescriptions := map[string]string{}
	if f.toolSearch != "" {
		toolDescriptions["search_docs"] = f.toolSearch
	}
	if f.toolGetDoc != "" {
		toolDescriptions["get_doc"] = f.toolGetDoc
	}

	meta := docmodel.CorpusMetadata{
		MetadataVersion:   1,
		CorpusDescription: f.description,
		Taxonomy:          stats,
		Stats: docmodel.CorpusStats{
			TotalChunks: len(chunks),
			TotalFiles:  len(files),
			IndexedAt:   time.Now().UTC().Format(time.RFC3339),
		},
		Embedding: &docmodel.EmbeddingStat{
			Provider:   provider.Name(),
			Model:      provider.Model(),
			Dimensions: provider.Dimensions(),
		},
		ToolDescriptions: toolDescriptions,
		Index: docmodel.IndexPointer{
			Engine: "sqlite",
			Table:  "chunks",
			Path:   indexDBName,
		},
	}

	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata.json: %w", err)
	}
	return os.WriteFile(filepath.Join(f.out, metaSidecarName), metaJSON, 0o644)
}

func collectTaxonomyValues(chunks []docmodel.Chunk, key string) []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range chunks {
		v, ok := c.Metadata[key]
		if !ok || v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
