// Package embedcache persists embedding vectors across builds, keyed
// by embedding fingerprint, so an unchanged chunk never pays for a
// re-embed. It is the only package that knows the on-disk layout of
// the persistent vector cache; callers only see Load/Save and
// EmbedChunksIncremental.
package embedcache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/docsmcp/docsmcp/internal/atomicpublish"
	"github.com/docsmcp/docsmcp/internal/chunk"
	"github.com/docsmcp/docsmcp/internal/docmodel"
	"github.com/docsmcp/docsmcp/internal/embedprovider"
)

// CacheVersion is bumped on any breaking change to the sidecar or
// entries format. Only the major component is compared; minor/patch
// bumps stay backward compatible.
const CacheVersion = "1.0.0"

// FormatVersion tags the entries file's on-disk shape.
const FormatVersion = "1"

const (
	liveDir     = "live"
	entriesFile = "entries.json"
	metaFile    = "cache-meta.json"
)

// sidecar is the persisted cache-meta.json.
type sidecar struct {
	CacheVersion      string `json:"cache_version"`
	FormatVersion     string `json:"format_version"`
	ConfigFingerprint string `json:"config_fingerprint"`
	EntryCount        int    `json:"entry_count"`
}

// Cache is the in-memory form of a loaded embedding cache, keyed by
// embedding fingerprint.
type Cache struct {
	Entries map[string]docmodel.CacheEntry
}

func newCache() *Cache {
	return &Cache{Entries: make(map[string]docmodel.CacheEntry)}
}

// Load reads the persisted cache under baseDir, validating it against
// cfg. Any invalidation condition (missing-with-orphan-dir, corrupt,
// cache_version major mismatch, format_version mismatch,
// config_fingerprint mismatch) logs a warning, deletes the cache
// directory, and returns (nil, nil) rather than an error — a cache
// miss is not a failure.
func Load(baseDir string, cfg docmodel.EmbeddingConfig) (*Cache, error) {
	atomicpublish.CleanStale(filepath.Join(baseDir, liveDir))

	live := filepath.Join(baseDir, liveDir)
	metaPath := filepath.Join(live, metaFile)

	raw, err := os.ReadFile(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			if dirExists(live) {
				slog.Warn("embedding_cache_invalidated", slog.String("reason", "missing_sidecar_orphan_dir"))
				discard(live)
			}
			return nil, nil
		}
		return nil, fmt.Errorf("read cache sidecar: %w", err)
	}

	var sc sidecar
	if err := json.Unmarshal(raw, &sc); err != nil {
		slog.Warn("embedding_cache_invalidated", slog.String("reason", "corrupt_sidecar"), slog.String("error", err.Error()))
		discard(live)
		return nil, nil
	}

	if majorVersion(sc.CacheVersion) != majorVersion(CacheVersion) {
		slog.Warn("embedding_cache_invalidated", slog.String("reason", "cache_version_mismatch"),
			slog.String("found", sc.CacheVersion), slog.String("want", CacheVersion))
		discard(live)
		return nil, nil
	}
	if sc.FormatVersion != FormatVersion {
		slog.Warn("embedding_cache_invalidated", slog.String("reason", "format_version_mismatch"),
			slog.String("found", sc.FormatVersion), slog.String("want", FormatVersion))
		discard(live)
		return nil, nil
	}
	if sc.ConfigFingerprint != cfg.ConfigFingerprint {
		slog.Warn("embedding_cache_invalidated", slog.String("reason", "config_fingerprint_mismatch"))
		discard(live)
		return nil, nil
	}

	entriesRaw, err := os.ReadFile(filepath.Join(live, entriesFile))
	if err != nil {
		slog.Warn("embedding_cache_invalidated", slog.String("reason", "corrupt_entries"), slog.String("error", err.Error()))
		discard(live)
		return nil, nil
	}

	var entries []docmodel.CacheEntry
	if err := json.Unmarshal(entriesRaw, &entries); err != nil {
		slog.Warn("embedding_cache_invalidated", slog.String("reason", "corrupt_entries"), slog.String("error", err.Error()))
		discard(live)
		return nil, nil
	}

	c := newCache()
	for _, e := range entries {
		c.Entries[e.Fingerprint] = e
	}
	return c, nil
}

// Save writes cache under baseDir atomically: builds live.tmp, then
// swaps it in for live via atomicpublish.Publish.
func Save(baseDir string, cache *Cache, cfg docmodel.EmbeddingConfig) error {
	live := filepath.Join(baseDir, liveDir)
	tmp := filepath.Join(baseDir, liveDir+".tmp")

	atomicpublish.CleanStale(live)
	if err := os.RemoveAll(tmp); err != nil {
		return fmt.Errorf("clear stale tmp cache dir: %w", err)
	}
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return fmt.Errorf("create tmp cache dir: %w", err)
	}

	entries := make([]docmodel.CacheEntry, 0, len(cache.Entries))
	for _, e := range cache.Entries {
		entries = append(entries, e)
	}
	entriesRaw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal cache entries: %w", err)
	}
	if err := os.WriteFile(filepath.Join(tmp, entriesFile), entriesRaw, 0o644); err != nil {
		return fmt.Errorf("write cache entries: %w", err)
	}

	sc := sidecar{
		CacheVersion:      CacheVersion,
		FormatVersion:     FormatVersion,
		ConfigFingerprint: cfg.ConfigFingerprint,
		EntryCount:        len(entries),
	}
	scRaw, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("marshal cache sidecar: %w", err)
	}
	if err := os.WriteFile(filepath.Join(tmp, metaFile), scRaw, 0o644); err != nil {
		return fmt.Errorf("write cache sidecar: %w", err)
	}

	return atomicpublish.Publish(live, tmp)
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func discard(path string) {
	_ = os.RemoveAll(path)
}

func majorVersion(v string) string {
	parts := strings.SplitN(v, ".", 2)
	if len(parts) == 0 {
		return v
	}
	if _, err := strconv.Atoi(parts[0]); err != nil {
		return v
	}
	return parts[0]
}

// IncrementalStats summarizes one EmbedChunksIncremental run.
type IncrementalStats struct {
	Total  int
	Hits   int
	Misses int
}

// IncrementalResult is the return value of EmbedChunksIncremental.
type IncrementalResult struct {
	VectorsByChunkID map[string][]float32
	UpdatedCache     *Cache
	Stats            IncrementalStats
}

// ProgressFunc is invoked after each miss sub-batch is embedded.
type ProgressFunc func(completed, total int)

// EmbedChunksIncremental partitions chunks into cache hits and misses,
// embeds only the misses (routing through the batch-job path when the
// miss count reaches the provider's BatchAPIThreshold, otherwise
// slicing into BatchSize sub-batches), and returns vectors for every
// chunk plus an updated cache pruned to this build's chunk set.
func EmbedChunksIncremental(
	ctx context.Context,
	provider embedprovider.Provider,
	chunks []docmodel.Chunk,
	cache *Cache,
	onProgress ProgressFunc,
) (IncrementalResult, error) {
	if err := ctx.Err(); err != nil {
		return IncrementalResult{}, err
	}
	if cache == nil {
		cache = newCache()
	}

	fingerprints := make([]string, len(chunks))
	inputs := make([]string, len(chunks))
	for i, c := range chunks {
		input := chunk.EmbeddingInput(c.Breadcrumb, c.Filepath, c.ContentText)
		inputs[i] = input
		fingerprints[i] = chunk.EmbeddingFingerprint(provider.ConfigFingerprint(), input)
	}

	var missIdx []int
	vectors := make([][]float32, len(chunks))
	hits, misses := 0, 0
	for i, fp := range fingerprints {
		if entry, ok := cache.Entries[fp]; ok {
			vectors[i] = entry.Vector
			hits++
			continue
		}
		missIdx = append(missIdx, i)
		misses++
	}

	if len(missIdx) > 0 {
		missTexts := make([]string, len(missIdx))
		for j, idx := range missIdx {
			missTexts[j] = inputs[idx]
		}

		var missVecs [][]float32
		var err error
		if misses >= provider.BatchAPIThreshold() && provider.BatchAPIThreshold() > 0 {
			missVecs, err = provider.Embed(ctx, missTexts)
			if err != nil {
				return IncrementalResult{}, fmt.Errorf("embed miss batch: %w", err)
			}
			if onProgress != nil {
				onProgress(len(missTexts), len(missTexts))
			}
		} else {
			batchSize := provider.BatchSize()
			if batchSize <= 0 {
				batchSize = len(missTexts)
			}
			missVecs = make([][]float32, 0, len(missTexts))
			completed := 0
			for start := 0; start < len(missTexts); start += batchSize {
				end := start + batchSize
				if end > len(missTexts) {
					end = len(missTexts)
				}
				sub, err := provider.Embed(ctx, missTexts[start:end])
				if err != nil {
					return IncrementalResult{}, fmt.Errorf("embed miss sub-batch: %w", err)
				}
				missVecs = append(missVecs, sub...)
				completed += len(sub)
				if onProgress != nil {
					onProgress(completed, len(missTexts))
				}
			}
		}

		if len(missVecs) != len(missIdx) {
			return IncrementalResult{}, fmt.Errorf("embed returned %d vectors for %d misses", len(missVecs), len(missIdx))
		}
		for j, idx := range missIdx {
			vectors[idx] = missVecs[j]
		}
	}

	updated := newCache()
	vectorsByChunkID := make(map[string][]float32, len(chunks))
	for i, c := range chunks {
		vectorsByChunkID[c.ChunkID] = vectors[i]
		updated.Entries[fingerprints[i]] = docmodel.CacheEntry{
			Fingerprint: fingerprints[i],
			ChunkID:     c.ChunkID,
			Vector:      vectors[i],
		}
	}

	return IncrementalResult{
		VectorsByChunkID: vectorsByChunkID,
		UpdatedCache:     updated,
		Stats: IncrementalStats{
			Total:  len(chunks),
			Hits:   hits,
			Misses: misses,
		},
	}, nil
}
