// Package chunkcache reuses chunks verbatim from a previous build's
// index when a file's chunking fingerprint is unchanged, verified by a
// canary re-chunk of a sample of matching files.
package chunkcache

import (
	"encoding/json"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/docsmcp/docsmcp/internal/docmodel"
	"github.com/docsmcp/docsmcp/internal/tablestore"
)

// canarySampleSize is the number of fingerprint-matching files
// re-chunked and structurally compared before the cache is trusted.
const canarySampleSize = 10

// PreviousIndex is a narrow read port onto a prior build's table store,
// matching the spec's `load_previous_index` contract.
type PreviousIndex struct {
	store        *tablestore.Store
	fingerprints map[string]string
}

// Load opens dbPath read-only and returns its per-file fingerprint map.
// Returns (nil, nil) when the store has no file_fingerprint column data
// (old format) rather than an error.
func Load(dbPath string) (*PreviousIndex, error) {
	store, err := tablestore.Open(dbPath)
	if err != nil {
		return nil, err
	}
	fps, err := store.FileFingerprints()
	if err != nil {
		store.Close()
		return nil, err
	}
	if len(fps) == 0 {
		store.Close()
		return nil, nil
	}
	return &PreviousIndex{store: store, fingerprints: fps}, nil
}

// Fingerprints returns the filepath -> chunking fingerprint map
// recorded at the previous build.
func (p *PreviousIndex) Fingerprints() map[string]string {
	return p.fingerprints
}

// Chunks returns the previously stored, ordered chunks for filepath.
func (p *PreviousIndex) Chunks(filepath string) ([]docmodel.Chunk, error) {
	rows, err := p.store.ChunksForFile(filepath)
	if err != nil {
		return nil, err
	}
	out := make([]docmodel.Chunk, len(rows))
	for i, r := range rows {
		out[i] = r.Chunk
	}
	return out, nil
}

// Close releases the underlying store handle.
func (p *PreviousIndex) Close() error {
	return p.store.Close()
}

// ReChunkFunc re-derives the chunks for one file, used to canary-verify
// cached entries before trusting them for the whole build.
type ReChunkFunc func(filepath string) ([]docmodel.Chunk, error)

// Reusable partitions files into those whose previous-build fingerprint
// still matches the current fingerprint (candidates for reuse) and
// everything else (must be rechunked). If the canary check on up to
// canarySampleSize candidates finds any structural mismatch, the whole
// cache is discarded: Reusable returns an empty map and ok=false.
func Reusable(prev *PreviousIndex, currentFingerprints map[string]string, rechunk ReChunkFunc) (reusable map[string]bool, ok bool) {
	if prev == nil {
		return nil, false
	}

	candidates := make([]string, 0)
	for fp, fingerprint := range currentFingerprints {
		if prevFP, exists := prev.fingerprints[fp]; exists && prevFP == fingerprint {
			candidates = append(candidates, fp)
		}
	}

	sample := candidates
	if len(sample) > canarySampleSize {
		sample = sample[:canarySampleSize]
	}

	for _, fp := range sample {
		stored, err := prev.Chunks(fp)
		if err != nil {
			slog.Warn("chunk_cache_canary_error", slog.String("filepath", fp), slog.String("error", err.Error()))
			return nil, false
		}
		fresh, err := rechunk(fp)
		if err != nil {
			slog.Warn("chunk_cache_canary_error", slog.String("filepath", fp), slog.String("error", err.Error()))
			return nil, false
		}
		if !structurallyEqual(stored, fresh) {
			slog.Warn("chunk_cache_canary_mismatch", slog.String("filepath", fp))
			return nil, false
		}
	}

	out := make(map[string]bool, len(candidates))
	for _, fp := range candidates {
		out[fp] = true
	}
	return out, true
}

func structurallyEqual(a, b []docmodel.Chunk) bool {
	if len(a) != len(b) {
		return false
	}
	aj, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bj, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(aj) == string(bj)
}

// ReuseCacheSize bounds the in-memory LRU used while a single build
// pulls chunk slices out of the previous index for reused files.
const ReuseCacheSize = 4096

// ReuseCache memoizes previous-index chunk lookups within one build so
// a file visited more than once (e.g. by both fingerprinting and
// materialization passes) pays the SQLite round trip once.
type ReuseCache struct {
	prev  *PreviousIndex
	cache *lru.Cache[string, []docmodel.Chunk]
}

// NewReuseCache wraps prev with an LRU of at most ReuseCacheSize files.
func NewReuseCache(prev *PreviousIndex) (*ReuseCache, error) {
	c, err := lru.New[string, []docmodel.Chunk](ReuseCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create reuse cache: %w", err)
	}
	return &ReuseCache{prev: prev, cache: c}, nil
}

// Get returns the cached (or freshly fetched) chunks for filepath.
func (r *ReuseCache) Get(filepath string) ([]docmodel.Chunk, error) {
	if chunks, ok := r.cache.Get(filepath); ok {
		return chunks, nil
	}
	chunks, err := r.prev.Chunks(filepath)
	if err != nil {
		return nil, err
	}
	r.cache.Add(filepath, chunks)
	return chunks, nil
}
