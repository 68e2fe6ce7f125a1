// Package queryengine serves search_docs and get_doc against a built
// tabular index: concurrent lexical/phrase/vector fan-out, Reciprocal
// Rank Fusion, variant-collapse deduplication, signed cursor
// pagination, and neighbor-expanded document retrieval.
package queryengine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/docsmcp/docsmcp/internal/docmodel"
	"github.com/docsmcp/docsmcp/internal/embedprovider"
	"github.com/docsmcp/docsmcp/internal/tablestore"
)

const (
	defaultLimit = 10
	maxLimit     = 50

	defaultMatchWeight  = 1.0
	defaultPhraseWeight = 1.25
	defaultVectorWeight = 1.0

	headingBoost = 3.0
	contentBoost = 1.0

	rrfK = 60
)

// Engine is a reentrant query handle shared by every in-flight search
// or get_doc call against one built index. It owns no mutable state
// after construction: the table store and vector index are opened
// once and never written to again.
type Engine struct {
	store    *tablestore.Store
	provider embedprovider.Provider // query-time embedder; nil disables the vector signal

	taxonomyKeys       map[string]bool
	vectorCollapseKeys map[string]bool

	vectorWarnOnce sync.Once
}

// Options configures an Engine beyond the table store it reads from.
type Options struct {
	// QueryProvider embeds the query text for the vector signal. Nil
	// disables vector search; lexical and phrase signals still run.
	QueryProvider embedprovider.Provider
	// Taxonomy lists every indexed taxonomy dimension, keyed by name.
	Taxonomy map[string]docmodel.TaxonomyStat
}

// New constructs an Engine over an already-opened table store.
func New(store *tablestore.Store, opts Options) *Engine {
	taxonomyKeys := make(map[string]bool, len(opts.Taxonomy))
	collapseKeys := make(map[string]bool)
	for key, stat := range opts.Taxonomy {
		taxonomyKeys[key] = true
		if stat.VectorCollapse {
			collapseKeys[key] = true
		}
	}
	return &Engine{
		store:              store,
		provider:           opts.QueryProvider,
		taxonomyKeys:       taxonomyKeys,
		vectorCollapseKeys: collapseKeys,
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return clampInt(limit, 1, maxLimit)
}

func resolveWeights(req *docmodel.RRFWeights) (match, phrase, vector float64) {
	match, phrase, vector = defaultMatchWeight, defaultPhraseWeight, defaultVectorWeight
	if req == nil {
		return
	}
	if req.Match != 0 {
		match = req.Match
	}
	if req.Phrase != 0 {
		phrase = req.Phrase
	}
	if req.Vector != 0 {
		vector = req.Vector
	}
	return
}

// queryEmbedding embeds the query once for the vector signal. A
// missing provider or an embedding failure is non-fatal: the signal
// is dropped and a single warning is logged per engine instance.
func (e *Engine) queryEmbedding(ctx context.Context, query string) []float32 {
	if e.provider == nil {
		return nil
	}
	vecs, err := e.provider.Embed(ctx, []string{query})
	if err != nil || len(vecs) == 0 {
		e.vectorWarnOnce.Do(func() {
			slog.Warn("vector_signal_disabled", slog.String("reason", errString(err)))
		})
		return nil
	}
	return vecs[0]
}

func errString(err error) string {
	if err == nil {
		return "embedding provider returned no vectors"
	}
	return err.Error()
}
