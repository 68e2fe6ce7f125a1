package queryengine

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/docsmcp/docsmcp/internal/docmodel"
	"github.com/docsmcp/docsmcp/internal/tablestore"
)

const phraseSlopDefault = 0
const maxFallbackHintRows = 100

// Search serves search_docs: filter rewriting, three-way concurrent
// fan-out, RRF fusion, variant-collapse dedup, and cursor pagination.
func (e *Engine) Search(ctx context.Context, req docmodel.SearchRequest) (*docmodel.SearchResult, error) {
	if normalizeQuery(req.Query) == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	limit := normalizeLimit(req.Limit)

	offset := 0
	if req.Cursor != "" {
		decodedOffset, decodedLimit, err := decodeCursor(req.Cursor, req.Query, req.Filters)
		if err != nil {
			return nil, err
		}
		offset = decodedOffset
		if decodedLimit > 0 {
			limit = decodedLimit
		}
	}

	predicate := tablestore.BuildFilterPredicate(req.Filters, e.taxonomyKeys)
	fetchLimit := tablestore.ClampFetchLimit(offset, limit)
	wMatch, wPhrase, wVector := resolveWeights(req.RRFWeights)

	var matchHits, phraseHits []tablestore.RankedHit
	var vectorHits []tablestore.VectorHit
	var allowedByFilter map[string]bool

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := e.store.MultiMatch(req.Query, headingBoost, contentBoost, predicate, fetchLimit)
		if err != nil {
			return fmt.Errorf("multi-match search: %w", err)
		}
		matchHits = hits
		return nil
	})
	g.Go(func() error {
		hits, err := e.store.PhraseMatch(req.Query, phraseSlopDefault, predicate, fetchLimit)
		if err != nil {
			return fmt.Errorf("phrase search: %w", err)
		}
		phraseHits = hits
		return nil
	})
	g.Go(func() error {
		vec := e.queryEmbedding(gctx, req.Query)
		if vec == nil {
			return nil
		}
		idx, ok := e.store.Vector()
		if !ok {
			return nil
		}
		vectorHits = idx.Search(vec, fetchLimit)
		return nil
	})
	if predicate != "" {
		g.Go(func() error {
			allowed, err := e.allowedChunkIDs(gctx, predicate)
			if err != nil {
				return fmt.Errorf("filter predicate query: %w", err)
			}
			allowedByFilter = allowed
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if gctx.Err() != nil {
			return nil, gctx.Err()
		}
		return nil, err
	}

	matchIDs := idsOf(matchHits)
	phraseIDs := idsOf(phraseHits)
	vectorIDs := filterVectorHits(vectorHits, allowedByFilter)

	fusedRows := fuseRanks(matchIDs, phraseIDs, vectorIDs, wMatch, wPhrase, wVector)
	if len(fusedRows) == 0 {
		return e.emptyResultWithHint(ctx, req)
	}

	candidates, err := e.hydrate(fusedRows)
	if err != nil {
		return nil, err
	}

	collapsible := e.collapsibleKeys(req.Filters)
	deduped := collapseVariants(candidates, collapsible)

	end := offset + limit
	var paged []collapseCandidate
	if offset < len(deduped) {
		if end > len(deduped) {
			end = len(deduped)
		}
		paged = deduped[offset:end]
	}

	hits := make([]docmodel.SearchHit, 0, len(paged))
	for _, c := range paged {
		hits = append(hits, docmodel.SearchHit{
			ChunkID:    c.row.ChunkID,
			Heading:    c.row.Heading,
			Breadcrumb: c.row.Breadcrumb,
			Snippet:    renderSnippet(c.row.ContentText, req.Query),
			Filepath:   c.row.Filepath,
			Metadata:   c.row.Metadata,
			Score:      c.score,
		})
	}

	var nextCursor *string
	if end < len(deduped) {
		token, err := encodeCursor(end, limit, req.Query, req.Filters)
		if err != nil {
			return nil, err
		}
		nextCursor = &token
	}

	return &docmodel.SearchResult{Hits: hits, NextCursor: nextCursor}, nil
}

func idsOf(hits []tablestore.RankedHit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.ChunkID
	}
	return out
}

// filterVectorHits keeps vector hits in rank order, dropping any whose
// chunk ID the filter predicate excludes. HNSW has no native predicate
// pushdown, so the filter is applied as a post-search intersection.
func filterVectorHits(hits []tablestore.VectorHit, allowed map[string]bool) []string {
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		if allowed != nil && !allowed[h.ChunkID] {
			continue
		}
		out = append(out, h.ChunkID)
	}
	return out
}

func (e *Engine) allowedChunkIDs(ctx context.Context, predicate string) (map[string]bool, error) {
	rows, err := e.store.DB().QueryContext(ctx, "SELECT chunk_id FROM chunks WHERE "+predicate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// hydrate fetches the full row for each fused chunk ID, in fused
// (score-descending) order, skipping any that vanished from the store
// (shouldn't happen under normal operation, but a storage race is not
// fatal to a single search).
func (e *Engine) hydrate(fusedRows []fused) ([]collapseCandidate, error) {
	out := make([]collapseCandidate, 0, len(fusedRows))
	for _, f := range fusedRows {
		row, ok, err := e.store.GetByID(f.chunkID)
		if err != nil {
			return nil, fmt.Errorf("hydrate chunk %q: %w", f.chunkID, err)
		}
		if !ok {
			continue
		}
		out = append(out, collapseCandidate{row: *row, score: f.score})
	}
	return out, nil
}

// emptyResultWithHint fetches lexical fallback rows ignoring filters
// and surfaces the distinct alternative values observed for each
// active filter key.
func (e *Engine) emptyResultWithHint(ctx context.Context, req docmodel.SearchRequest) (*docmodel.SearchResult, error) {
	fallback, err := e.store.LexicalFallback(req.Query, maxFallbackHintRows)
	if err != nil {
		return nil, fmt.Errorf("lexical fallback: %w", err)
	}
	if len(fallback) == 0 {
		return &docmodel.SearchResult{Hits: []docmodel.SearchHit{}}, nil
	}

	suggested := make(map[string]map[string]bool)
	for key := range req.Filters {
		suggested[key] = make(map[string]bool)
	}
	for _, row := range fallback {
		for key, active := range req.Filters {
			val := row.Metadata[key]
			if val != "" && val != active {
				suggested[key][val] = true
			}
		}
	}

	out := make(map[string][]string, len(suggested))
	for key, set := range suggested {
		if len(set) == 0 {
			continue
		}
		vals := make([]string, 0, len(set))
		for v := range set {
			vals = append(vals, v)
		}
		sort.Strings(vals)
		out[key] = vals
	}

	return &docmodel.SearchResult{
		Hits: []docmodel.SearchHit{},
		Hint: &docmodel.SearchHint{
			Message:          "no results matched; here are related values for your active filters",
			SuggestedFilters: out,
		},
	}, nil
}
