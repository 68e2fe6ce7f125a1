package queryengine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsmcp/docsmcp/internal/docmodel"
	"github.com/docsmcp/docsmcp/internal/embedprovider"
	"github.com/docsmcp/docsmcp/internal/tablestore"
)

func buildTestEngine(t *testing.T, chunks []docmodel.Chunk, taxonomy map[string]docmodel.TaxonomyStat) *Engine {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "chunks.db")

	metaKeys := map[string]bool{}
	for _, c := range chunks {
		for k := range c.Metadata {
			metaKeys[k] = true
		}
	}
	keys := make([]string, 0, len(metaKeys))
	for k := range metaKeys {
		keys = append(keys, k)
	}

	require.NoError(t, tablestore.BuildIndex(tablestore.BuildOptions{
		DBPath:       dbPath,
		Chunks:       chunks,
		MetadataKeys: keys,
	}))

	store, err := tablestore.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	provider, err := embedprovider.New(embedprovider.Config{Provider: "none"})
	require.NoError(t, err)

	return New(store, Options{QueryProvider: provider, Taxonomy: taxonomy})
}

func sampleChunks() []docmodel.Chunk {
	return []docmodel.Chunk{
		{
			ChunkID: "docs/auth.md#login", Filepath: "docs/auth.md", Heading: "Login",
			HeadingLevel: 2, Content: "How to authenticate a user session with a token.",
			ContentText: "How to authenticate a user session with a token.",
			Breadcrumb:  "docs/auth.md ▸ Login", ChunkIndex: 0,
			Metadata: map[string]string{"scope": "global-guide"},
		},
		{
			ChunkID: "docs/auth.md#logout", Filepath: "docs/auth.md", Heading: "Logout",
			HeadingLevel: 2, Content: "How to end a user session safely.",
			ContentText: "How to end a user session safely.",
			Breadcrumb:  "docs/auth.md ▸ Logout", ChunkIndex: 1,
			Metadata: map[string]string{"scope": "global-guide"},
		},
		{
			ChunkID: "docs/billing.md#invoices", Filepath: "docs/billing.md", Heading: "Invoices",
			HeadingLevel: 2, Content: "Invoices are generated monthly for each account.",
			ContentText: "Invoices are generated monthly for each account.",
			Breadcrumb:  "docs/billing.md ▸ Invoices", ChunkIndex: 0,
			Metadata: map[string]string{"scope": "global-guide"},
		},
	}
}

func TestSearch_RejectsEmptyQuery(t *testing.T) {
	e := buildTestEngine(t, sampleChunks(), nil)
	_, err := e.Search(context.Background(), docmodel.SearchRequest{Query: "   "})
	assert.Error(t, err)
}

func TestSearch_ReturnsMatchingHits(t *testing.T) {
	e := buildTestEngine(t, sampleChunks(), nil)
	res, err := e.Search(context.Background(), docmodel.SearchRequest{Query: "user session"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Hits)

	ids := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		ids[i] = h.ChunkID
	}
	assert.Contains(t, ids, "docs/auth.md#login")
	assert.Contains(t, ids, "docs/auth.md#logout")
}

func TestSearch_NoMatchWithoutFiltersReturnsNoHits(t *testing.T) {
	e := buildTestEngine(t, sampleChunks(), nil)
	res, err := e.Search(context.Background(), docmodel.SearchRequest{Query: "zzz-nonexistent-zzz"})
	require.NoError(t, err)
	assert.Empty(t, res.Hits)
}

func TestSearch_FilterByScope(t *testing.T) {
	e := buildTestEngine(t, sampleChunks(), map[string]docmodel.TaxonomyStat{"scope": {}})
	res, err := e.Search(context.Background(), docmodel.SearchRequest{
		Query:   "session",
		Filters: map[string]string{"scope": "global-guide"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Hits)
}

func TestSearch_PaginationCursorRoundTrips(t *testing.T) {
	e := buildTestEngine(t, sampleChunks(), nil)
	first, err := e.Search(context.Background(), docmodel.SearchRequest{Query: "session", Limit: 1})
	require.NoError(t, err)
	require.Len(t, first.Hits, 1)
	require.NotNil(t, first.NextCursor)

	second, err := e.Search(context.Background(), docmodel.SearchRequest{
		Query: "session", Limit: 1, Cursor: *first.NextCursor,
	})
	require.NoError(t, err)
	require.Len(t, second.Hits, 1)
	assert.NotEqual(t, first.Hits[0].ChunkID, second.Hits[0].ChunkID)
}

func TestSearch_CursorRejectedWhenQueryChanges(t *testing.T) {
	e := buildTestEngine(t, sampleChunks(), nil)
	first, err := e.Search(context.Background(), docmodel.SearchRequest{Query: "session", Limit: 1})
	require.NoError(t, err)
	require.NotNil(t, first.NextCursor)

	_, err = e.Search(context.Background(), docmodel.SearchRequest{
		Query: "invoices", Limit: 1, Cursor: *first.NextCursor,
	})
	assert.ErrorIs(t, err, errInvalidCursor)
}

func TestSearch_BareCursorRejected(t *testing.T) {
	e := buildTestEngine(t, sampleChunks(), nil)
	_, err := e.Search(context.Background(), docmodel.SearchRequest{Query: "session", Cursor: "not-a-real-cursor"})
	assert.Error(t, err)
}

func TestGetDoc_InvalidChunkID(t *testing.T) {
	e := buildTestEngine(t, sampleChunks(), nil)
	_, err := e.GetDoc(context.Background(), docmodel.GetDocRequest{ChunkID: "has a space"})
	assert.Error(t, err)
}

func TestGetDoc_UnknownChunkID(t *testing.T) {
	e := buildTestEngine(t, sampleChunks(), nil)
	_, err := e.GetDoc(context.Background(), docmodel.GetDocRequest{ChunkID: "docs/missing.md#nope"})
	assert.Error(t, err)
}

func TestGetDoc_DefaultContextReturnsTargetOnly(t *testing.T) {
	e := buildTestEngine(t, sampleChunks(), nil)
	res, err := e.GetDoc(context.Background(), docmodel.GetDocRequest{ChunkID: "docs/billing.md#invoices"})
	require.NoError(t, err)
	assert.Contains(t, res.Text, "Target")
	assert.Contains(t, res.Text, "Invoices are generated monthly")
}

func TestGetDoc_WholeFileContext(t *testing.T) {
	e := buildTestEngine(t, sampleChunks(), nil)
	ctxVal := -1
	res, err := e.GetDoc(context.Background(), docmodel.GetDocRequest{ChunkID: "docs/auth.md#login", Context: &ctxVal})
	require.NoError(t, err)
	assert.Contains(t, res.Text, "docs/auth.md#login")
	assert.Contains(t, res.Text, "docs/auth.md#logout")
}

func TestGetDoc_NeighborContext(t *testing.T) {
	e := buildTestEngine(t, sampleChunks(), nil)
	ctxVal := 1
	res, err := e.GetDoc(context.Background(), docmodel.GetDocRequest{ChunkID: "docs/auth.md#login", Context: &ctxVal})
	require.NoError(t, err)
	assert.Contains(t, res.Text, "docs/auth.md#login")
	assert.Contains(t, res.Text, "docs/auth.md#logout")
	assert.NotContains(t, res.Text, "Invoices")
}
