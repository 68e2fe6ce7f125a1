package mcpserver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsmcp/docsmcp/internal/docmodel"
)

type fakeEngine struct {
	searchResult *docmodel.SearchResult
	searchErr    error
	getDocResult *docmodel.GetDocResult
	getDocErr    error
	lastSearch   docmodel.SearchRequest
	lastGetDoc   docmodel.GetDocRequest
}

func (f *fakeEngine) Search(ctx context.Context, req docmodel.SearchRequest) (*docmodel.SearchResult, error) {
	f.lastSearch = req
	return f.searchResult, f.searchErr
}

func (f *fakeEngine) GetDoc(ctx context.Context, req docmodel.GetDocRequest) (*docmodel.GetDocResult, error) {
	f.lastGetDoc = req
	return f.getDocResult, f.getDocErr
}

func TestNew_RejectsNilEngine(t *testing.T) {
	_, err := New(nil, Config{})
	assert.Error(t, err)
}

func TestNew_AppliesDefaultDescriptionsAndName(t *testing.T) {
	s, err := New(&fakeEngine{}, Config{})
	require.NoError(t, err)
	assert.NotNil(t, s.MCPServer())
}

func TestHandleSearchDocs_PassesThroughRequestFields(t *testing.T) {
	fe := &fakeEngine{searchResult: &docmodel.SearchResult{Hits: []docmodel.SearchHit{{ChunkID: "a#b"}}}}
	s, err := New(fe, Config{})
	require.NoError(t, err)

	out, _, err := s.handleSearchDocs(context.Background(), nil, SearchDocsInput{
		Query: "login", Limit: 5, Filters: map[string]string{"language": "go"},
		MatchWeight: 2, PhraseWeight: 1, VectorWeight: 1,
	})
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, "login", fe.lastSearch.Query)
	assert.Equal(t, 5, fe.lastSearch.Limit)
	require.NotNil(t, fe.lastSearch.RRFWeights)
	assert.Equal(t, 2.0, fe.lastSearch.RRFWeights.Match)
}

func TestHandleSearchDocs_MapsEngineError(t *testing.T) {
	fe := &fakeEngine{searchErr: errors.New("query must not be empty")}
	s, err := New(fe, Config{})
	require.NoError(t, err)

	_, _, err = s.handleSearchDocs(context.Background(), nil, SearchDocsInput{Query: ""})
	assert.Error(t, err)
	var mcpErr *MCPError
	assert.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestHandleGetDoc_PassesThroughChunkIDAndContext(t *testing.T) {
	fe := &fakeEngine{getDocResult: &docmodel.GetDocResult{Text: "block"}}
	s, err := New(fe, Config{})
	require.NoError(t, err)

	ctxVal := 2
	_, output, err := s.handleGetDoc(context.Background(), nil, GetDocInput{ChunkID: "docs/a.md#h", Context: &ctxVal})
	require.NoError(t, err)
	assert.Equal(t, "block", output.Text)
	assert.Equal(t, "docs/a.md#h", fe.lastGetDoc.ChunkID)
	require.NotNil(t, fe.lastGetDoc.Context)
	assert.Equal(t, 2, *fe.lastGetDoc.Context)
}

func TestMapError_TimeoutMapsToTimeoutCode(t *testing.T) {
	err := MapError(context.DeadlineExceeded)
	assert.Equal(t, ErrCodeTimeout, err.Code)
}

func TestMapError_NilIsNil(t *testing.T) {
	assert.Nil(t, MapError(nil))
}
