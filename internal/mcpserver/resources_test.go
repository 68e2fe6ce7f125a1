package mcpserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsmcp/docsmcp/internal/docmodel"
)

func TestQueryMetricsResource_ReflectsRecordedSearches(t *testing.T) {
	fe := &fakeEngine{searchResult: &docmodel.SearchResult{Hits: []docmodel.SearchHit{{ChunkID: "a#b"}}}}
	s, err := New(fe, Config{})
	require.NoError(t, err)

	_, _, err = s.handleSearchDocs(context.Background(), nil, SearchDocsInput{Query: "login flow", VectorWeight: 1})
	require.NoError(t, err)

	fe.searchResult = &docmodel.SearchResult{Hits: nil}
	_, _, err = s.handleSearchDocs(context.Background(), nil, SearchDocsInput{Query: "nonexistent term"})
	require.NoError(t, err)

	handler := s.makeQueryMetricsHandler()
	result, err := handler(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, result.Contents, 1)
	assert.Equal(t, queryMetricsURI, result.Contents[0].URI)
	assert.Equal(t, "application/json", result.Contents[0].MIMEType)

	var output QueryMetricsOutput
	require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &output))
	assert.EqualValues(t, 2, output.Summary.TotalQueries)
	assert.Equal(t, int64(1), output.QueryTypeCounts["mixed"])
	assert.Equal(t, int64(1), output.QueryTypeCounts["lexical"])
	assert.Contains(t, output.ZeroResultQueries, "nonexistent term")
}

func TestClassifyQuery_VectorWeightSelectsMixed(t *testing.T) {
	assert.Equal(t, "mixed", string(classifyQuery(1)))
	assert.Equal(t, "lexical", string(classifyQuery(0)))
}

func TestQueryMetricsResource_LatencyRecorded(t *testing.T) {
	fe := &fakeEngine{searchResult: &docmodel.SearchResult{Hits: []docmodel.SearchHit{{ChunkID: "a#b"}}}}
	s, err := New(fe, Config{})
	require.NoError(t, err)

	_, _, err = s.handleSearchDocs(context.Background(), nil, SearchDocsInput{Query: "x"})
	require.NoError(t, err)

	snapshot := s.metrics.Snapshot()
	var total int64
	for _, n := range snapshot.LatencyDistribution {
		total += n
	}
	assert.Equal(t, int64(1), total)
	assert.True(t, snapshot.Since.Before(time.Now().Add(time.Second)))
}
