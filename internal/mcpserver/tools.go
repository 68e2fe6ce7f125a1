package mcpserver

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/docsmcp/docsmcp/internal/docmodel"
	"github.com/docsmcp/docsmcp/internal/telemetry"
)

// SearchDocsInput is the search_docs tool's input schema.
type SearchDocsInput struct {
	Query        string            `json:"query" jsonschema:"the search query to execute"`
	Limit        int               `json:"limit,omitempty" jsonschema:"maximum number of results, default 10, max 50"`
	Cursor       string            `json:"cursor,omitempty" jsonschema:"opaque pagination cursor from a previous response"`
	Filters      map[string]string `json:"filters,omitempty" jsonschema:"taxonomy key/value filters, e.g. {\"language\":\"go\"}"`
	MatchWeight  float64           `json:"match_weight,omitempty" jsonschema:"RRF weight for lexical match signal, default 1.0"`
	PhraseWeight float64           `json:"phrase_weight,omitempty" jsonschema:"RRF weight for phrase/proximity signal, default 1.25"`
	VectorWeight float64           `json:"vector_weight,omitempty" jsonschema:"RRF weight for vector similarity signal, default 1.0"`
}

// SearchDocsOutput is the search_docs tool's output schema.
type SearchDocsOutput struct {
	Hits       []docmodel.SearchHit `json:"hits"`
	NextCursor *string              `json:"next_cursor,omitempty"`
	Hint       *docmodel.SearchHint `json:"hint,omitempty"`
}

// GetDocInput is the get_doc tool's input schema.
type GetDocInput struct {
	ChunkID string `json:"chunk_id" jsonschema:"the chunk_id to fetch"`
	Context *int   `json:"context,omitempty" jsonschema:"neighbor chunks on each side, 0-5, or -1 for the whole file; default 0"`
}

// GetDocOutput is the get_doc tool's output schema.
type GetDocOutput struct {
	Text string `json:"text"`
}

func (s *Server) handleSearchDocs(ctx context.Context, _ *mcp.CallToolRequest, input SearchDocsInput) (
	*mcp.CallToolResult,
	SearchDocsOutput,
	error,
) {
	req := docmodel.SearchRequest{
		Query:   input.Query,
		Limit:   input.Limit,
		Cursor:  input.Cursor,
		Filters: input.Filters,
	}
	if input.MatchWeight > 0 || input.PhraseWeight > 0 || input.VectorWeight > 0 {
		req.RRFWeights = &docmodel.RRFWeights{
			Match:  input.MatchWeight,
			Phrase: input.PhraseWeight,
			Vector: input.VectorWeight,
		}
	}

	start := time.Now()
	result, err := s.engine.Search(ctx, req)
	latency := time.Since(start)
	if err != nil {
		return nil, SearchDocsOutput{}, MapError(err)
	}

	s.metrics.Record(telemetry.QueryEvent{
		Query:       input.Query,
		QueryType:   classifyQuery(input.VectorWeight),
		ResultCount: len(result.Hits),
		Latency:     latency,
		Timestamp:   start,
	})

	return nil, SearchDocsOutput{
		Hits:       result.Hits,
		NextCursor: result.NextCursor,
		Hint:       result.Hint,
	}, nil
}

func (s *Server) handleGetDoc(ctx context.Context, _ *mcp.CallToolRequest, input GetDocInput) (
	*mcp.CallToolResult,
	GetDocOutput,
	error,
) {
	result, err := s.engine.GetDoc(ctx, docmodel.GetDocRequest{
		ChunkID: input.ChunkID,
		Context: input.Context,
	})
	if err != nil {
		return nil, GetDocOutput{}, MapError(err)
	}

	return nil, GetDocOutput{Text: result.Text}, nil
}
