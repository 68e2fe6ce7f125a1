package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/docsmcp/docsmcp/internal/telemetry"
)

const queryMetricsURI = "docsmcp://query_metrics"

// QueryMetricsOutput is the JSON body of the query_metrics resource.
type QueryMetricsOutput struct {
	Summary             QueryMetricsSummary `json:"summary"`
	QueryTypeCounts     map[string]int64    `json:"query_type_counts"`
	TopTerms            []QueryTermCount    `json:"top_terms"`
	ZeroResultQueries   []string            `json:"zero_result_queries"`
	LatencyDistribution map[string]int64    `json:"latency_distribution"`
}

// QueryMetricsSummary is the headline stats block of QueryMetricsOutput.
type QueryMetricsSummary struct {
	TotalQueries  int64   `json:"total_queries"`
	TimePeriod    string  `json:"time_period"`
	ZeroResultPct float64 `json:"zero_result_pct"`
}

// QueryTermCount is a search term and how often it occurred.
type QueryTermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

func (s *Server) registerResources() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "query_metrics",
			URI:         queryMetricsURI,
			Description: "Query pattern telemetry (query types, top terms, zero-result queries, latency buckets) for this server's session",
			MIMEType:    "application/json",
		},
		s.makeQueryMetricsHandler(),
	)

	s.logger.Debug("mcp resources registered", slog.Int("count", 1))
}

func (s *Server) makeQueryMetricsHandler() mcp.ResourceHandler {
	return func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		snapshot := s.metrics.Snapshot()

		output := QueryMetricsOutput{
			Summary: QueryMetricsSummary{
				TotalQueries:  snapshot.TotalQueries,
				TimePeriod:    "session",
				ZeroResultPct: snapshot.ZeroResultPercentage(),
			},
			QueryTypeCounts:     make(map[string]int64, len(snapshot.QueryTypeCounts)),
			TopTerms:            make([]QueryTermCount, 0, len(snapshot.TopTerms)),
			ZeroResultQueries:   snapshot.ZeroResultQueries,
			LatencyDistribution: make(map[string]int64, len(snapshot.LatencyDistribution)),
		}
		for qt, count := range snapshot.QueryTypeCounts {
			output.QueryTypeCounts[string(qt)] = count
		}
		for _, tc := range snapshot.TopTerms {
			output.TopTerms = append(output.TopTerms, QueryTermCount{Term: tc.Term, Count: tc.Count})
		}
		for bucket, count := range snapshot.LatencyDistribution {
			output.LatencyDistribution[string(bucket)] = count
		}

		content, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			return nil, MapError(err)
		}

		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      queryMetricsURI,
					MIMEType: "application/json",
					Text:     string(content),
				},
			},
		}, nil
	}
}

// classifyQuery reports the telemetry QueryType for a request. A request
// that assigns nonzero weight to the vector signal is recorded as mixed;
// whether the engine actually had an embedding provider to honor it is
// not visible at this layer.
func classifyQuery(vectorWeight float64) telemetry.QueryType {
	if vectorWeight > 0 {
		return telemetry.QueryTypeMixed
	}
	return telemetry.QueryTypeLexical
}
