// Package mcpserver implements the Model Context Protocol server exposing
// search_docs and get_doc against a query engine.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/docsmcp/docsmcp/internal/docmodel"
	"github.com/docsmcp/docsmcp/internal/telemetry"
)

const (
	defaultSearchDocsDescription = "Search indexed documentation using hybrid lexical and semantic matching. " +
		"Returns ranked chunks with breadcrumbs and snippets; use taxonomy filters to narrow scope."
	defaultGetDocDescription = "Fetch the full text of a chunk, or its neighboring chunks, or the whole file it came from."
)

// Engine is the subset of queryengine.Engine the server depends on.
type Engine interface {
	Search(ctx context.Context, req docmodel.SearchRequest) (*docmodel.SearchResult, error)
	GetDoc(ctx context.Context, req docmodel.GetDocRequest) (*docmodel.GetDocResult, error)
}

// Server bridges an Engine to MCP clients over stdio.
type Server struct {
	mcp     *mcp.Server
	engine  Engine
	logger  *slog.Logger
	metrics *telemetry.QueryMetrics
}

// Config configures tool descriptions and server identity.
type Config struct {
	Name                  string
	Version               string
	SearchDocsDescription string
	GetDocDescription     string
}

// New builds a Server. Descriptions from the corpus metadata sidecar
// (tool_descriptions.search / tool_descriptions.get_doc) override the
// package defaults when non-empty.
func New(engine Engine, cfg Config) (*Server, error) {
	if engine == nil {
		return nil, errors.New("query engine is required")
	}
	if cfg.Name == "" {
		cfg.Name = "docsmcp"
	}
	if cfg.SearchDocsDescription == "" {
		cfg.SearchDocsDescription = defaultSearchDocsDescription
	}
	if cfg.GetDocDescription == "" {
		cfg.GetDocDescription = defaultGetDocDescription
	}

	s := &Server{engine: engine, logger: slog.Default(), metrics: telemetry.NewQueryMetrics(nil)}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: cfg.Name, Version: cfg.Version}, nil)
	s.registerTools(cfg)
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools(cfg Config) {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_docs",
		Description: cfg.SearchDocsDescription,
	}, s.handleSearchDocs)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_doc",
		Description: cfg.GetDocDescription,
	}, s.handleGetDoc)

	s.logger.Debug("mcp tools registered", slog.Int("count", 2))
}

// Serve runs the server over stdio until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp server stopped")
	return nil
}

// MapError converts an internal error to an MCP protocol error.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "request timed out"}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "request was canceled"}
	default:
		return &MCPError{Code: ErrCodeInvalidParams, Message: err.Error()}
	}
}

// MCPError is a JSON-RPC style error with a numeric code.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

const (
	ErrCodeInvalidParams = -32602
	ErrCodeTimeout       = -32003
)
