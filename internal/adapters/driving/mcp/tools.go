package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/quarry/internal/core/domain"
)

// QueryInput is the input schema for the query tool.
type QueryInput struct {
	Query  string `json:"query" jsonschema:"the search query to find document chunks"`
	Mode   string `json:"mode,omitempty" jsonschema:"search mode: hybrid, keyword or vector (default hybrid)"`
	TopK   int    `json:"top_k,omitempty" jsonschema:"maximum number of results to return (default 10)"`
	UserID string `json:"user_id,omitempty" jsonschema:"restrict results to documents ingested with this user id"`
}

// QueryOutput is the output schema for the query tool.
type QueryOutput struct {
	Results []QueryResultOutput `json:"results"`
	Count   int                 `json:"count"`
}

// QueryResultOutput represents a single search hit.
type QueryResultOutput struct {
	ChunkKey   string  `json:"chunk_key"`
	DocumentID int64   `json:"document_id"`
	Title      string  `json:"title"`
	FileName   string  `json:"file_name"`
	Score      float64 `json:"score"`
	Snippet    string  `json:"snippet,omitempty"`
}

// StatusInput is the input schema for the document_status tool.
type StatusInput struct {
	DocumentID int64 `json:"document_id" jsonschema:"the document id to report ingestion status for"`
}

// StatusOutput is the output schema for the document_status tool.
type StatusOutput struct {
	DocumentID int64  `json:"document_id"`
	Stage      string `json:"stage"`
	Running    bool   `json:"running"`
	Error      string `json:"error,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "query",
		Description: "Search ingested documents with hybrid keyword and semantic retrieval",
	}, s.handleQuery)

	if s.ports.Ingest != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "document_status",
			Description: "Report the ingestion status of a document",
		}, s.handleStatus)
	}
}

// handleQuery handles the query tool invocation.
func (s *Server) handleQuery(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input QueryInput,
) (*mcp.CallToolResult, QueryOutput, error) {
	opts := domain.QueryOptions{
		TopK:   input.TopK,
		Mode:   domain.SearchMode(input.Mode),
		Filter: domain.NewAttributionFilter(domain.Attribution{UserID: input.UserID}),
	}

	results, err := s.ports.Query.Query(ctx, input.Query, opts)
	if err != nil {
		return nil, QueryOutput{}, err
	}

	output := QueryOutput{
		Results: make([]QueryResultOutput, len(results)),
		Count:   len(results),
	}

	for i := range results {
		output.Results[i] = QueryResultOutput{
			ChunkKey:   results[i].ChunkKey,
			DocumentID: results[i].DocumentID,
			Title:      results[i].Title,
			FileName:   results[i].FileName,
			Score:      results[i].Score,
			Snippet:    results[i].Snippet,
		}
	}

	return nil, output, nil
}

// handleStatus handles the document_status tool invocation.
func (s *Server) handleStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	status, err := s.ports.Ingest.Status(ctx, input.DocumentID)
	if err != nil {
		return nil, StatusOutput{}, err
	}

	return nil, StatusOutput{
		DocumentID: status.DocumentID,
		Stage:      status.Stage,
		Running:    status.Running,
		Error:      status.Error,
	}, nil
}
