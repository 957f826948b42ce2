// Package mcpadapter exposes the query engine as a Model Context Protocol tool.
package mcpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/research-query-engine/internal/core/domain"
	"github.com/kirillkom/research-query-engine/internal/core/ports"
)

const (
	ServerName    = "research-query-engine"
	QueryToolName = "query_research_data"
)

type Handler struct {
	queries ports.QueryService
}

func NewHandler(queries ports.QueryService) *Handler {
	return &Handler{queries: queries}
}

func NewServer(queries ports.QueryService, version string) *server.MCPServer {
	s := server.NewMCPServer(ServerName, version, server.WithToolCapabilities(false))
	s.AddTool(QueryTool(), NewHandler(queries).HandleQuery)
	return s
}

func QueryTool() mcp.Tool {
	return mcp.NewTool(QueryToolName,
		mcp.WithDescription("Answer a natural-language question from collected research: semantic matches over crawled content and past completed research jobs. Returns the answer and ranked sources as JSON."),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The question to answer."),
		),
		mcp.WithString("scope_id",
			mcp.Description("Restrict semantic search to content collected by one research job."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results per search (1-50, default 10)."),
			mcp.Min(1),
			mcp.Max(50),
		),
	)
}

func (h *Handler) HandleQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question := strings.TrimSpace(request.GetString("question", ""))
	if question == "" {
		return mcp.NewToolResultError("question is required"), nil
	}
	limit := request.GetInt("limit", 0)
	if limit < 0 || limit > 50 {
		return mcp.NewToolResultError("limit must be between 1 and 50"), nil
	}

	result, err := h.queries.Query(ctx, domain.QueryRequest{
		Question: question,
		ScopeID:  strings.TrimSpace(request.GetString("scope_id", "")),
		Limit:    limit,
	})
	if err != nil {
		slog.Warn("mcp_query_failed", "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	body, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(body)), nil
}
