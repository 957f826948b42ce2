package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/research-query-engine/internal/core/domain"
)

type fakeQueryService struct {
	err   error
	calls []domain.QueryRequest
}

func (f *fakeQueryService) Query(_ context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.QueryResult{
		Answer:  "answer",
		Query:   req.Question,
		Sources: []domain.SourceReference{{URL: "job://job-1", Title: "Research: q", SourceType: domain.DataSourceStructured, RelevanceScore: 1}},
	}, nil
}

func callTool(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = QueryToolName
	req.Params.Arguments = args
	return req
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) != 1 {
		t.Fatalf("expected single content item, got %d", len(result.Content))
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func TestHandleQueryReturnsResultJSON(t *testing.T) {
	service := &fakeQueryService{}
	handler := NewHandler(service)

	result, err := handler.HandleQuery(context.Background(), callTool(map[string]any{
		"question": "  NIL policies?  ",
		"scope_id": "job-1",
		"limit":    float64(4),
	}))
	if err != nil {
		t.Fatalf("HandleQuery() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", textOf(t, result))
	}
	if len(service.calls) != 1 || service.calls[0].Question != "NIL policies?" || service.calls[0].ScopeID != "job-1" || service.calls[0].Limit != 4 {
		t.Fatalf("unexpected request %+v", service.calls)
	}

	var decoded domain.QueryResult
	if err := json.Unmarshal([]byte(textOf(t, result)), &decoded); err != nil {
		t.Fatalf("decode tool output: %v", err)
	}
	if decoded.Answer != "answer" || len(decoded.Sources) != 1 || decoded.Sources[0].SourceType != domain.DataSourceStructured {
		t.Fatalf("unexpected result %+v", decoded)
	}
}

func TestHandleQueryRejectsBlankQuestion(t *testing.T) {
	service := &fakeQueryService{}
	result, err := NewHandler(service).HandleQuery(context.Background(), callTool(map[string]any{"question": "   "}))
	if err != nil {
		t.Fatalf("HandleQuery() error = %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected tool error result")
	}
	if len(service.calls) != 0 {
		t.Fatalf("engine must not run for blank question")
	}
}

func TestHandleQueryRejectsOutOfRangeLimit(t *testing.T) {
	service := &fakeQueryService{}
	result, _ := NewHandler(service).HandleQuery(context.Background(), callTool(map[string]any{"question": "q", "limit": float64(99)}))
	if !result.IsError || len(service.calls) != 0 {
		t.Fatalf("expected rejection without engine call")
	}
}

func TestHandleQuerySurfacesEngineErrorAsToolError(t *testing.T) {
	service := &fakeQueryService{err: errors.New("engine down")}
	result, err := NewHandler(service).HandleQuery(context.Background(), callTool(map[string]any{"question": "q"}))
	if err != nil {
		t.Fatalf("HandleQuery() error = %v", err)
	}
	if !result.IsError || textOf(t, result) != "engine down" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestQueryToolDeclaresRequiredQuestion(t *testing.T) {
	tool := QueryTool()
	if tool.Name != QueryToolName {
		t.Fatalf("unexpected tool name %q", tool.Name)
	}
	if len(tool.InputSchema.Required) != 1 || tool.InputSchema.Required[0] != "question" {
		t.Fatalf("unexpected required fields %v", tool.InputSchema.Required)
	}
}
