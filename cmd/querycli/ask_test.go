package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/kirillkom/research-query-engine/internal/core/domain"
)

type fakeQueryService struct {
	got    domain.QueryRequest
	result *domain.QueryResult
	err    error
}

func (f *fakeQueryService) Query(_ context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
	f.got = req
	return f.result, f.err
}

func newAskTestCommand(t *testing.T, flags ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "ask"}
	cmd.Flags().String("scope", "", "")
	cmd.Flags().Int("limit", 0, "")
	if err := cmd.Flags().Parse(flags); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return cmd
}

func TestAskRequestJoinsArgsAndReadsFlags(t *testing.T) {
	cmd := newAskTestCommand(t, "--scope", "job-1", "--limit", "5")
	req, err := askRequest(cmd, []string{"  what", "about", "pricing?  "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Question != "what about pricing?" || req.ScopeID != "job-1" || req.Limit != 5 {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestAskRequestRejectsBlankQuestionAndBadLimit(t *testing.T) {
	if _, err := askRequest(newAskTestCommand(t), []string{"   "}); err == nil {
		t.Fatalf("expected error for blank question")
	}
	if _, err := askRequest(newAskTestCommand(t, "--limit", "51"), []string{"q"}); err == nil {
		t.Fatalf("expected error for limit above 50")
	}
}

func TestAskPrintsAnswerAndSources(t *testing.T) {
	svc := &fakeQueryService{result: &domain.QueryResult{
		Answer: "Competitors lowered prices.",
		Query:  "pricing",
		Sources: []domain.SourceReference{
			{URL: "https://a.example", Title: "Pricing report", SourceType: domain.DataSourceVector, RelevanceScore: 0.91},
			{URL: "https://b.example", SourceType: domain.DataSourceStructured, RelevanceScore: 0.5},
		},
	}}
	var out bytes.Buffer
	if err := ask(context.Background(), svc, domain.QueryRequest{Question: "pricing"}, &out, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := out.String()
	for _, want := range []string{
		"Competitors lowered prices.",
		"[1] Pricing report (vector, 0.91)",
		"https://a.example",
		"[2] https://b.example (structured, 0.50)",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}
}

func TestAskJSONOutput(t *testing.T) {
	svc := &fakeQueryService{result: &domain.QueryResult{Answer: "a", Query: "q", Sources: []domain.SourceReference{}}}
	var out bytes.Buffer
	if err := ask(context.Background(), svc, domain.QueryRequest{Question: "q"}, &out, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded domain.QueryResult
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json output: %v", err)
	}
	if decoded.Answer != "a" || decoded.Query != "q" {
		t.Fatalf("unexpected decoded result: %+v", decoded)
	}
}

func TestAskPropagatesServiceError(t *testing.T) {
	svc := &fakeQueryService{err: domain.WrapError(domain.ErrTemporary, "query", errors.New("no workers"))}
	err := ask(context.Background(), svc, domain.QueryRequest{Question: "q"}, &bytes.Buffer{}, false)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}
