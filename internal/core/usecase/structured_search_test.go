package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/research-query-engine/internal/core/domain"
)

func TestStructuredSearcherEmptyQueriesSkipStore(t *testing.T) {
	store := &fakeJobStore{}
	searcher := NewStructuredSearcher(store, StructuredSearcherOptions{})

	results := searcher.Search(context.Background(), []string{}, 5)
	if results == nil || len(results) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", results)
	}
	if store.calls != 0 {
		t.Fatalf("expected zero store calls, got %d", store.calls)
	}
}

func TestStructuredSearcherShortWordsSkipStore(t *testing.T) {
	store := &fakeJobStore{}
	results := NewStructuredSearcher(store, StructuredSearcherOptions{}).Search(context.Background(), []string{"is a of", "to"}, 5)
	if len(results) != 0 || store.calls != 0 {
		t.Fatalf("expected no store call for short words, got calls=%d results=%d", store.calls, len(results))
	}
}

func TestStructuredSearcherBuildsKeywordsAndScores(t *testing.T) {
	created := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	store := &fakeJobStore{jobs: []domain.ResearchJob{
		{ID: "job-1", Query: "NIL research", Status: domain.JobStatusCompleted, Result: json.RawMessage(`{"summary":"NIL findings"}`), CreatedAt: created},
		{ID: "job-2", Query: "nil policies in mississippi", Status: domain.JobStatusCompleted, CreatedAt: created},
	}}
	searcher := NewStructuredSearcher(store, StructuredSearcherOptions{})

	results := searcher.Search(context.Background(), []string{"NIL policies Mississippi", "Mississippi athlete law"}, 7)

	want := []string{"NIL", "policies", "Mississippi", "athlete", "law"}
	if len(store.keywords) != len(want) {
		t.Fatalf("expected keywords %v, got %v", want, store.keywords)
	}
	for i := range want {
		if store.keywords[i] != want[i] {
			t.Fatalf("expected keywords %v, got %v", want, store.keywords)
		}
	}
	if store.limit != 7 {
		t.Fatalf("expected limit 7, got %d", store.limit)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].RelevanceScore != 0.33 {
		t.Fatalf("expected 0.33 overlap for job-1, got %v", results[0].RelevanceScore)
	}
	if results[1].RelevanceScore != 1 {
		t.Fatalf("expected full overlap for job-2, got %v", results[1].RelevanceScore)
	}
	if results[0].Summary == nil || *results[0].Summary != "NIL findings" {
		t.Fatalf("unexpected summary %v", results[0].Summary)
	}
	if results[1].Summary != nil {
		t.Fatalf("expected nil summary for empty result, got %q", *results[1].Summary)
	}
	if results[0].RecordID != "job-1" || !results[0].CreatedAt.Equal(created) {
		t.Fatalf("unexpected record mapping %+v", results[0])
	}
}

func TestStructuredSearcherStoreErrorReturnsEmpty(t *testing.T) {
	recorder := &countingRecorder{}
	store := &fakeJobStore{err: errors.New("connection refused")}
	results := NewStructuredSearcher(store, StructuredSearcherOptions{Recorder: recorder}).Search(context.Background(), []string{"housing policy"}, 5)
	if len(results) != 0 {
		t.Fatalf("expected empty results on store error, got %d", len(results))
	}
	if recorder.count(StageStructured) != 1 {
		t.Fatalf("expected structured fallback recorded")
	}
}

func TestExtractSummary(t *testing.T) {
	long := make([]byte, 0, 700)
	for i := 0; i < 700; i++ {
		long = append(long, 'x')
	}
	rawDoc, _ := json.Marshal(map[string]string{"raw": string(long)})

	cases := []struct {
		name   string
		in     string
		want   string
		isNull bool
	}{
		{name: "empty", in: "", isNull: true},
		{name: "null", in: "null", isNull: true},
		{name: "empty object", in: "{}", isNull: true},
		{name: "summary wins", in: `{"summary":"short","raw":"long"}`, want: "short"},
		{name: "raw head", in: string(rawDoc), want: string(long[:summaryMaxChars])},
		{name: "no fields", in: `{"other":1}`, want: ""},
		{name: "plain string", in: `"just text"`, want: "just text"},
		{name: "array", in: `[1,2]`, want: "[1,2]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := extractSummary(json.RawMessage(tc.in))
			if tc.isNull {
				if got != nil {
					t.Fatalf("expected nil, got %q", *got)
				}
				return
			}
			if got == nil || *got != tc.want {
				t.Fatalf("expected %q, got %v", tc.want, got)
			}
		})
	}
}

func TestScoreRelevanceTakesBestPhrase(t *testing.T) {
	score := scoreRelevance("Housing Policy in Atlanta", []string{"zoning reform", "housing policy"})
	if score != 1 {
		t.Fatalf("expected 1, got %v", score)
	}
	if got := scoreRelevance("anything", []string{"   "}); got != 0 {
		t.Fatalf("expected 0 for blank phrase, got %v", got)
	}
}
