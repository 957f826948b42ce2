package elasticsearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestIndex(t *testing.T, handler http.HandlerFunc) *JobIndex {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	index, err := NewJobIndex(Config{Addresses: []string{server.URL}, Index: "jobs"})
	if err != nil {
		t.Fatalf("NewJobIndex() error = %v", err)
	}
	return index
}

func TestFindCompletedBuildsBoolQuery(t *testing.T) {
	var captured map[string]any
	index := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/jobs/_search") {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"hits":{"hits":[
			{"_id":"doc-1","_source":{"job_id":"job-1","query":"NIL policies","status":"completed","result":{"summary":"short"},"created_at":"2026-03-01T12:00:00Z"}},
			{"_id":"doc-2","_source":{"query":"Mississippi","status":"completed","result":null,"created_at":"2026-02-01T12:00:00Z"}}
		]}}`))
	})

	jobs, err := index.FindCompleted(context.Background(), []string{"NIL", "Mississippi"}, 4)
	if err != nil {
		t.Fatalf("FindCompleted() error = %v", err)
	}

	if captured["size"] != float64(4) {
		t.Fatalf("expected size 4, got %v", captured["size"])
	}
	boolQuery := captured["query"].(map[string]any)["bool"].(map[string]any)
	if boolQuery["minimum_should_match"] != float64(1) {
		t.Fatalf("unexpected minimum_should_match %v", boolQuery["minimum_should_match"])
	}
	if should := boolQuery["should"].([]any); len(should) != 2 {
		t.Fatalf("expected a should clause per keyword, got %v", should)
	}
	filter := boolQuery["filter"].([]any)[0].(map[string]any)["term"].(map[string]any)
	if filter["status"] != "completed" {
		t.Fatalf("unexpected status filter %v", filter)
	}

	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != "job-1" || string(jobs[0].Result) != `{"summary":"short"}` {
		t.Fatalf("unexpected first job %+v", jobs[0])
	}
	if !jobs[0].CreatedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected created_at %v", jobs[0].CreatedAt)
	}
	if jobs[1].ID != "doc-2" || jobs[1].Result != nil {
		t.Fatalf("expected _id fallback and nil result, got %+v", jobs[1])
	}
}

func TestFindCompletedReturnsErrorOnFailureStatus(t *testing.T) {
	index := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"parsing_exception"}}`))
	})

	_, err := index.FindCompleted(context.Background(), []string{"NIL"}, 4)
	if err == nil || !strings.Contains(err.Error(), "parsing_exception") {
		t.Fatalf("expected error with body, got %v", err)
	}
}

func TestFindCompletedSkipsSearchWithoutKeywords(t *testing.T) {
	index := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	})

	jobs, err := index.FindCompleted(context.Background(), []string{}, 4)
	if err != nil || len(jobs) != 0 {
		t.Fatalf("expected empty result, got %v %v", jobs, err)
	}
}
