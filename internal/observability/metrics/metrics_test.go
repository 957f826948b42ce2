package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"
)

func TestHTTPMiddlewareRecordsNormalizedPath(t *testing.T) {
	m := NewHTTPServerMetrics("query-api")
	handler := m.Middleware("query-api", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))

	for _, path := range []string{"/query", "/random/a", "/random/b"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, path, nil))
	}

	if got := testutil.ToFloat64(m.requestTotal.WithLabelValues("query-api", http.MethodPost, "/query", "422")); got != 1 {
		t.Fatalf("expected one /query request, got %v", got)
	}
	if got := testutil.ToFloat64(m.requestTotal.WithLabelValues("query-api", http.MethodPost, "other", "422")); got != 2 {
		t.Fatalf("expected unknown paths collapsed, got %v", got)
	}
}

func TestRecordQueryObservationCountsEmptyAnswers(t *testing.T) {
	m := NewHTTPServerMetrics("query-api")
	m.RecordQueryObservation("query-api", "/query", 0, time.Second)
	m.RecordQueryObservation("query-api", "/query", 3, time.Second)

	if got := testutil.ToFloat64(m.queryTotal.WithLabelValues("query-api", "/query")); got != 2 {
		t.Fatalf("expected 2 queries, got %v", got)
	}
	if got := testutil.ToFloat64(m.queryNoSourceTotal.WithLabelValues("query-api", "/query")); got != 1 {
		t.Fatalf("expected 1 empty query, got %v", got)
	}
}

func TestPipelineMetricsExposedOnHandler(t *testing.T) {
	m := NewWorkerMetrics("query-worker")
	m.Pipeline().RecordFallback("parser")
	m.Pipeline().ObserveBreakerState("ollama.generate", gobreaker.StateClosed, gobreaker.StateOpen)
	m.StartQuery()
	m.FinishQuery("query-worker", 2*time.Second, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`nlq_pipeline_fallbacks_total{service="query-worker",stage="parser"} 1`,
		`nlq_dependency_circuit_state{operation="ollama.generate",service="query-worker"} 2`,
		`nlq_worker_query_process_total{service="query-worker",status="success"} 1`,
		`nlq_worker_query_process_in_flight{service="query-worker"} 0`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, body)
		}
	}
}
