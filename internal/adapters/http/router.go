package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kirillkom/research-query-engine/internal/config"
	"github.com/kirillkom/research-query-engine/internal/core/domain"
	"github.com/kirillkom/research-query-engine/internal/core/ports"
	"github.com/kirillkom/research-query-engine/internal/observability/metrics"
)

const (
	serviceName     = "query-api"
	maxRequestBytes = 1 << 20
)

type Router struct {
	cfg      config.Config
	queries  ports.QueryService
	metrics  *metrics.HTTPServerMetrics
	contract *apiContract
}

func NewRouter(cfg config.Config, queries ports.QueryService, httpMetrics *metrics.HTTPServerMetrics) (*Router, error) {
	contract, err := loadAPIContract()
	if err != nil {
		return nil, err
	}
	return &Router{
		cfg:      cfg,
		queries:  queries,
		metrics:  httpMetrics,
		contract: contract,
	}, nil
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware)
	if rt.metrics != nil {
		r.Use(func(next http.Handler) http.Handler {
			return rt.metrics.Middleware(serviceName, next)
		})
	}

	r.Get("/healthz", rt.healthz)
	r.Get("/openapi.json", rt.openAPI)
	if rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(bearerAuthMiddleware(rt.cfg.APIKey))
		r.Use(func(next http.Handler) http.Handler {
			return rateLimitMiddleware(next, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.recordRejection)
		})
		r.Use(func(next http.Handler) http.Handler {
			wait := time.Duration(rt.cfg.APIBackpressureWaitMS) * time.Millisecond
			return backpressureGate(next, rt.cfg.APIBackpressureMaxInFlight, wait, rt.recordRejection)
		})
		r.Post("/query", rt.query)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) openAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rt.contract.document)
}

type queryRequestBody struct {
	Question string `json:"question"`
	ScopeID  string `json:"scopeID"`
	Limit    int    `json:"limit"`
}

func (rt *Router) query(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, "could not read request body")
		return
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json")
		return
	}
	if err := rt.contract.validateQueryRequest(generic); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, "invalid request: "+err.Error())
		return
	}

	var req queryRequestBody
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, "invalid request: "+err.Error())
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		writeError(w, r, http.StatusUnprocessableEntity, "question is required")
		return
	}

	start := time.Now()
	result, err := rt.queries.Query(r.Context(), domain.QueryRequest{
		Question: question,
		ScopeID:  strings.TrimSpace(req.ScopeID),
		Limit:    req.Limit,
	})
	if err != nil {
		status := mapErrorToHTTPStatus(err)
		if status >= http.StatusInternalServerError {
			slog.Error("query_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
		}
		writeError(w, r, status, err.Error())
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordQueryObservation(serviceName, "/query", len(result.Sources), time.Since(start))
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) recordRejection(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejection(serviceName, reason)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	body := map[string]string{"error": message}
	if requestID := requestIDFromContext(r.Context()); requestID != "" {
		body["request_id"] = requestID
	}
	writeJSON(w, status, body)
}
