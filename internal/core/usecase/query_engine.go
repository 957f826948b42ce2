package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kirillkom/research-query-engine/internal/core/domain"
	"github.com/kirillkom/research-query-engine/internal/core/ports"
)

const (
	DefaultQueryLimit          = 10
	DefaultMaxQueryLimit       = 50
	DefaultSimilarityThreshold = 0.7
)

type QueryEngineOptions struct {
	DefaultLimit               int
	MaxLimit                   int
	DefaultSimilarityThreshold float64
	// Timeout bounds a whole query; expiry drives every stage into its fallback.
	Timeout       time.Duration
	SearchTimeout time.Duration
	Recorder      FallbackRecorder
}

func (o QueryEngineOptions) normalize() QueryEngineOptions {
	out := o
	if out.DefaultLimit <= 0 {
		out.DefaultLimit = DefaultQueryLimit
	}
	if out.MaxLimit <= 0 {
		out.MaxLimit = DefaultMaxQueryLimit
	}
	if out.DefaultLimit > out.MaxLimit {
		out.DefaultLimit = out.MaxLimit
	}
	if out.DefaultSimilarityThreshold <= 0 || out.DefaultSimilarityThreshold > 1 {
		out.DefaultSimilarityThreshold = DefaultSimilarityThreshold
	}
	return out
}

// QueryEngine runs parse, search fan-out, merge and synthesis for one question.
// It keeps no per-query state and is safe for concurrent use.
type QueryEngine struct {
	parser     ports.QueryParser
	vector     ports.VectorSearcher
	structured ports.StructuredSearcher
	fusion     *ResultFusion
	opts       QueryEngineOptions
	recorder   FallbackRecorder
}

func NewQueryEngine(
	parser ports.QueryParser,
	vector ports.VectorSearcher,
	structured ports.StructuredSearcher,
	fusion *ResultFusion,
	opts QueryEngineOptions,
) *QueryEngine {
	opts = opts.normalize()
	return &QueryEngine{
		parser:     parser,
		vector:     vector,
		structured: structured,
		fusion:     fusion,
		opts:       opts,
		recorder:   recorderOrNoop(opts.Recorder),
	}
}

func (e *QueryEngine) Query(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "query", fmt.Errorf("question is required"))
	}
	limit := e.resolveLimit(req.Limit)
	threshold := e.opts.DefaultSimilarityThreshold
	if req.SimilarityThreshold != nil {
		threshold = *req.SimilarityThreshold
		if threshold < 0 || threshold > 1 {
			return nil, domain.WrapError(domain.ErrInvalidInput, "query", fmt.Errorf("similarity threshold %v outside [0, 1]", threshold))
		}
	}
	scopeID := strings.TrimSpace(req.ScopeID)

	ctx, cancel := withOptionalTimeout(ctx, e.opts.Timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "query_engine.query")
	defer span.End()
	span.SetAttributes(
		attribute.Int("limit", limit),
		attribute.Float64("similarity_threshold", threshold),
		attribute.Bool("scoped", scopeID != ""),
	)

	parsed := e.parser.Parse(ctx, question)
	slog.Info("query_parsed",
		"intent", parsed.Intent,
		"entities", parsed.Entities,
		"data_sources", parsed.DataSources,
		"search_queries", len(parsed.SearchQueries),
	)

	var (
		wg                sync.WaitGroup
		vectorHits        []domain.VectorHit
		structuredResults []domain.StructuredResult
	)
	if parsed.Uses(domain.DataSourceVector) && e.vector != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vectorHits = e.searchVector(ctx, parsed.SearchQueries, scopeID, limit, threshold)
		}()
	}
	if parsed.Uses(domain.DataSourceStructured) && e.structured != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			structuredResults = e.structured.Search(ctx, parsed.SearchQueries, limit)
		}()
	}
	wg.Wait()

	sources := e.fusion.MergeAndRank(vectorHits, structuredResults)
	span.SetAttributes(
		attribute.Int("vector_hits", len(vectorHits)),
		attribute.Int("structured_results", len(structuredResults)),
		attribute.Int("sources", len(sources)),
	)

	result := e.fusion.Synthesize(ctx, question, sources)
	return &result, nil
}

func (e *QueryEngine) resolveLimit(limit int) int {
	if limit <= 0 {
		return e.opts.DefaultLimit
	}
	if limit > e.opts.MaxLimit {
		return e.opts.MaxLimit
	}
	return limit
}

// searchVector queries every phrase concurrently and concatenates hits in phrase order.
// A failed phrase contributes no hits.
func (e *QueryEngine) searchVector(ctx context.Context, phrases []string, scopeID string, limit int, threshold float64) []domain.VectorHit {
	ctx, span := tracer.Start(ctx, "query_engine.vector_search")
	defer span.End()

	perPhrase := make([][]domain.VectorHit, len(phrases))
	var wg sync.WaitGroup
	for i, phrase := range phrases {
		wg.Add(1)
		go func(i int, phrase string) {
			defer wg.Done()
			callCtx, cancel := withOptionalTimeout(ctx, e.opts.SearchTimeout)
			defer cancel()

			hits, err := e.vector.SearchSimilar(callCtx, phrase, scopeID, limit, threshold)
			if err != nil {
				slog.Warn("vector_search_failed",
					"error", err,
					"phrase_index", i,
					"timeout", isTimeoutError(err),
				)
				span.RecordError(err)
				e.recorder.RecordFallback(StageVectorSearch)
				return
			}
			perPhrase[i] = hits
		}(i, phrase)
	}
	wg.Wait()

	out := make([]domain.VectorHit, 0)
	for _, hits := range perPhrase {
		out = append(out, hits...)
	}
	span.SetAttributes(attribute.Int("hits", len(out)))
	return out
}
