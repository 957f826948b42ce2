package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kirillkom/research-query-engine/internal/core/domain"
	"github.com/kirillkom/research-query-engine/internal/core/ports"
)

const (
	minKeywordLength      = 3
	defaultStructuredSize = 10
	summaryMaxChars       = 500
)

type StructuredSearcherOptions struct {
	Timeout  time.Duration
	Recorder FallbackRecorder
}

// StructuredSearcher finds completed research jobs whose query text shares words with the
// rewritten search phrases.
type StructuredSearcher struct {
	store    ports.ResearchJobStore
	timeout  time.Duration
	recorder FallbackRecorder
}

func NewStructuredSearcher(store ports.ResearchJobStore, opts StructuredSearcherOptions) *StructuredSearcher {
	return &StructuredSearcher{
		store:    store,
		timeout:  opts.Timeout,
		recorder: recorderOrNoop(opts.Recorder),
	}
}

// Search never fails: store errors are logged and produce an empty list.
func (s *StructuredSearcher) Search(ctx context.Context, searchQueries []string, limit int) []domain.StructuredResult {
	out := make([]domain.StructuredResult, 0)
	if len(searchQueries) == 0 {
		return out
	}
	keywords := keywordTokens(searchQueries, minKeywordLength)
	if len(keywords) == 0 {
		return out
	}
	if limit <= 0 {
		limit = defaultStructuredSize
	}

	ctx, span := tracer.Start(ctx, "structured_searcher.search")
	defer span.End()
	span.SetAttributes(attribute.Int("keywords", len(keywords)), attribute.Int("limit", limit))

	callCtx, cancel := withOptionalTimeout(ctx, s.timeout)
	defer cancel()

	jobs, err := s.store.FindCompleted(callCtx, keywords, limit)
	if err != nil {
		slog.Warn("structured_search_failed",
			"error", err,
			"keywords", len(keywords),
			"timeout", isTimeoutError(err),
		)
		span.RecordError(err)
		s.recorder.RecordFallback(StageStructured)
		return out
	}

	for _, job := range jobs {
		out = append(out, domain.StructuredResult{
			RecordID:       job.ID,
			QueryText:      job.Query,
			Status:         job.Status,
			Summary:        extractSummary(job.Result),
			CreatedAt:      job.CreatedAt,
			RelevanceScore: scoreRelevance(job.Query, searchQueries),
		})
	}
	span.SetAttributes(attribute.Int("results", len(out)))
	return out
}

// scoreRelevance is the best word overlap between the job query and any search phrase,
// rounded to two decimals.
func scoreRelevance(jobQuery string, searchQueries []string) float64 {
	jobWords := lowerWordSet(jobQuery)
	best := 0.0
	for _, q := range searchQueries {
		queryWords := lowerWordSet(q)
		if len(queryWords) == 0 {
			continue
		}
		if score := wordOverlap(queryWords, jobWords); score > best {
			best = score
		}
	}
	return roundTo2(best)
}

// extractSummary reads "summary" from the job result, falling back to the head of "raw".
func extractSummary(result json.RawMessage) *string {
	trimmed := strings.TrimSpace(string(result))
	if trimmed == "" || trimmed == "null" {
		return nil
	}

	var decoded any
	if err := json.Unmarshal(result, &decoded); err != nil {
		text := truncateRunes(trimmed, summaryMaxChars)
		return &text
	}

	switch v := decoded.(type) {
	case map[string]any:
		if len(v) == 0 {
			return nil
		}
		if summary := stringField(v["summary"]); summary != "" {
			return &summary
		}
		text := truncateRunes(stringField(v["raw"]), summaryMaxChars)
		return &text
	case string:
		if v == "" {
			return nil
		}
		text := truncateRunes(v, summaryMaxChars)
		return &text
	default:
		text := truncateRunes(trimmed, summaryMaxChars)
		return &text
	}
}

func stringField(v any) string {
	switch typed := v.(type) {
	case nil:
		return ""
	case string:
		return typed
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}
