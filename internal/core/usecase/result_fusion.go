package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kirillkom/research-query-engine/internal/core/domain"
	"github.com/kirillkom/research-query-engine/internal/core/ports"
)

const (
	snippetMaxChars       = 300
	titleMaxChars         = 80
	synthesisContextLimit = 10
	fallbackAnswerLimit   = 5
	synthesisTemperature  = 0.3

	structuredURLScheme   = "job://"
	structuredTitlePrefix = "Research: "

	NoResultsAnswer       = "No relevant results found for your query."
	fallbackAnswerHeading = "Here are the most relevant sources found:"
)

type ResultFusionOptions struct {
	Timeout  time.Duration
	Recorder FallbackRecorder
}

// ResultFusion merges heterogeneous hits into one ranked citation list and writes the answer.
type ResultFusion struct {
	generator ports.Generator
	timeout   time.Duration
	recorder  FallbackRecorder
}

func NewResultFusion(generator ports.Generator, opts ResultFusionOptions) *ResultFusion {
	return &ResultFusion{
		generator: generator,
		timeout:   opts.Timeout,
		recorder:  recorderOrNoop(opts.Recorder),
	}
}

func (f *ResultFusion) MergeAndRank(vectorHits []domain.VectorHit, structured []domain.StructuredResult) []domain.SourceReference {
	return mergeAndRank(vectorHits, structured)
}

// mergeAndRank deduplicates on URL (first occurrence wins, vector hits first) and sorts
// by relevance descending, keeping input order for ties.
func mergeAndRank(vectorHits []domain.VectorHit, structured []domain.StructuredResult) []domain.SourceReference {
	sources := make([]domain.SourceReference, 0, len(vectorHits)+len(structured))
	seen := make(map[string]struct{}, cap(sources))

	add := func(ref domain.SourceReference) {
		if _, ok := seen[ref.URL]; ok {
			return
		}
		seen[ref.URL] = struct{}{}
		sources = append(sources, ref)
	}

	for _, hit := range vectorHits {
		title := hit.Metadata["title"]
		if title == "" {
			title = hit.URL
		}
		add(domain.SourceReference{
			URL:            hit.URL,
			Title:          title,
			Snippet:        truncateRunes(hit.Content, snippetMaxChars),
			SourceType:     domain.DataSourceVector,
			RelevanceScore: hit.Similarity,
		})
	}

	for _, record := range structured {
		summary := ""
		if record.Summary != nil {
			summary = *record.Summary
		}
		add(domain.SourceReference{
			URL:            structuredURLScheme + record.RecordID,
			Title:          structuredTitlePrefix + truncateRunes(record.QueryText, titleMaxChars),
			Snippet:        truncateRunes(summary, snippetMaxChars),
			SourceType:     domain.DataSourceStructured,
			RelevanceScore: record.RelevanceScore,
		})
	}

	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].RelevanceScore > sources[j].RelevanceScore
	})
	return sources
}

// Synthesize answers from the ranked sources. The generator sees at most the top
// synthesisContextLimit sources; the result always carries the full list.
func (f *ResultFusion) Synthesize(ctx context.Context, query string, sources []domain.SourceReference) domain.QueryResult {
	if len(sources) == 0 {
		return domain.QueryResult{
			Answer:  NoResultsAnswer,
			Sources: []domain.SourceReference{},
			Query:   query,
		}
	}

	ctx, span := tracer.Start(ctx, "result_fusion.synthesize")
	defer span.End()
	span.SetAttributes(attribute.Int("sources", len(sources)))

	answer, err := f.generateAnswer(ctx, query, sources)
	if err != nil {
		slog.Warn("synthesis_fallback",
			"error", err,
			"timeout", isTimeoutError(err),
			"sources", len(sources),
		)
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("fallback", true))
		f.recorder.RecordFallback(StageSynthesis)
		answer = fallbackAnswer(sources)
	}

	return domain.QueryResult{
		Answer:  answer,
		Sources: sources,
		Query:   query,
	}
}

func (f *ResultFusion) generateAnswer(ctx context.Context, query string, sources []domain.SourceReference) (string, error) {
	if f.generator == nil {
		return "", fmt.Errorf("generator is not configured")
	}

	callCtx, cancel := withOptionalTimeout(ctx, f.timeout)
	defer cancel()

	answer, err := f.generator.Generate(callCtx, buildSynthesisPrompt(query, sources), synthesisTemperature)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("generator returned empty answer")
	}
	return answer, nil
}

func buildSynthesisPrompt(query string, sources []domain.SourceReference) string {
	if len(sources) > synthesisContextLimit {
		sources = sources[:synthesisContextLimit]
	}
	lines := make([]string, 0, len(sources))
	for i, s := range sources {
		lines = append(lines, fmt.Sprintf("[%d] (%s) %s\n%s", i+1, s.SourceType, s.Title, s.Snippet))
	}

	return fmt.Sprintf(`You are a research assistant for a data justice platform. Answer the user question from the sources below and cite them by number, like [1] or [2].
If the sources are not enough to answer, say so plainly.

Question: %s

Sources:
%s

Answer:`, query, strings.Join(lines, "\n"))
}

// fallbackAnswer lists the top sources verbatim when generation is unavailable.
func fallbackAnswer(sources []domain.SourceReference) string {
	if len(sources) > fallbackAnswerLimit {
		sources = sources[:fallbackAnswerLimit]
	}
	var b strings.Builder
	b.WriteString(fallbackAnswerHeading)
	b.WriteString("\n")
	for i, s := range sources {
		fmt.Fprintf(&b, "\n%d. **%s** (%s)\n   %s\n", i+1, s.Title, s.SourceType, s.Snippet)
	}
	return b.String()
}
