package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kirillkom/research-query-engine/internal/core/domain"
	"github.com/kirillkom/research-query-engine/internal/core/ports"
)

const (
	parserTemperature = 0.1
	maxSearchQueries  = 3
)

type QueryParserOptions struct {
	Timeout  time.Duration
	Recorder FallbackRecorder
}

// QueryParser maps a question to a ParsedQuery with a single low-temperature generation call.
type QueryParser struct {
	generator ports.Generator
	timeout   time.Duration
	recorder  FallbackRecorder
}

func NewQueryParser(generator ports.Generator, opts QueryParserOptions) *QueryParser {
	return &QueryParser{
		generator: generator,
		timeout:   opts.Timeout,
		recorder:  recorderOrNoop(opts.Recorder),
	}
}

// Parse never fails: any generation, decoding or validation error yields the fallback query.
func (p *QueryParser) Parse(ctx context.Context, question string) domain.ParsedQuery {
	ctx, span := tracer.Start(ctx, "query_parser.parse")
	defer span.End()

	parsed, err := p.parseWithGenerator(ctx, question)
	if err != nil {
		slog.Warn("parser_fallback",
			"error", err,
			"timeout", isTimeoutError(err),
		)
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("fallback", true))
		p.recorder.RecordFallback(StageParser)
		return domain.FallbackParsedQuery(question)
	}

	span.SetAttributes(
		attribute.String("intent", string(parsed.Intent)),
		attribute.Int("search_queries", len(parsed.SearchQueries)),
	)
	return parsed
}

func (p *QueryParser) parseWithGenerator(ctx context.Context, question string) (domain.ParsedQuery, error) {
	if p.generator == nil {
		return domain.ParsedQuery{}, fmt.Errorf("generator is not configured")
	}

	callCtx, cancel := withOptionalTimeout(ctx, p.timeout)
	defer cancel()

	raw, err := p.generator.Generate(callCtx, buildParsePrompt(question), parserTemperature)
	if err != nil {
		return domain.ParsedQuery{}, fmt.Errorf("generate parse: %w", err)
	}
	payload, err := decodeParserPayload(raw)
	if err != nil {
		return domain.ParsedQuery{}, err
	}

	searchQueries := make([]string, 0, len(payload.SearchQueries))
	for _, q := range payload.SearchQueries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		searchQueries = append(searchQueries, q)
		if len(searchQueries) == maxSearchQueries {
			break
		}
	}
	if len(searchQueries) == 0 {
		return domain.ParsedQuery{}, fmt.Errorf("parser returned only blank search queries")
	}

	entities := make([]string, 0, len(payload.Entities))
	for _, e := range payload.Entities {
		if e = strings.TrimSpace(e); e != "" {
			entities = append(entities, e)
		}
	}

	sources := make([]domain.DataSource, 0, len(payload.DataSources))
	for _, s := range payload.DataSources {
		source := domain.DataSource(s)
		if containsSource(sources, source) {
			continue
		}
		sources = append(sources, source)
	}

	return domain.ParsedQuery{
		OriginalQuery: question,
		Intent:        domain.Intent(payload.Intent),
		Entities:      entities,
		SearchQueries: searchQueries,
		DataSources:   sources,
	}, nil
}

func containsSource(sources []domain.DataSource, source domain.DataSource) bool {
	for _, s := range sources {
		if s == source {
			return true
		}
	}
	return false
}

func buildParsePrompt(question string) string {
	return fmt.Sprintf(`You parse questions for a research platform about data justice and racial equity.

From the user question extract:
1. "intent": one of "information_retrieval", "count_query", "comparison", "timeline", "summary".
2. "entities": key people, places, policies, organizations and topics mentioned.
3. "search_queries": 1 to 3 rewritten queries tuned for semantic search.
4. "data_sources": sources worth querying, any of "vector" (scraped research content) and "structured" (completed research jobs). List both when unsure.

Reply with a single JSON object and nothing else.

User question: %s`, question)
}
