package ports

import (
	"context"

	"github.com/kirillkom/research-query-engine/internal/core/domain"
)

// QueryService is the inbound contract for answering a natural-language question.
type QueryService interface {
	Query(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error)
}

// QueryParser turns free text into a structured intent. It never fails outwardly.
type QueryParser interface {
	Parse(ctx context.Context, question string) domain.ParsedQuery
}

// StructuredSearcher runs keyword search over completed research jobs. It never fails outwardly.
type StructuredSearcher interface {
	Search(ctx context.Context, searchQueries []string, limit int) []domain.StructuredResult
}
