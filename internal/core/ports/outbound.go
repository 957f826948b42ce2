package ports

import (
	"context"

	"github.com/kirillkom/research-query-engine/internal/core/domain"
)

// Generator is a single-turn completion backend.
type Generator interface {
	Generate(ctx context.Context, prompt string, temperature float64) (string, error)
}

// Embedder builds a vector for query text.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher performs semantic similarity search over embedded content.
// An empty scopeID searches every scope. Zero hits is not an error.
type VectorSearcher interface {
	SearchSimilar(ctx context.Context, queryText, scopeID string, limit int, similarityThreshold float64) ([]domain.VectorHit, error)
}

// ResearchJobStore reads completed research jobs whose query text matches any keyword,
// newest first.
type ResearchJobStore interface {
	FindCompleted(ctx context.Context, keywords []string, limit int) ([]domain.ResearchJob, error)
}
