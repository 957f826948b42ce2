package usecase

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/kirillkom/research-query-engine/internal/core/usecase")

const (
	StageParser       = "parser"
	StageVectorSearch = "vector_search"
	StageStructured   = "structured_search"
	StageSynthesis    = "synthesis"
)

// FallbackRecorder counts degraded paths taken by the pipeline.
type FallbackRecorder interface {
	RecordFallback(stage string)
}

type noopFallbackRecorder struct{}

func (noopFallbackRecorder) RecordFallback(string) {}

func recorderOrNoop(r FallbackRecorder) FallbackRecorder {
	if r == nil {
		return noopFallbackRecorder{}
	}
	return r
}

func isTimeoutError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
