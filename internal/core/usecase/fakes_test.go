package usecase

import (
	"context"
	"sync"

	"github.com/kirillkom/research-query-engine/internal/core/domain"
)

type generatorCall struct {
	prompt      string
	temperature float64
}

type fakeGenerator struct {
	mu        sync.Mutex
	responses []string
	err       error
	block     bool
	calls     []generatorCall
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, generatorCall{prompt: prompt, temperature: temperature})
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", nil
	}
	out := f.responses[0]
	f.responses = f.responses[1:]
	return out, nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type vectorCall struct {
	queryText string
	scopeID   string
	limit     int
	threshold float64
}

type fakeVectorSearcher struct {
	mu    sync.Mutex
	hits  map[string][]domain.VectorHit
	errs  map[string]error
	block bool
	calls []vectorCall
}

func (f *fakeVectorSearcher) SearchSimilar(ctx context.Context, queryText, scopeID string, limit int, threshold float64) ([]domain.VectorHit, error) {
	f.mu.Lock()
	f.calls = append(f.calls, vectorCall{queryText: queryText, scopeID: scopeID, limit: limit, threshold: threshold})
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := f.errs[queryText]; err != nil {
		return nil, err
	}
	return f.hits[queryText], nil
}

func (f *fakeVectorSearcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeStructuredSearcher struct {
	mu      sync.Mutex
	results []domain.StructuredResult
	calls   int
	queries []string
	limit   int
}

func (f *fakeStructuredSearcher) Search(_ context.Context, searchQueries []string, limit int) []domain.StructuredResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.queries = searchQueries
	f.limit = limit
	return f.results
}

type fakeParser struct {
	parsed domain.ParsedQuery
	calls  int
}

func (f *fakeParser) Parse(_ context.Context, question string) domain.ParsedQuery {
	f.calls++
	parsed := f.parsed
	parsed.OriginalQuery = question
	return parsed
}

type fakeJobStore struct {
	jobs     []domain.ResearchJob
	err      error
	calls    int
	keywords []string
	limit    int
}

func (f *fakeJobStore) FindCompleted(_ context.Context, keywords []string, limit int) ([]domain.ResearchJob, error) {
	f.calls++
	f.keywords = keywords
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.jobs, nil
}

type countingRecorder struct {
	mu     sync.Mutex
	stages map[string]int
}

func (r *countingRecorder) RecordFallback(stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stages == nil {
		r.stages = make(map[string]int)
	}
	r.stages[stage]++
}

func (r *countingRecorder) count(stage string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stages[stage]
}
