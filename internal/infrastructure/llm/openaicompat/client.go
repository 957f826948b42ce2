// Package openaicompat talks to OpenAI-compatible completion and embedding endpoints
// (vLLM, LM Studio, llama.cpp server, hosted OpenAI) through langchaingo.
package openaicompat

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/research-query-engine/internal/core/domain"
	"github.com/kirillkom/research-query-engine/internal/infrastructure/resilience"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
}

// Generator implements ports.Generator.
type Generator struct {
	llm      llms.Model
	executor *resilience.Executor
}

func NewGenerator(cfg Config, executor *resilience.Executor) (*Generator, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("openaicompat: model is required")
	}
	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(tokenOrNone(cfg.APIKey)),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("openaicompat: create client: %w", err)
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Generator{llm: llm, executor: executor}, nil
}

func (g *Generator) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	var answer string
	err := g.executor.Execute(ctx, "openai.generate", func(callCtx context.Context) error {
		response, err := g.llm.GenerateContent(callCtx, content, llms.WithTemperature(temperature))
		if err != nil {
			return err
		}
		if len(response.Choices) == 0 {
			return fmt.Errorf("openaicompat: no choices returned")
		}
		answer = response.Choices[0].Content
		return nil
	}, resilience.ClassifyHTTPError)
	if err != nil {
		if resilience.IsCircuitOpen(err) {
			return "", domain.WrapError(domain.ErrTemporary, "openai.generate", err)
		}
		return "", fmt.Errorf("openai generate: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

// Embedder implements ports.Embedder.
type Embedder struct {
	llm      *openai.LLM
	executor *resilience.Executor
}

func NewEmbedder(cfg Config, executor *resilience.Executor) (*Embedder, error) {
	if strings.TrimSpace(cfg.EmbeddingModel) == "" {
		return nil, fmt.Errorf("openaicompat: embedding model is required")
	}
	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(tokenOrNone(cfg.APIKey)),
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("openaicompat: create embedding client: %w", err)
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Embedder{llm: llm, executor: executor}, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := e.executor.Execute(ctx, "openai.embed", func(callCtx context.Context) error {
		vectors, err := e.llm.CreateEmbedding(callCtx, []string{text})
		if err != nil {
			return err
		}
		if len(vectors) == 0 || len(vectors[0]) == 0 {
			return fmt.Errorf("openaicompat: empty embedding result")
		}
		vector = vectors[0]
		return nil
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	return vector, nil
}

// Local OpenAI-compatible servers accept any bearer token but langchaingo requires one.
func tokenOrNone(apiKey string) string {
	if strings.TrimSpace(apiKey) == "" {
		return "none"
	}
	return apiKey
}
