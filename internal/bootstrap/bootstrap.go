package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/research-query-engine/internal/config"
	"github.com/kirillkom/research-query-engine/internal/core/ports"
	"github.com/kirillkom/research-query-engine/internal/core/usecase"
	"github.com/kirillkom/research-query-engine/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/research-query-engine/internal/infrastructure/llm/openaicompat"
	"github.com/kirillkom/research-query-engine/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/research-query-engine/internal/infrastructure/resilience"
	"github.com/kirillkom/research-query-engine/internal/infrastructure/search/elasticsearch"
	"github.com/kirillkom/research-query-engine/internal/infrastructure/vector/qdrant"
)

type Options struct {
	// Fallbacks receives degraded pipeline stages, usually a Prometheus counter.
	Fallbacks usecase.FallbackRecorder
	// BreakerObserver receives circuit breaker transitions of outbound clients.
	BreakerObserver resilience.StateObserver
}

type App struct {
	Config config.Config
	Engine ports.QueryService

	closers []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	app := &App{Config: cfg}

	var executorOpts []resilience.Option
	if opts.BreakerObserver != nil {
		executorOpts = append(executorOpts, resilience.WithStateObserver(opts.BreakerObserver))
	}
	executor := resilience.NewExecutor(ResilienceConfig(cfg), executorOpts...)

	generator, embedder, err := newGenerativeBackend(cfg, executor)
	if err != nil {
		return nil, err
	}

	vectorSearcher := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, embedder, qdrant.WithExecutor(executor))

	store, err := app.newResearchJobStore(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	parser := usecase.NewQueryParser(generator, usecase.QueryParserOptions{
		Timeout:  seconds(cfg.ParserTimeoutSeconds),
		Recorder: opts.Fallbacks,
	})
	fusion := usecase.NewResultFusion(generator, usecase.ResultFusionOptions{
		Timeout:  seconds(cfg.SynthesisTimeoutSeconds),
		Recorder: opts.Fallbacks,
	})

	var structured ports.StructuredSearcher
	if store != nil {
		structured = usecase.NewStructuredSearcher(store, usecase.StructuredSearcherOptions{
			Timeout:  seconds(cfg.SearchTimeoutSeconds),
			Recorder: opts.Fallbacks,
		})
	}

	app.Engine = usecase.NewQueryEngine(parser, vectorSearcher, structured, fusion, usecase.QueryEngineOptions{
		DefaultLimit:               cfg.QueryDefaultLimit,
		MaxLimit:                   cfg.QueryMaxLimit,
		DefaultSimilarityThreshold: cfg.QuerySimilarityThreshold,
		Timeout:                    seconds(cfg.QueryTimeoutSeconds),
		SearchTimeout:              seconds(cfg.SearchTimeoutSeconds),
		Recorder:                   opts.Fallbacks,
	})

	slog.Info("query_engine_ready",
		"generator_backend", cfg.GeneratorBackend,
		"structured_backend", cfg.StructuredBackend,
		"qdrant_collection", cfg.QdrantCollection,
	)
	return app, nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// AddCloser registers cleanup for resources created outside bootstrap, such as NATS connections.
func (a *App) AddCloser(fn func()) {
	a.closers = append(a.closers, fn)
}

func newGenerativeBackend(cfg config.Config, executor *resilience.Executor) (ports.Generator, ports.Embedder, error) {
	switch cfg.GeneratorBackend {
	case config.GeneratorBackendOpenAI:
		openaiCfg := openaicompat.Config{
			BaseURL:        cfg.OpenAIBaseURL,
			APIKey:         cfg.OpenAIAPIKey,
			Model:          cfg.OpenAIModel,
			EmbeddingModel: cfg.OpenAIEmbedModel,
		}
		generator, err := openaicompat.NewGenerator(openaiCfg, executor)
		if err != nil {
			return nil, nil, fmt.Errorf("init openai generator: %w", err)
		}
		if cfg.OpenAIEmbedModel == "" {
			// Embeddings stay on Ollama so the Qdrant collection keeps its vector space.
			client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.WithExecutor(executor))
			return generator, ollama.NewEmbedder(client), nil
		}
		embedder, err := openaicompat.NewEmbedder(openaiCfg, executor)
		if err != nil {
			return nil, nil, fmt.Errorf("init openai embedder: %w", err)
		}
		return generator, embedder, nil
	default:
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.WithExecutor(executor))
		return ollama.NewGenerator(client), ollama.NewEmbedder(client), nil
	}
}

func (a *App) newResearchJobStore(ctx context.Context, cfg config.Config) (ports.ResearchJobStore, error) {
	switch cfg.StructuredBackend {
	case config.StructuredBackendNone:
		return nil, nil
	case config.StructuredBackendElasticsearch:
		index, err := elasticsearch.NewJobIndex(elasticsearch.Config{
			Addresses: cfg.ElasticsearchURLs,
			Username:  cfg.ElasticsearchUsername,
			Password:  cfg.ElasticsearchPassword,
			Index:     cfg.ElasticsearchIndex,
		})
		if err != nil {
			return nil, fmt.Errorf("init elasticsearch: %w", err)
		}
		if err := index.Ping(ctx); err != nil {
			slog.Warn("elasticsearch_unreachable", "error", err)
		}
		return index, nil
	default:
		db, err := postgres.OpenDB(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.AddCloser(func() { _ = db.Close() })

		repo := postgres.NewResearchJobRepository(db)
		if cfg.PostgresEnsureSchema {
			if err := repo.EnsureSchema(ctx); err != nil {
				return nil, fmt.Errorf("ensure schema: %w", err)
			}
		}
		return repo, nil
	}
}

func ResilienceConfig(cfg config.Config) resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:        cfg.ResilienceRetryMaxAttempts,
		RetryInitialBackoff:     time.Duration(cfg.ResilienceRetryInitialBackoffMS) * time.Millisecond,
		RetryMaxBackoff:         time.Duration(cfg.ResilienceRetryMaxBackoffMS) * time.Millisecond,
		RetryMultiplier:         cfg.ResilienceRetryMultiplier,
		AttemptTimeout:          time.Duration(cfg.ResilienceAttemptTimeoutMS) * time.Millisecond,
		BreakerEnabled:          cfg.ResilienceBreakerEnabled,
		BreakerMinRequests:      uint32(max(cfg.ResilienceBreakerMinRequests, 0)),
		BreakerFailureRatio:     cfg.ResilienceBreakerFailureRatio,
		BreakerOpenTimeout:      time.Duration(cfg.ResilienceBreakerOpenTimeoutMS) * time.Millisecond,
		BreakerHalfOpenMaxCalls: uint32(max(cfg.ResilienceBreakerHalfOpenMaxCalls, 0)),
	}
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
