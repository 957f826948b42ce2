package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadIncludesQueryDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("QUERY_DEFAULT_LIMIT", "")
	t.Setenv("QUERY_MAX_LIMIT", "")
	t.Setenv("QUERY_SIMILARITY_THRESHOLD", "")
	t.Setenv("GENERATOR_BACKEND", "")
	t.Setenv("STRUCTURED_BACKEND", "")
	t.Setenv("OLLAMA_GEN_MODEL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.QueryDefaultLimit != 10 {
		t.Fatalf("expected default limit 10, got %d", cfg.QueryDefaultLimit)
	}
	if cfg.QueryMaxLimit != 50 {
		t.Fatalf("expected max limit 50, got %d", cfg.QueryMaxLimit)
	}
	if cfg.QuerySimilarityThreshold != 0.7 {
		t.Fatalf("expected similarity threshold 0.7, got %v", cfg.QuerySimilarityThreshold)
	}
	if cfg.GeneratorBackend != GeneratorBackendOllama || cfg.StructuredBackend != StructuredBackendPostgres {
		t.Fatalf("unexpected backends %q/%q", cfg.GeneratorBackend, cfg.StructuredBackend)
	}
	if cfg.OllamaGenModel != "mistral" {
		t.Fatalf("expected mistral generation model, got %q", cfg.OllamaGenModel)
	}
	if cfg.NATSQuerySubject != "research.query" || cfg.NATSQueueGroup != "query-engine" {
		t.Fatalf("unexpected nats defaults %q/%q", cfg.NATSQuerySubject, cfg.NATSQueueGroup)
	}
}

func TestLoadParsesEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("QUERY_DEFAULT_LIMIT", "7")
	t.Setenv("QUERY_SIMILARITY_THRESHOLD", "0.55")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("RESILIENCE_BREAKER_ENABLED", "false")
	t.Setenv("ELASTICSEARCH_URLS", " http://es1:9200, ,http://es2:9200 ")
	t.Setenv("STRUCTURED_BACKEND", "Elasticsearch")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.QueryDefaultLimit != 7 || cfg.QuerySimilarityThreshold != 0.55 || cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("unexpected overrides %+v", cfg)
	}
	if cfg.ResilienceBreakerEnabled {
		t.Fatalf("expected breaker disabled")
	}
	if len(cfg.ElasticsearchURLs) != 2 || cfg.ElasticsearchURLs[1] != "http://es2:9200" {
		t.Fatalf("unexpected elasticsearch urls %v", cfg.ElasticsearchURLs)
	}
	if cfg.StructuredBackend != StructuredBackendElasticsearch {
		t.Fatalf("expected lowercased backend, got %q", cfg.StructuredBackend)
	}
}

func TestLoadFallsBackOnMalformedNumbers(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("QUERY_MAX_LIMIT", "lots")
	t.Setenv("QUERY_SIMILARITY_THRESHOLD", "high")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.QueryMaxLimit != 50 || cfg.QuerySimilarityThreshold != 0.7 {
		t.Fatalf("expected defaults for malformed values, got %d/%v", cfg.QueryMaxLimit, cfg.QuerySimilarityThreshold)
	}
}

func TestLoadReadsYAMLFileBelowEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "query.yaml")
	content := "QUERY_DEFAULT_LIMIT: 5\nQUERY_TIMEOUT_SECONDS: 30\nqdrant_collection: jobs_content\nPOSTGRES_ENSURE_SCHEMA: false\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("QUERY_DEFAULT_LIMIT", "")
	t.Setenv("QUERY_TIMEOUT_SECONDS", "45")
	t.Setenv("QDRANT_COLLECTION", "")
	t.Setenv("POSTGRES_ENSURE_SCHEMA", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.QueryDefaultLimit != 5 {
		t.Fatalf("expected file value 5, got %d", cfg.QueryDefaultLimit)
	}
	if cfg.QueryTimeoutSeconds != 45 {
		t.Fatalf("expected env to win with 45, got %d", cfg.QueryTimeoutSeconds)
	}
	if cfg.QdrantCollection != "jobs_content" {
		t.Fatalf("expected file keys to be case-insensitive, got %q", cfg.QdrantCollection)
	}
	if cfg.PostgresEnsureSchema {
		t.Fatalf("expected schema bootstrap disabled by file")
	}
}

func TestLoadRejectsNestedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "query.yaml")
	if err := os.WriteFile(path, []byte("query:\n  limit: 5\n"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for nested keys")
	}
}

func TestLoadRejectsUnknownBackends(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("GENERATOR_BACKEND", "bard")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown generator backend")
	}

	t.Setenv("GENERATOR_BACKEND", "openai")
	t.Setenv("OPENAI_MODEL", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for openai backend without model")
	}
}

func TestLoadRejectsOutOfRangeLimitsAndPorts(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{key: "QUERY_MAX_LIMIT", value: "0"},
		{key: "QUERY_DEFAULT_LIMIT", value: "-3"},
		{key: "QUERY_DEFAULT_LIMIT", value: "80"},
		{key: "QUERY_SIMILARITY_THRESHOLD", value: "1.5"},
		{key: "WORKER_CONCURRENCY", value: "0"},
		{key: "API_PORT", value: "   "},
		{key: "WORKER_METRICS_PORT", value: " "},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv("CONFIG_FILE", "")
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}
