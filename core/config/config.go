package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Env is the environment name (development, staging, production)
	Env string

	// Port is the HTTP server port
	Port string

	// StepSleep is the cool-down between agent loop steps
	StepSleep time.Duration

	// LLM holds chat-completions provider configuration
	LLM LLMConfig

	// Search holds web-search provider configuration
	Search SearchConfig

	// Reader holds URL-reader configuration
	Reader ReaderConfig

	// Embeddings holds embedding provider configuration
	Embeddings EmbeddingsConfig

	// Redis holds event-stream and cache configuration
	Redis RedisConfig

	// OTel holds telemetry export configuration
	OTel OTelConfig
}

// LLMConfig configures the chat-completions provider and per-tool overrides.
type LLMConfig struct {
	APIKey  string
	BaseURL string

	// DefaultModel is used for any tool without an explicit override.
	DefaultModel string

	// Tools maps a tool tag (agent, evaluator, queryRewriter, ...) to its
	// model settings. Seeded with defaults, optionally overridden by a YAML
	// file pointed at by TOOLS_CONFIG_PATH.
	Tools map[string]ToolConfig
}

// ToolConfig is the per-tool model override.
type ToolConfig struct {
	Model       string   `yaml:"model"`
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
}

// SearchConfig selects and configures the web-search provider.
type SearchConfig struct {
	// Provider is "duckduckgo" or "brave"
	Provider    string
	BraveAPIKey string
	Timeout     time.Duration
}

// ReaderConfig configures the URL reader.
type ReaderConfig struct {
	Timeout    time.Duration
	MaxContent int // characters kept per page
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// RedisConfig configures the progress stream and provider cache.
// An empty URL disables both (the agent core runs without Redis).
type RedisConfig struct {
	URL          string
	StreamPrefix string
	CacheTTL     time.Duration
}

// OTelConfig configures telemetry export.
type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

// Enabled reports whether an OTLP endpoint is configured.
func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

// Load loads configuration from environment variables.
// It provides sensible defaults for development.
func Load() (Config, error) {
	cfg := Config{
		Env:       getEnv("DEEPRESEARCH_ENV", "development"),
		Port:      getEnv("PORT", "8080"),
		StepSleep: getEnvDuration("STEP_SLEEP_MS", 1000) * time.Millisecond,
		LLM: LLMConfig{
			APIKey:       getEnv("LLM_API_KEY", os.Getenv("OPENAI_API_KEY")),
			BaseURL:      getEnv("LLM_BASE_URL", ""),
			DefaultModel: getEnv("LLM_MODEL", "gpt-4o-mini"),
			Tools:        defaultToolConfigs(),
		},
		Search: SearchConfig{
			Provider:    getEnv("SEARCH_PROVIDER", "duckduckgo"),
			BraveAPIKey: getEnv("BRAVE_API_KEY", ""),
			Timeout:     getEnvDuration("SEARCH_TIMEOUT_MS", 10_000) * time.Millisecond,
		},
		Reader: ReaderConfig{
			Timeout:    getEnvDuration("READER_TIMEOUT_MS", 60_000) * time.Millisecond,
			MaxContent: getEnvInt("READER_MAX_CONTENT", 20_000),
		},
		Embeddings: EmbeddingsConfig{
			BaseURL:    getEnv("EMBEDDINGS_BASE_URL", "https://api.jina.ai/v1/embeddings"),
			APIKey:     getEnv("EMBEDDINGS_API_KEY", os.Getenv("JINA_API_KEY")),
			Model:      getEnv("EMBEDDINGS_MODEL", "jina-embeddings-v3"),
			Dimensions: getEnvInt("EMBEDDINGS_DIMENSIONS", 512),
			Timeout:    getEnvDuration("EMBEDDINGS_TIMEOUT_MS", 10_000) * time.Millisecond,
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", ""),
			StreamPrefix: getEnv("REDIS_STREAM_PREFIX", "research:task:"),
			CacheTTL:     getEnvDuration("REDIS_CACHE_TTL_S", 3600) * time.Second,
		},
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Headers:        getEnv("OTEL_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "deepresearch-agent"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
	}

	if path := getEnv("TOOLS_CONFIG_PATH", ""); path != "" {
		if err := applyToolOverrides(&cfg.LLM, path); err != nil {
			return Config{}, fmt.Errorf("loading tool overrides: %w", err)
		}
	}

	return cfg, nil
}

// IsProduction returns true if running in production environment.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// IsDevelopment returns true if running in development environment.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback))
}
