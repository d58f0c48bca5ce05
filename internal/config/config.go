// Package config assembles the typed runtime configuration.
//
// Values are layered: built-in defaults, then the TOML config file
// (through a driven.ConfigStore), then SERCHA_CHAT_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-chat/internal/core/services"
	"github.com/custodia-labs/sercha-chat/internal/ingest"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SERCHA_CHAT_"

// Storage backends.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
)

// Index backends.
const (
	IndexMemory      = "memory"
	IndexVectorStore = "vectorstore"
)

// Generator providers.
const (
	GeneratorNone   = "none"
	GeneratorOpenAI = "openai"
)

// Config is the complete runtime configuration.
type Config struct {
	LogLevel string `env:"LOG_LEVEL"`

	Storage   StorageConfig   `envPrefix:"STORAGE_"`
	Index     IndexConfig     `envPrefix:"INDEX_"`
	Generator GeneratorConfig `envPrefix:"GENERATOR_"`
	Guard     GuardConfig     `envPrefix:"GUARD_"`
	Retrieval RetrievalConfig `envPrefix:"RETRIEVAL_"`
	Synthesis SynthesisConfig `envPrefix:"SYNTHESIS_"`
	Limits    LimitsConfig    `envPrefix:"LIMITS_"`
	History   HistoryConfig   `envPrefix:"HISTORY_"`
	Serve     ServeConfig     `envPrefix:"SERVE_"`
}

// StorageConfig selects the checkpoint store.
type StorageConfig struct {
	Backend   string        `env:"BACKEND"`
	DataDir   string        `env:"DATA_DIR"`
	RedisURL  string        `env:"REDIS_URL"`
	KeyPrefix string        `env:"KEY_PREFIX"`
	TTL       time.Duration `env:"TTL"`
	Timeout   time.Duration `env:"TIMEOUT"`
}

// IndexConfig selects the knowledge index.
type IndexConfig struct {
	Backend string `env:"BACKEND"`
	// Corpus is a JSON document file or a directory of files to ingest.
	Corpus       string        `env:"CORPUS"`
	ChunkSize    int           `env:"CHUNK_SIZE"`
	ChunkOverlap int           `env:"CHUNK_OVERLAP"`
	URL          string        `env:"URL"`
	APIKey       string        `env:"API_KEY"`
	Timeout      time.Duration `env:"TIMEOUT"`
}

// GeneratorConfig selects the language model.
type GeneratorConfig struct {
	Provider string        `env:"PROVIDER"`
	BaseURL  string        `env:"BASE_URL"`
	APIKey   string        `env:"API_KEY"`
	Model    string        `env:"MODEL"`
	Timeout  time.Duration `env:"TIMEOUT"`
}

// GuardConfig tunes generator protections.
type GuardConfig struct {
	RequestsPerSecond float64       `env:"REQUESTS_PER_SECOND"`
	Burst             int           `env:"BURST"`
	CacheSize         int           `env:"CACHE_SIZE"`
	FailureThreshold  int           `env:"FAILURE_THRESHOLD"`
	OpenTimeout       time.Duration `env:"OPEN_TIMEOUT"`
}

// RetrievalConfig tunes the strategy engine.
type RetrievalConfig struct {
	TopK       int           `env:"TOP_K"`
	MinResults int           `env:"MIN_RESULTS"`
	Timeout    time.Duration `env:"TIMEOUT"`
}

// SynthesisConfig tunes answer generation.
type SynthesisConfig struct {
	MaxTokens          int           `env:"MAX_TOKENS"`
	Temperature        float64       `env:"TEMPERATURE"`
	SuggestionInterval int           `env:"SUGGESTION_INTERVAL"`
	ExtractiveChars    int           `env:"EXTRACTIVE_CHARS"`
	Timeout            time.Duration `env:"TIMEOUT"`
}

// LimitsConfig bounds a conversation.
type LimitsConfig struct {
	Turns   int `env:"TURNS"`
	Retries int `env:"RETRIES"`
	Errors  int `env:"ERRORS"`
}

// HistoryConfig bounds the retained history.
type HistoryConfig struct {
	MaxMessages int `env:"MAX_MESSAGES"`
	MaxChars    int `env:"MAX_CHARS"`
}

// ServeConfig configures the serve command.
type ServeConfig struct {
	Addr        string `env:"ADDR"`
	MetricsAddr string `env:"METRICS_ADDR"`
}

// Default returns the built-in configuration.
func Default() *Config {
	limits := services.DefaultLimits()
	return &Config{
		LogLevel: "info",
		Storage: StorageConfig{
			Backend:   StorageSQLite,
			KeyPrefix: "sercha-chat",
			TTL:       7 * 24 * time.Hour,
			Timeout:   5 * time.Second,
		},
		Index: IndexConfig{
			Backend:      IndexMemory,
			ChunkSize:    ingest.DefaultChunkSize,
			ChunkOverlap: ingest.DefaultChunkOverlap,
			Timeout:      10 * time.Second,
		},
		Generator: GeneratorConfig{
			Provider: GeneratorNone,
			Model:    "gpt-4o-mini",
			Timeout:  60 * time.Second,
		},
		Guard: GuardConfig{
			RequestsPerSecond: 5,
			Burst:             10,
			CacheSize:         256,
			FailureThreshold:  5,
			OpenTimeout:       30 * time.Second,
		},
		Retrieval: RetrievalConfig{
			TopK:       services.DefaultTopK,
			MinResults: services.DefaultMinResults,
			Timeout:    10 * time.Second,
		},
		Synthesis: SynthesisConfig{
			MaxTokens:          services.DefaultMaxTokens,
			Temperature:        services.DefaultTemperature,
			SuggestionInterval: services.DefaultSuggestionInterval,
			ExtractiveChars:    services.DefaultExtractiveRunes,
			Timeout:            60 * time.Second,
		},
		Limits: LimitsConfig{
			Turns:   limits.TurnLimit,
			Retries: limits.RetryLimit,
			Errors:  limits.ErrorLimit,
		},
		History: HistoryConfig{
			MaxMessages: services.DefaultMaxHistoryMessages,
			MaxChars:    services.DefaultMaxHistoryChars,
		},
	}
}

// Load builds the configuration from defaults, the config store (can be nil)
// and the environment, then validates it.
func Load(store driven.ConfigStore) (*Config, error) {
	cfg := Default()
	if store != nil {
		cfg.applyStore(store)
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyStore overlays every key present in the config file.
func (c *Config) applyStore(s driven.ConfigStore) {
	str := func(key string, dst *string) {
		if _, ok := s.Get(key); ok {
			*dst = s.GetString(key)
		}
	}
	num := func(key string, dst *int) {
		if _, ok := s.Get(key); ok {
			*dst = s.GetInt(key)
		}
	}
	flt := func(key string, dst *float64) {
		if _, ok := s.Get(key); ok {
			*dst = s.GetFloat(key)
		}
	}
	dur := func(key string, dst *time.Duration) {
		if _, ok := s.Get(key); ok {
			*dst = s.GetDuration(key)
		}
	}

	str("log.level", &c.LogLevel)

	str("storage.backend", &c.Storage.Backend)
	str("storage.data_dir", &c.Storage.DataDir)
	str("storage.redis_url", &c.Storage.RedisURL)
	str("storage.key_prefix", &c.Storage.KeyPrefix)
	dur("storage.ttl", &c.Storage.TTL)
	dur("storage.timeout", &c.Storage.Timeout)

	str("index.backend", &c.Index.Backend)
	str("index.corpus", &c.Index.Corpus)
	num("index.chunk_size", &c.Index.ChunkSize)
	num("index.chunk_overlap", &c.Index.ChunkOverlap)
	str("index.url", &c.Index.URL)
	str("index.api_key", &c.Index.APIKey)
	dur("index.timeout", &c.Index.Timeout)

	str("generator.provider", &c.Generator.Provider)
	str("generator.base_url", &c.Generator.BaseURL)
	str("generator.api_key", &c.Generator.APIKey)
	str("generator.model", &c.Generator.Model)
	dur("generator.timeout", &c.Generator.Timeout)

	flt("guard.requests_per_second", &c.Guard.RequestsPerSecond)
	num("guard.burst", &c.Guard.Burst)
	num("guard.cache_size", &c.Guard.CacheSize)
	num("guard.failure_threshold", &c.Guard.FailureThreshold)
	dur("guard.open_timeout", &c.Guard.OpenTimeout)

	num("retrieval.top_k", &c.Retrieval.TopK)
	num("retrieval.min_results", &c.Retrieval.MinResults)
	dur("retrieval.timeout", &c.Retrieval.Timeout)

	num("synthesis.max_tokens", &c.Synthesis.MaxTokens)
	flt("synthesis.temperature", &c.Synthesis.Temperature)
	num("synthesis.suggestion_interval", &c.Synthesis.SuggestionInterval)
	num("synthesis.extractive_chars", &c.Synthesis.ExtractiveChars)
	dur("synthesis.timeout", &c.Synthesis.Timeout)

	num("limits.turns", &c.Limits.Turns)
	num("limits.retries", &c.Limits.Retries)
	num("limits.errors", &c.Limits.Errors)

	num("history.max_messages", &c.History.MaxMessages)
	num("history.max_chars", &c.History.MaxChars)

	str("serve.addr", &c.Serve.Addr)
	str("serve.metrics_addr", &c.Serve.MetricsAddr)
}

func (c *Config) normalise() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	c.Index.Backend = strings.ToLower(strings.TrimSpace(c.Index.Backend))
	c.Generator.Provider = strings.ToLower(strings.TrimSpace(c.Generator.Provider))
	if c.Generator.Provider == "" {
		c.Generator.Provider = GeneratorNone
	}
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StorageMemory, StorageSQLite:
	case StorageRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("storage.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	switch c.Index.Backend {
	case IndexMemory:
	case IndexVectorStore:
		if c.Index.URL == "" {
			return fmt.Errorf("index.url is required for the vectorstore backend")
		}
	default:
		return fmt.Errorf("unknown index backend %q", c.Index.Backend)
	}

	switch c.Generator.Provider {
	case GeneratorNone, GeneratorOpenAI:
	default:
		return fmt.Errorf("unknown generator provider %q", c.Generator.Provider)
	}

	if c.Limits.Turns < 0 || c.Limits.Retries < 0 || c.Limits.Errors < 0 {
		return fmt.Errorf("limits must not be negative")
	}
	return nil
}

// ConversationOptions maps the configuration onto the conversation service.
func (c *Config) ConversationOptions() services.ConversationOptions {
	return services.ConversationOptions{
		Limits: services.Limits{
			TurnLimit:  c.Limits.Turns,
			RetryLimit: c.Limits.Retries,
			ErrorLimit: c.Limits.Errors,
		},
		Retrieval: services.RetrievalOptions{
			TopK:       c.Retrieval.TopK,
			MinResults: c.Retrieval.MinResults,
			Timeout:    c.Retrieval.Timeout,
		},
		Synthesis: services.SynthesisOptions{
			MaxTokens:          c.Synthesis.MaxTokens,
			Temperature:        c.Synthesis.Temperature,
			SuggestionInterval: c.Synthesis.SuggestionInterval,
			ExtractiveRunes:    c.Synthesis.ExtractiveChars,
			Timeout:            c.Synthesis.Timeout,
		},
		MaxHistoryMessages: c.History.MaxMessages,
		MaxHistoryChars:    c.History.MaxChars,
		StoreTimeout:       c.Storage.Timeout,
	}
}
