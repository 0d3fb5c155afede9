package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for jobmatch.
type Config struct {
	Database  DatabaseConfig
	Embedding EmbeddingConfig
	AI        AIConfig
	Search    SearchConfig
	Sync      SyncConfig
	Cache     CacheConfig
	Notify    NotifyConfig
}

// DatabaseConfig selects the job store. DSN is a SQLite path, "memory", or a
// postgres:// URL.
type DatabaseConfig struct {
	DSN     string
	Timeout time.Duration // bound on each store call
}

// EmbeddingConfig points at an OpenAI-compatible /embeddings endpoint.
type EmbeddingConfig struct {
	BaseURL    string
	APIKey     string // expanded from env var by Load
	Model      string
	Dimensions int
	Timeout    time.Duration // per-request timeout
}

// AIConfig controls the LLM used for preference extraction and term
// standardization. When disabled, keyword fallbacks are used.
type AIConfig struct {
	Enabled  bool
	Provider string // "openai" or "gemini"
	BaseURL  string // openai only, defaults to https://api.openai.com/v1
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// SearchConfig tunes the match engine.
type SearchConfig struct {
	DefaultLimit int
	MinScore     float64 // 0 disables the similarity floor
	EnrichQuery  bool    // append extracted preferences to the embedded query
}

// SyncConfig tunes the background embedding worker.
type SyncConfig struct {
	BatchSize      int
	MaxAge         time.Duration // embeddings older than this are regenerated
	Interval       time.Duration
	RetryInterval  time.Duration // sleep after a failed batch fetch
	FailureBackoff time.Duration // first hold-off for a job that failed to embed
	MaxRetries     int
	RetryBaseDelay time.Duration
	MinDelay       time.Duration // minimum gap between provider calls
	CallTimeout    time.Duration
}

// CacheConfig enables the Redis query-embedding cache. An empty RedisAddr
// disables it.
type CacheConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

// NotifyConfig enables Slack alerts for sync batches with failed jobs. An
// empty SlackWebhookURL disables them.
type NotifyConfig struct {
	SlackWebhookURL string
}

const (
	defaultOpenAIBaseURL  = "https://api.openai.com/v1"
	defaultEmbeddingModel = "text-embedding-3-small"
	defaultDimensions     = 1536
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultGeminiModel    = "gemini-2.0-flash"
)

// rawConfig is used for YAML unmarshaling (snake_case fields and duration as string).
type rawConfig struct {
	Database  rawDatabaseConfig  `yaml:"database"`
	Embedding rawEmbeddingConfig `yaml:"embedding"`
	AI        rawAIConfig        `yaml:"ai"`
	Search    rawSearchConfig    `yaml:"search"`
	Sync      rawSyncConfig      `yaml:"sync"`
	Cache     rawCacheConfig     `yaml:"cache"`
	Notify    rawNotifyConfig    `yaml:"notify"`
}

type rawDatabaseConfig struct {
	DSN     string `yaml:"dsn"`
	Timeout string `yaml:"timeout"`
}

type rawEmbeddingConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	Timeout    string `yaml:"timeout"`
}

type rawAIConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	Timeout  string `yaml:"timeout"`
}

type rawSearchConfig struct {
	DefaultLimit int     `yaml:"default_limit"`
	MinScore     float64 `yaml:"min_score"`
	EnrichQuery  bool    `yaml:"enrich_query"`
}

type rawSyncConfig struct {
	BatchSize      int    `yaml:"batch_size"`
	MaxAge         string `yaml:"max_age"`
	Interval       string `yaml:"interval"`
	RetryInterval  string `yaml:"retry_interval"`
	FailureBackoff string `yaml:"failure_backoff"`
	MaxRetries     *int   `yaml:"max_retries"`
	RetryBaseDelay string `yaml:"retry_base_delay"`
	MinDelay       string `yaml:"min_delay"`
	CallTimeout    string `yaml:"call_timeout"`
}

type rawCacheConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	TTL           string `yaml:"ttl"`
}

type rawNotifyConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url"`
}

// Load reads and parses the YAML config file at path, validates it, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from YAML, applying defaults and validation.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	d := durations{}
	cfg := &Config{
		Database: DatabaseConfig{
			DSN:     stringOr(raw.Database.DSN, "jobmatch.db"),
			Timeout: d.parse("database.timeout", raw.Database.Timeout, 10*time.Second),
		},
		Embedding: EmbeddingConfig{
			BaseURL:    stringOr(raw.Embedding.BaseURL, defaultOpenAIBaseURL),
			APIKey:     raw.Embedding.APIKey,
			Model:      stringOr(raw.Embedding.Model, defaultEmbeddingModel),
			Dimensions: intOr(raw.Embedding.Dimensions, defaultDimensions),
			Timeout:    d.parse("embedding.timeout", raw.Embedding.Timeout, 30*time.Second),
		},
		AI: AIConfig{
			Enabled:  raw.AI.Enabled,
			Provider: stringOr(raw.AI.Provider, "openai"),
			BaseURL:  stringOr(raw.AI.BaseURL, defaultOpenAIBaseURL),
			Model:    raw.AI.Model,
			APIKey:   raw.AI.APIKey,
			Timeout:  d.parse("ai.timeout", raw.AI.Timeout, 30*time.Second),
		},
		Search: SearchConfig{
			DefaultLimit: intOr(raw.Search.DefaultLimit, 5),
			MinScore:     raw.Search.MinScore,
			EnrichQuery:  raw.Search.EnrichQuery,
		},
		Sync: SyncConfig{
			BatchSize:      intOr(raw.Sync.BatchSize, 50),
			MaxAge:         d.parse("sync.max_age", raw.Sync.MaxAge, 7*24*time.Hour),
			Interval:       d.parse("sync.interval", raw.Sync.Interval, time.Hour),
			RetryInterval:  d.parse("sync.retry_interval", raw.Sync.RetryInterval, 5*time.Minute),
			FailureBackoff: d.parse("sync.failure_backoff", raw.Sync.FailureBackoff, time.Hour),
			MaxRetries:     3,
			RetryBaseDelay: d.parse("sync.retry_base_delay", raw.Sync.RetryBaseDelay, 2*time.Second),
			MinDelay:       d.parse("sync.min_delay", raw.Sync.MinDelay, 0),
			CallTimeout:    d.parse("sync.call_timeout", raw.Sync.CallTimeout, 2*time.Minute),
		},
		Cache: CacheConfig{
			RedisAddr:     raw.Cache.RedisAddr,
			RedisPassword: raw.Cache.RedisPassword,
			RedisDB:       raw.Cache.RedisDB,
			TTL:           d.parse("cache.ttl", raw.Cache.TTL, 24*time.Hour),
		},
		Notify: NotifyConfig{
			SlackWebhookURL: raw.Notify.SlackWebhookURL,
		},
	}
	if d.err != nil {
		return nil, d.err
	}
	if raw.Sync.MaxRetries != nil {
		cfg.Sync.MaxRetries = *raw.Sync.MaxRetries
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = defaultOpenAIModel
		if cfg.AI.Provider == "gemini" {
			cfg.AI.Model = defaultGeminiModel
		}
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// durations parses duration fields, keeping the first error.
type durations struct {
	err error
}

func (d *durations) parse(field, value string, def time.Duration) time.Duration {
	if value == "" || d.err != nil {
		return def
	}
	v, err := time.ParseDuration(value)
	if err != nil {
		d.err = fmt.Errorf("parse %s %q: %w", field, value, err)
		return def
	}
	return v
}

func stringOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func intOr(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func validate(cfg *Config) error {
	if cfg.Database.Timeout <= 0 {
		return fmt.Errorf("database.timeout must be positive, got %v", cfg.Database.Timeout)
	}

	if cfg.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Embedding.Timeout <= 0 {
		return fmt.Errorf("embedding.timeout must be positive, got %v", cfg.Embedding.Timeout)
	}

	if cfg.AI.Provider != "openai" && cfg.AI.Provider != "gemini" {
		return fmt.Errorf("ai.provider must be \"openai\" or \"gemini\", got %q", cfg.AI.Provider)
	}
	if cfg.AI.Enabled && cfg.AI.APIKey == "" {
		return fmt.Errorf("ai.api_key is required when ai.enabled is true")
	}

	if cfg.Search.DefaultLimit <= 0 {
		return fmt.Errorf("search.default_limit must be positive, got %d", cfg.Search.DefaultLimit)
	}
	if cfg.Search.MinScore < 0 || cfg.Search.MinScore > 1 {
		return fmt.Errorf("search.min_score must be between 0 and 1, got %v", cfg.Search.MinScore)
	}

	if cfg.Sync.BatchSize <= 0 {
		return fmt.Errorf("sync.batch_size must be positive, got %d", cfg.Sync.BatchSize)
	}
	if cfg.Sync.Interval <= 0 || cfg.Sync.RetryInterval <= 0 {
		return fmt.Errorf("sync.interval and sync.retry_interval must be positive")
	}
	if cfg.Sync.FailureBackoff <= 0 {
		return fmt.Errorf("sync.failure_backoff must be positive, got %v", cfg.Sync.FailureBackoff)
	}
	if cfg.Sync.MaxAge <= 0 {
		return fmt.Errorf("sync.max_age must be positive, got %v", cfg.Sync.MaxAge)
	}
	if cfg.Sync.MaxRetries < 0 {
		return fmt.Errorf("sync.max_retries must not be negative, got %d", cfg.Sync.MaxRetries)
	}

	if u := cfg.Notify.SlackWebhookURL; u != "" && !strings.HasPrefix(u, "https://") && !strings.HasPrefix(u, "http://") {
		return fmt.Errorf("notify.slack_webhook_url must be an http(s) URL, got %q", u)
	}

	return nil
}
