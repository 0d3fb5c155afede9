package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobmatch/internal/ai"
	"github.com/amishk599/jobmatch/internal/cache"
	"github.com/amishk599/jobmatch/internal/config"
	"github.com/amishk599/jobmatch/internal/embedding"
	"github.com/amishk599/jobmatch/internal/match"
	"github.com/amishk599/jobmatch/internal/model"
	"github.com/amishk599/jobmatch/internal/notifier"
	"github.com/amishk599/jobmatch/internal/pipeline"
	"github.com/amishk599/jobmatch/internal/ratelimit"
	"github.com/amishk599/jobmatch/internal/retry"
	"github.com/amishk599/jobmatch/internal/scheduler"
	"github.com/amishk599/jobmatch/internal/store"
)

var (
	cfgPath  string
	debug    bool
	jsonLogs bool
)

var rootCmd = &cobra.Command{
	Use:   "jobmatch",
	Short: "Semantic job matching",
	Long:  "jobmatch turns free-text job requests into ranked postings and keeps posting embeddings fresh.",
	// Default to `start` so that `jobmatch` with no args runs the sync daemon.
	RunE:          runStart,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: JOBMATCH_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json", false, "write logs as JSON")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > JOBMATCH_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if env := os.Getenv("JOBMATCH_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

// setupLogger writes to stderr so command output on stdout stays clean.
func setupLogger(w io.Writer, dbg, asJSON bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: logLevel}
	if asJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// silentUnlessDebug keeps log lines from corrupting spinner and TUI output.
func silentUnlessDebug() *slog.Logger {
	if debug {
		return setupLogger(os.Stderr, true, jsonLogs)
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Backend, error) {
	s, err := store.Open(ctx, cfg.Database.DSN, cfg.Embedding.Dimensions, cfg.Database.Timeout)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	logger.Debug("store opened", "dsn_kind", dsnKind(cfg.Database.DSN), "dimensions", cfg.Embedding.Dimensions)
	return s, nil
}

func dsnKind(dsn string) string {
	switch {
	case dsn == "memory":
		return "memory"
	case strings.HasPrefix(dsn, "postgres"):
		return "postgres"
	default:
		return "sqlite"
	}
}

func setupGateway(cfg *config.Config) (*embedding.OpenAIGateway, error) {
	if cfg.Embedding.APIKey == "" {
		return nil, fmt.Errorf("embedding.api_key is required")
	}
	httpClient := &http.Client{Timeout: cfg.Embedding.Timeout}
	return embedding.NewOpenAIGateway(cfg.Embedding.BaseURL, cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Dimensions, httpClient), nil
}

// setupWorkerEmbedder wraps the gateway with retries, each attempt spaced
// by the provider rate limiter.
func setupWorkerEmbedder(cfg *config.Config, logger *slog.Logger) (model.Embedder, error) {
	gw, err := setupGateway(cfg)
	if err != nil {
		return nil, err
	}
	limiter := ratelimit.NewLimiter(cfg.Sync.MinDelay)
	limited := ratelimit.NewEmbedder(gw, limiter, "openai")
	return retry.NewEmbedder(limited, cfg.Sync.MaxRetries, cfg.Sync.RetryBaseDelay, logger), nil
}

// setupQueryEmbedder returns the search-path embedder: no retries, optionally
// cached in Redis. The returned func releases the cache connection.
func setupQueryEmbedder(ctx context.Context, cfg *config.Config, logger *slog.Logger) (model.Embedder, func(), error) {
	gw, err := setupGateway(cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Cache.RedisAddr == "" {
		return gw, func() {}, nil
	}

	rc := cache.NewRedis(ctx, cache.Options{
		Addr:     cfg.Cache.RedisAddr,
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
		TTL:      cfg.Cache.TTL,
	}, logger)
	cached := embedding.NewCachedEmbedder(gw, rc, gw.Model(), gw.Dimensions(), logger)
	return cached, func() { _ = rc.Close() }, nil
}

func setupProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) ai.LLMProvider {
	if !cfg.AI.Enabled {
		logger.Debug("ai disabled, using keyword fallbacks")
		return ai.NewNopProvider()
	}

	switch cfg.AI.Provider {
	case "gemini":
		p, err := ai.NewGeminiProvider(ctx, cfg.AI.APIKey, cfg.AI.Model)
		if err != nil {
			logger.Warn("gemini provider unavailable, using keyword fallbacks", "error", err)
			return ai.NewNopProvider()
		}
		logger.Info("ai provider enabled", "provider", "gemini", "model", cfg.AI.Model)
		return p
	default:
		httpClient := &http.Client{Timeout: cfg.AI.Timeout}
		logger.Info("ai provider enabled", "provider", "openai", "model", cfg.AI.Model)
		return ai.NewOpenAIProvider(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model, httpClient)
	}
}

func setupExtractor(provider ai.LLMProvider, cfg *config.Config, logger *slog.Logger) *ai.PreferenceExtractor {
	return ai.NewPreferenceExtractor(provider, ai.ExtractTemplate, cfg.AI.Timeout, logger)
}

func setupStandardizer(provider ai.LLMProvider, cfg *config.Config, logger *slog.Logger) *ai.TermStandardizer {
	return ai.NewTermStandardizer(provider, ai.StandardizeTemplate, cfg.AI.Timeout, logger)
}

// setupMatcher wires the full extract → standardize → search pipeline.
func setupMatcher(ctx context.Context, cfg *config.Config, s model.Store, logger *slog.Logger) (*pipeline.Matcher, func(), error) {
	embedder, release, err := setupQueryEmbedder(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	provider := setupProvider(ctx, cfg, logger)
	m := pipeline.NewMatcher(
		setupExtractor(provider, cfg, logger),
		setupStandardizer(provider, cfg, logger),
		match.NewEngine(embedder, s, cfg.Search.MinScore, logger),
		logger,
	)
	m.SetQueryEnrichment(cfg.Search.EnrichQuery)
	return m, release, nil
}

// setupSyncWorker builds the worker and attaches the Slack notifier when a
// webhook is configured.
func setupSyncWorker(cfg *config.Config, s model.EmbeddingStore, logger *slog.Logger) (*scheduler.SyncWorker, error) {
	embedder, err := setupWorkerEmbedder(cfg, logger)
	if err != nil {
		return nil, err
	}
	worker := scheduler.NewSyncWorker(embedder, s, syncOptions(cfg), logger)
	if cfg.Notify.SlackWebhookURL != "" {
		httpClient := &http.Client{Timeout: 30 * time.Second}
		worker.SetNotifier(notifier.NewSlackNotifier(cfg.Notify.SlackWebhookURL, httpClient, logger))
		logger.Info("slack notifications enabled for failed sync jobs")
	}
	return worker, nil
}

func syncOptions(cfg *config.Config) scheduler.Options {
	return scheduler.Options{
		BatchSize:      cfg.Sync.BatchSize,
		MaxAge:         cfg.Sync.MaxAge,
		Interval:       cfg.Sync.Interval,
		RetryInterval:  cfg.Sync.RetryInterval,
		CallTimeout:    cfg.Sync.CallTimeout,
		FailureBackoff: cfg.Sync.FailureBackoff,
	}
}
