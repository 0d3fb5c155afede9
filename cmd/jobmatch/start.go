package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the embedding sync daemon",
	Long:  "Start the embedding sync worker; blocks until SIGINT/SIGTERM.",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	logger := setupLogger(os.Stderr, debug, jsonLogs)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("config loaded",
		"interval", cfg.Sync.Interval.String(),
		"batch_size", cfg.Sync.BatchSize,
		"max_age", cfg.Sync.MaxAge.String(),
		"model", cfg.Embedding.Model,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer s.Close()

	worker, err := setupSyncWorker(cfg, s, logger)
	if err != nil {
		logger.Error("failed to set up sync worker", "error", err)
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil {
		logger.Error("sync worker error", "error", err)
		os.Exit(1)
	}

	logger.Info("goodbye")
	return nil
}
