package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobmatch/internal/scheduler"
)

var (
	syncAll    bool
	syncDryRun bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Embed one batch of stale postings, then exit",
	Long:  "One-shot sync: embeds the next batch of postings whose embedding is missing or stale. With --all, repeats until nothing is left.",
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncAll, "all", false, "keep syncing batches until no stale postings remain")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "list the stale postings without calling the embedding provider")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	logger := setupLogger(os.Stderr, debug, jsonLogs)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer s.Close()

	if syncDryRun {
		jobs, err := s.StaleJobs(ctx, cfg.Sync.MaxAge, cfg.Sync.BatchSize)
		if err != nil {
			return fmt.Errorf("listing stale jobs: %w", err)
		}
		out := cmd.OutOrStdout()
		for _, j := range jobs {
			fmt.Fprintf(out, "%d\t%s\n", j.ID, j.Title)
		}
		logger.Info("dry run complete", "stale", len(jobs))
		return nil
	}

	worker, err := setupSyncWorker(cfg, s, logger)
	if err != nil {
		logger.Error("failed to set up sync worker", "error", err)
		os.Exit(1)
	}

	var report scheduler.BatchReport
	if syncAll {
		report, err = worker.Drain(ctx)
	} else {
		report, err = worker.RunOnce(ctx)
	}
	if err != nil {
		return err
	}

	logger.Info("sync complete",
		"fetched", report.Fetched,
		"embedded", report.Embedded,
		"failed", report.Failed,
		"deferred", report.Deferred,
		"duration", report.Duration.String(),
	)
	return nil
}
