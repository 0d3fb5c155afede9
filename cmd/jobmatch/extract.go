package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobmatch/internal/model"
)

var extractCmd = &cobra.Command{
	Use:   "extract <query...>",
	Short: "Show the preferences and standardized terms for a request",
	Long:  "Runs preference extraction and term standardization only. No embeddings are generated and nothing is stored.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)
}

type extractOutput struct {
	Preferences model.ExtractedPreferences             `json:"preferences"`
	Terms       map[model.Field]model.StandardizedTerm `json:"standardized_terms"`
}

func runExtract(cmd *cobra.Command, args []string) error {
	logger := setupLogger(os.Stderr, debug, jsonLogs)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider := setupProvider(ctx, cfg, logger)
	prefs := setupExtractor(provider, cfg, logger).Extract(ctx, strings.Join(args, " "))
	terms := setupStandardizer(provider, cfg, logger).Standardize(ctx, prefs)

	data, err := json.MarshalIndent(extractOutput{Preferences: prefs, Terms: terms}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
