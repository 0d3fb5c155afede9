package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobmatch/internal/match"
	"github.com/amishk599/jobmatch/internal/ui"
)

var (
	historyUser        string
	historyLimit       int
	historyInteractive bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show postings recently matched for a user",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVarP(&historyUser, "user", "u", "cli", "user ID to show history for")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of matches")
	historyCmd.Flags().BoolVarP(&historyInteractive, "interactive", "i", false, "browse matches in a full-screen view")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	logger := silentUnlessDebug()

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	// History never embeds, so the engine gets no embedder.
	engine := match.NewEngine(nil, s, cfg.Search.MinScore, logger)
	matches, err := engine.RecentMatches(ctx, historyUser, historyLimit)
	if err != nil {
		return err
	}

	if historyInteractive {
		return ui.Browse(fmt.Sprintf("History for %s", historyUser), matches)
	}
	ui.NewRenderer(cmd.OutOrStdout(), false).Matches(matches)
	return nil
}
