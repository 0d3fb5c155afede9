package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobmatch/internal/model"
	"github.com/amishk599/jobmatch/internal/pipeline"
	"github.com/amishk599/jobmatch/internal/store"
	"github.com/amishk599/jobmatch/internal/ui"
)

var (
	searchUser        string
	searchLimit       int
	searchDryRun      bool
	searchPlain       bool
	searchInteractive bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query...>",
	Short: "Find postings matching a free-text request",
	Long: `Extracts preferences from the request, standardizes them, and ranks postings
by semantic similarity. The search and its matches are recorded for --user
unless --dry-run is set.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchUser, "user", "u", "cli", "user ID the search is recorded under")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum number of matches (default: search.default_limit)")
	searchCmd.Flags().BoolVar(&searchDryRun, "dry-run", false, "do not record the search")
	searchCmd.Flags().BoolVar(&searchPlain, "plain", false, "no spinner or colors")
	searchCmd.Flags().BoolVarP(&searchInteractive, "interactive", "i", false, "browse matches in a full-screen view")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	logger := silentUnlessDebug()
	if searchPlain {
		logger = setupLogger(os.Stderr, debug, jsonLogs)
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	limit := searchLimit
	if limit == 0 {
		limit = cfg.Search.DefaultLimit
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	var s model.Store = backend
	if searchDryRun {
		s = store.NewReadOnly(backend)
	}

	matcher, release, err := setupMatcher(ctx, cfg, s, logger)
	if err != nil {
		return err
	}
	defer release()

	find := func(ctx context.Context) (*pipeline.Outcome, error) {
		return matcher.Find(ctx, searchUser, query, limit)
	}

	var out *pipeline.Outcome
	if searchPlain {
		out, err = find(ctx)
	} else {
		out, err = ui.RunSpinner(ctx, "Searching", cfg.Embedding.Timeout+2*cfg.AI.Timeout, find)
	}
	if err != nil {
		return explainSearchError(err)
	}

	if searchInteractive {
		return ui.Browse(fmt.Sprintf("Matches for %q", query), out.Result.Matches)
	}
	ui.NewRenderer(cmd.OutOrStdout(), searchPlain).Outcome(out)
	return nil
}

// explainSearchError adds a hint for the errors a user can act on.
func explainSearchError(err error) error {
	switch {
	case errors.Is(err, ui.ErrCancelled):
		return err
	case errors.Is(err, model.ErrSystemNotInitialized):
		return fmt.Errorf("%w (run `jobmatch sync --all` first)", err)
	case errors.Is(err, model.ErrConfiguration):
		return fmt.Errorf("%w (check embedding.api_key)", err)
	case errors.Is(err, model.ErrProviderRateLimited):
		return fmt.Errorf("%w (try again shortly)", err)
	default:
		return err
	}
}
