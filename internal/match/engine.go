package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/jobmatch/internal/filter"
	"github.com/amishk599/jobmatch/internal/model"
	"github.com/amishk599/jobmatch/internal/vector"
)

// Query is one search request.
type Query struct {
	Text             string
	EmbedText        string   // embedded instead of Text when set; Text is what gets recorded
	Location         string   // optional location filter
	LocationVariants []string // extra spellings accepted by the filter
	Limit            int
	UserID           string
	Preferences      *model.ExtractedPreferences // recorded with the search, may be nil
}

// Result is the outcome of a search. Broadened is set when the location
// filter matched nothing and the unfiltered ranking was returned instead.
type Result struct {
	SearchID  uuid.UUID
	Matches   []model.Match
	Broadened bool
}

// Engine ranks embedded postings against a free-text query.
type Engine struct {
	embedder model.Embedder
	store    model.Store
	minScore float64
	now      func() time.Time
	logger   *slog.Logger
}

// NewEngine creates an engine. minScore drops candidates scoring below it;
// zero keeps everything.
func NewEngine(embedder model.Embedder, store model.Store, minScore float64, logger *slog.Logger) *Engine {
	return &Engine{
		embedder: embedder,
		store:    store,
		minScore: minScore,
		now:      time.Now,
		logger:   logger,
	}
}

// Search embeds q.Text (or q.EmbedText), ranks every embedded posting by cosine similarity,
// applies the location filter and records the search.
func (e *Engine) Search(ctx context.Context, q Query) (*Result, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, model.ErrEmptyQuery
	}
	if q.Limit <= 0 {
		return nil, model.ErrInvalidLimit
	}

	embedText := q.Text
	if strings.TrimSpace(q.EmbedText) != "" {
		embedText = q.EmbedText
	}
	queryVec, err := e.embedder.Embed(ctx, embedText)
	if err != nil {
		return nil, classifyEmbedError(err)
	}

	count, err := e.store.CountEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: counting embeddings: %w", model.ErrStoreUnavailable, err)
	}
	if count == 0 {
		return nil, model.ErrSystemNotInitialized
	}

	candidates, err := e.store.Candidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: loading candidates: %w", model.ErrStoreUnavailable, err)
	}
	if !hasDimension(candidates, len(queryVec)) {
		return nil, fmt.Errorf("%w: no stored embedding has dimension %d", model.ErrSystemNotInitialized, len(queryVec))
	}
	ranked := vector.Rank(queryVec, candidates, e.minScore)

	result := &Result{SearchID: uuid.New()}
	locFilter := filter.NewLocationFilter(q.Location, q.LocationVariants...)
	matches := locFilter.Apply(ranked)
	if len(matches) == 0 && locFilter.Active() {
		e.logger.Info("no matches in location, broadening search", "location", q.Location)
		matches = ranked
		result.Broadened = true
	}
	if len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}
	result.Matches = matches

	if err := e.record(ctx, result, q); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}

	e.logger.Info("search complete",
		"search_id", result.SearchID,
		"user_id", q.UserID,
		"candidates", len(candidates),
		"returned", len(result.Matches),
		"broadened", result.Broadened,
	)
	return result, nil
}

// hasDimension reports whether any candidate can be scored against a query
// vector of length dim.
func hasDimension(candidates []model.Candidate, dim int) bool {
	for _, c := range candidates {
		if len(c.Vector) == dim {
			return true
		}
	}
	return false
}

// RecentMatches returns the user's latest recorded matches, newest first.
func (e *Engine) RecentMatches(ctx context.Context, userID string, limit int) ([]model.Match, error) {
	if limit <= 0 {
		return nil, model.ErrInvalidLimit
	}
	matches, err := e.store.RecentMatches(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}
	return matches, nil
}

func (e *Engine) record(ctx context.Context, result *Result, q Query) error {
	var prefs []byte
	if q.Preferences != nil {
		b, err := json.Marshal(q.Preferences)
		if err != nil {
			return fmt.Errorf("encoding preferences: %w", err)
		}
		prefs = b
	}

	now := e.now()
	search := model.SearchRecord{
		ID:          result.SearchID,
		UserID:      q.UserID,
		Query:       q.Text,
		Preferences: prefs,
		CreatedAt:   now,
	}
	records := make([]model.MatchRecord, 0, len(result.Matches))
	for _, m := range result.Matches {
		records = append(records, model.MatchRecord{
			SearchID:  result.SearchID,
			UserID:    q.UserID,
			JobID:     m.Job.ID,
			Score:     m.Score,
			CreatedAt: now,
		})
	}

	if err := e.store.RecordSearch(ctx, search, records); err != nil {
		return fmt.Errorf("recording search %s: %w", result.SearchID, err)
	}
	return nil
}

// classifyEmbedError maps gateway failures onto the errors callers act on.
func classifyEmbedError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, model.ErrUnauthorized):
		return fmt.Errorf("%w: %w", model.ErrConfiguration, err)
	case errors.Is(err, model.ErrRateLimited):
		return fmt.Errorf("%w: %w", model.ErrProviderRateLimited, err)
	case errors.Is(err, model.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", model.ErrProviderUnavailable, err)
	case errors.Is(err, model.ErrInvalidResponse), errors.Is(err, model.ErrInvalidInput):
		return fmt.Errorf("embedding query: %w", err)
	default:
		return fmt.Errorf("%w: %w", model.ErrProviderUnavailable, err)
	}
}
