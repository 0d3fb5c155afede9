package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/amishk599/jobmatch/internal/match"
	"github.com/amishk599/jobmatch/internal/model"
)

// Extractor turns free text into structured preferences. It never fails.
type Extractor interface {
	Extract(ctx context.Context, raw string) model.ExtractedPreferences
}

// Standardizer canonicalizes preference fields. It never fails.
type Standardizer interface {
	Standardize(ctx context.Context, prefs model.ExtractedPreferences) map[model.Field]model.StandardizedTerm
}

// Searcher ranks postings for a query.
type Searcher interface {
	Search(ctx context.Context, q match.Query) (*match.Result, error)
}

// Outcome is everything a front-end needs to render one request.
type Outcome struct {
	Preferences model.ExtractedPreferences
	Terms       map[model.Field]model.StandardizedTerm
	Result      *match.Result
}

// Matcher owns the request pipeline for a front-end:
// extract → standardize → search.
type Matcher struct {
	extractor    Extractor
	standardizer Standardizer
	searcher     Searcher
	enrich       bool
	logger       *slog.Logger
}

// NewMatcher creates a matcher wired with all its dependencies.
func NewMatcher(extractor Extractor, standardizer Standardizer, searcher Searcher, logger *slog.Logger) *Matcher {
	return &Matcher{
		extractor:    extractor,
		standardizer: standardizer,
		searcher:     searcher,
		logger:       logger,
	}
}

// SetQueryEnrichment makes Find append the extracted preferences to the
// text it embeds ("query | Location: boston | Seniority: senior"). The
// recorded query stays as the user typed it.
func (m *Matcher) SetQueryEnrichment(on bool) {
	m.enrich = on
}

// ExtractPreferences runs only the extraction step.
func (m *Matcher) ExtractPreferences(ctx context.Context, text string) model.ExtractedPreferences {
	return m.extractor.Extract(ctx, text)
}

// Standardize runs only the standardization step.
func (m *Matcher) Standardize(ctx context.Context, prefs model.ExtractedPreferences) map[model.Field]model.StandardizedTerm {
	return m.standardizer.Standardize(ctx, prefs)
}

// Find runs the full pipeline for one user request.
func (m *Matcher) Find(ctx context.Context, userID, text string, limit int) (*Outcome, error) {
	prefs := m.extractor.Extract(ctx, text)
	terms := m.standardizer.Standardize(ctx, prefs)

	q := match.Query{
		Text:        text,
		Limit:       limit,
		UserID:      userID,
		Preferences: &prefs,
	}
	if loc, ok := terms[model.FieldLocation]; ok {
		q.Location = loc.Standardized
		q.LocationVariants = loc.Variations
	} else if prefs.Location != nil {
		q.Location = *prefs.Location
	}
	if m.enrich {
		q.EmbedText = enrichedText(text, q.Location, prefs, terms)
	}

	res, err := m.searcher.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("searching for %q: %w", text, err)
	}

	m.logger.Info("matched request",
		"user_id", userID,
		"search_type", prefs.SearchType,
		"location", q.Location,
		"returned", len(res.Matches),
		"broadened", res.Broadened,
	)

	return &Outcome{Preferences: prefs, Terms: terms, Result: res}, nil
}

// enrichedText joins the query with its preferences, standardized where
// possible. Absent preferences are left out.
func enrichedText(text, location string, prefs model.ExtractedPreferences, terms map[model.Field]model.StandardizedTerm) string {
	seniority := ""
	if t, ok := terms[model.FieldExperience]; ok {
		seniority = t.Standardized
	} else if prefs.Experience != nil {
		seniority = *prefs.Experience
	}
	salary := ""
	if prefs.Salary != nil {
		salary = *prefs.Salary
	}

	parts := []string{strings.TrimSpace(text)}
	for _, p := range []struct{ label, value string }{
		{"Location", location},
		{"Seniority", seniority},
		{"Salary Range", salary},
	} {
		if v := strings.TrimSpace(p.value); v != "" {
			parts = append(parts, p.label+": "+v)
		}
	}
	return strings.Join(parts, " | ")
}
