package filter

import (
	"strings"

	"github.com/amishk599/jobmatch/internal/model"
)

// LocationFilter matches postings whose location contains any of the given
// terms. Matching is case-insensitive. An empty term list matches everything.
type LocationFilter struct {
	terms []string
}

// NewLocationFilter returns a filter for location plus its variants. Blank
// and duplicate terms are dropped.
func NewLocationFilter(location string, variants ...string) *LocationFilter {
	seen := make(map[string]bool)
	var terms []string
	for _, t := range append([]string{location}, variants...) {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		terms = append(terms, t)
	}
	return &LocationFilter{terms: terms}
}

// Active reports whether the filter restricts anything.
func (f *LocationFilter) Active() bool {
	return len(f.terms) > 0
}

// Match returns true if the job's location contains any term.
func (f *LocationFilter) Match(job model.JobPosting) bool {
	if len(f.terms) == 0 {
		return true
	}
	locationLower := strings.ToLower(job.Location)
	for _, t := range f.terms {
		if strings.Contains(locationLower, t) {
			return true
		}
	}
	return false
}

// Apply keeps the matches that pass the filter, preserving order.
func (f *LocationFilter) Apply(matches []model.Match) []model.Match {
	if !f.Active() {
		return matches
	}
	var kept []model.Match
	for _, m := range matches {
		if f.Match(m.Job) {
			kept = append(kept, m)
		}
	}
	return kept
}
