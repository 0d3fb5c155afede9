package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/jobmatch/internal/model"
	"github.com/amishk599/jobmatch/internal/pipeline"
)

var (
	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(12)

	rankStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	titleStyle = lipgloss.NewStyle().
			Bold(true)

	scoreStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))
)

// Renderer writes search results either styled or as plain text.
type Renderer struct {
	w     io.Writer
	plain bool
}

// NewRenderer creates a renderer. plain disables all styling.
func NewRenderer(w io.Writer, plain bool) *Renderer {
	return &Renderer{w: w, plain: plain}
}

func (r *Renderer) style(s lipgloss.Style, text string) string {
	if r.plain {
		return text
	}
	return s.Render(text)
}

// Preferences writes the extracted preferences and any standardized terms.
func (r *Renderer) Preferences(prefs model.ExtractedPreferences, terms map[model.Field]model.StandardizedTerm) {
	fmt.Fprintln(r.w, r.style(sectionStyle, "Preferences"))
	r.field("search type", string(prefs.SearchType))
	for _, f := range []struct {
		name  string
		value *string
	}{
		{"role", prefs.Role},
		{"location", prefs.Location},
		{"experience", prefs.Experience},
		{"salary", prefs.Salary},
	} {
		value := "-"
		if f.value != nil {
			value = *f.value
		}
		if term, ok := terms[model.Field(f.name)]; ok && len(term.Variations) > 0 {
			value = fmt.Sprintf("%s (%s)", term.Standardized, strings.Join(term.Variations, ", "))
		}
		r.field(f.name, value)
	}
	fmt.Fprintln(r.w)
}

func (r *Renderer) field(label, value string) {
	if r.plain {
		fmt.Fprintf(r.w, "  %-11s %s\n", label+":", value)
		return
	}
	fmt.Fprintf(r.w, "  %s%s\n", labelStyle.Render(label), value)
}

// Matches writes a ranked list of postings.
func (r *Renderer) Matches(matches []model.Match) {
	if len(matches) == 0 {
		fmt.Fprintln(r.w, "  (no matches)")
		return
	}
	for i, m := range matches {
		fmt.Fprintf(r.w, "%s %s  %s\n",
			r.style(rankStyle, fmt.Sprintf("%2d.", i+1)),
			r.style(titleStyle, m.Job.Title),
			r.style(scoreStyle, fmt.Sprintf("%.3f", m.Score)),
		)
		fmt.Fprintf(r.w, "    %s\n", r.style(subtitleStyle, subtitle(m.Job)))
		if m.Job.Link != "" {
			fmt.Fprintf(r.w, "    %s\n", m.Job.Link)
		}
	}
}

// Outcome writes a full pipeline result.
func (r *Renderer) Outcome(out *pipeline.Outcome) {
	r.Preferences(out.Preferences, out.Terms)
	fmt.Fprintln(r.w, r.style(sectionStyle, fmt.Sprintf("Matches (%d)", len(out.Result.Matches))))
	if out.Result.Broadened {
		fmt.Fprintln(r.w, r.style(warnStyle, "  no postings in that location, showing the best matches anywhere"))
	}
	r.Matches(out.Result.Matches)
}

// subtitle is the one-line summary under a posting's title.
func subtitle(j model.JobPosting) string {
	var parts []string
	for _, p := range []string{j.Location, j.Seniority, j.Service, j.Salary} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if !j.PublishedAt.IsZero() {
		parts = append(parts, j.PublishedAt.Format("2006-01-02"))
	}
	if len(parts) == 0 {
		return "n/a"
	}
	return strings.Join(parts, " · ")
}
