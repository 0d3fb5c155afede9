package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/amishk599/jobmatch/internal/model"
)

// preferencesSchema is enforced server-side where the provider supports it.
var preferencesSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]any{
		"role":       map[string]any{"type": []string{"string", "null"}},
		"location":   map[string]any{"type": []string{"string", "null"}},
		"experience": map[string]any{"type": []string{"string", "null"}},
		"salary":     map[string]any{"type": []string{"string", "null"}},
		"search_type": map[string]any{
			"type": "string",
			"enum": []string{string(model.SearchJobTitle), string(model.SearchSpecialized), string(model.SearchGeneral)},
		},
	},
	"required": []string{"role", "location", "experience", "salary", "search_type"},
}

const extractSystemPrompt = "You extract structured job search preferences from free text. Reply with JSON only."

// PreferenceExtractor turns a free-text job request into ExtractedPreferences.
type PreferenceExtractor struct {
	provider LLMProvider
	tmpl     *template.Template
	timeout  time.Duration
	logger   *slog.Logger
}

// NewPreferenceExtractor creates an extractor. timeout bounds each model call;
// zero leaves the caller's deadline in charge.
func NewPreferenceExtractor(provider LLMProvider, tmpl *template.Template, timeout time.Duration, logger *slog.Logger) *PreferenceExtractor {
	return &PreferenceExtractor{
		provider: provider,
		tmpl:     tmpl,
		timeout:  timeout,
		logger:   logger,
	}
}

// Extract never fails. When the model errors, times out or replies with an
// unusable shape, the keyword fallback is used. Both paths are normalized.
func (e *PreferenceExtractor) Extract(ctx context.Context, raw string) model.ExtractedPreferences {
	if strings.TrimSpace(raw) == "" {
		return model.ExtractedPreferences{SearchType: model.SearchGeneral}
	}

	prefs, err := e.fromModel(ctx, raw)
	if err != nil {
		if !errors.Is(err, ErrDisabled) {
			e.logger.Warn("preference extraction fell back to keywords", "error", err)
		}
		prefs = keywordPreferences(raw)
	}

	return normalize(prefs)
}

func (e *PreferenceExtractor) fromModel(ctx context.Context, raw string) (model.ExtractedPreferences, error) {
	var promptBuf bytes.Buffer
	if err := e.tmpl.Execute(&promptBuf, struct{ Query string }{Query: raw}); err != nil {
		return model.ExtractedPreferences{}, fmt.Errorf("render prompt: %w", err)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	reply, err := e.provider.Complete(ctx, CompletionRequest{
		System:     extractSystemPrompt,
		Prompt:     promptBuf.String(),
		SchemaName: "job_preferences",
		Schema:     preferencesSchema,
	})
	if err != nil {
		return model.ExtractedPreferences{}, fmt.Errorf("llm complete: %w", err)
	}

	prefs, err := parsePreferences(reply)
	if err != nil {
		return model.ExtractedPreferences{}, fmt.Errorf("parse preferences: %w", err)
	}
	e.logger.Debug("extracted preferences", "query", raw, "reply", reply)
	return prefs, nil
}

var preferenceKeys = []string{"role", "location", "experience", "salary", "search_type"}

// parsePreferences accepts only an object carrying all five keys with the
// expected types. Anything else is rejected so the caller falls back.
func parsePreferences(reply string) (model.ExtractedPreferences, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(stripCodeFence(reply)), &fields); err != nil {
		return model.ExtractedPreferences{}, fmt.Errorf("unmarshal preferences JSON: %w", err)
	}
	for _, k := range preferenceKeys {
		if _, ok := fields[k]; !ok {
			return model.ExtractedPreferences{}, fmt.Errorf("missing key %q", k)
		}
	}

	var prefs model.ExtractedPreferences
	for k, dst := range map[string]**string{
		"role":       &prefs.Role,
		"location":   &prefs.Location,
		"experience": &prefs.Experience,
		"salary":     &prefs.Salary,
	} {
		if err := json.Unmarshal(fields[k], dst); err != nil {
			return model.ExtractedPreferences{}, fmt.Errorf("key %q: %w", k, err)
		}
	}

	if err := json.Unmarshal(fields["search_type"], &prefs.SearchType); err != nil {
		return model.ExtractedPreferences{}, fmt.Errorf("key %q: %w", "search_type", err)
	}
	if !prefs.SearchType.Valid() {
		return model.ExtractedPreferences{}, fmt.Errorf("unknown search_type %q", prefs.SearchType)
	}
	return prefs, nil
}

// stripCodeFence removes a ```json fence some models wrap around JSON.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
