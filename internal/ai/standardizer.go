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

const standardizeSystemPrompt = "You normalize job search terms into canonical forms with search variations. Reply with JSON only."

var standardizableFields = []model.Field{model.FieldRole, model.FieldLocation, model.FieldExperience}

// TermStandardizer canonicalizes extracted preferences and lists the
// spellings to search for.
type TermStandardizer struct {
	provider LLMProvider
	tmpl     *template.Template
	timeout  time.Duration
	logger   *slog.Logger
}

// NewTermStandardizer creates a standardizer. timeout bounds each model call.
func NewTermStandardizer(provider LLMProvider, tmpl *template.Template, timeout time.Duration, logger *slog.Logger) *TermStandardizer {
	return &TermStandardizer{
		provider: provider,
		tmpl:     tmpl,
		timeout:  timeout,
		logger:   logger,
	}
}

type termInput struct {
	Field model.Field
	Value string
}

// Standardize returns one term for each present role, location and
// experience. It never fails: a field the model gets wrong falls back to its
// lower-cased raw value.
func (s *TermStandardizer) Standardize(ctx context.Context, prefs model.ExtractedPreferences) map[model.Field]model.StandardizedTerm {
	var inputs []termInput
	for _, f := range standardizableFields {
		if v := prefs.Value(f); v != nil && strings.TrimSpace(*v) != "" {
			inputs = append(inputs, termInput{Field: f, Value: *v})
		}
	}

	out := make(map[model.Field]model.StandardizedTerm, len(inputs))
	if len(inputs) == 0 {
		return out
	}

	parsed, err := s.fromModel(ctx, inputs)
	if err != nil && !errors.Is(err, ErrDisabled) {
		s.logger.Warn("term standardization fell back to raw values", "error", err)
	}

	for _, in := range inputs {
		term, ok := parsed[in.Field]
		if !ok {
			term = fallbackTerm(in.Value)
		}
		out[in.Field] = term
	}
	return out
}

// fallbackTerm is the canonical form used when the model gives nothing usable.
func fallbackTerm(raw string) model.StandardizedTerm {
	v := strings.ToLower(strings.TrimSpace(raw))
	return model.StandardizedTerm{Standardized: v, Variations: []string{v}}
}

func termSchema(inputs []termInput) map[string]any {
	props := make(map[string]any, len(inputs))
	required := make([]string, 0, len(inputs))
	for _, in := range inputs {
		props[string(in.Field)] = map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties": map[string]any{
				"standardized": map[string]any{"type": "string"},
				"search_variations": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
			},
			"required": []string{"standardized", "search_variations"},
		}
		required = append(required, string(in.Field))
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             required,
	}
}

// fromModel returns the fields the model answered validly. Invalid fields are
// logged and left out.
func (s *TermStandardizer) fromModel(ctx context.Context, inputs []termInput) (map[model.Field]model.StandardizedTerm, error) {
	var promptBuf bytes.Buffer
	if err := s.tmpl.Execute(&promptBuf, struct{ Terms []termInput }{Terms: inputs}); err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	reply, err := s.provider.Complete(ctx, CompletionRequest{
		System:     standardizeSystemPrompt,
		Prompt:     promptBuf.String(),
		SchemaName: "standardized_terms",
		Schema:     termSchema(inputs),
	})
	if err != nil {
		return nil, fmt.Errorf("llm complete: %w", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(stripCodeFence(reply)), &fields); err != nil {
		return nil, fmt.Errorf("unmarshal terms JSON: %w", err)
	}

	out := make(map[model.Field]model.StandardizedTerm, len(inputs))
	for _, in := range inputs {
		raw, ok := fields[string(in.Field)]
		if !ok {
			s.logger.Warn("model omitted field, using raw value", "field", in.Field)
			continue
		}
		term, err := parseTerm(raw)
		if err != nil {
			s.logger.Warn("invalid standardized term, using raw value", "field", in.Field, "error", err)
			continue
		}
		out[in.Field] = term
	}
	return out, nil
}

// parseTerm validates one {standardized, search_variations} object and
// cleans it up.
func parseTerm(raw json.RawMessage) (model.StandardizedTerm, error) {
	var obj struct {
		Standardized json.RawMessage `json:"standardized"`
		Variations   json.RawMessage `json:"search_variations"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return model.StandardizedTerm{}, fmt.Errorf("not an object: %w", err)
	}

	var standardized string
	if err := json.Unmarshal(obj.Standardized, &standardized); err != nil {
		return model.StandardizedTerm{}, fmt.Errorf("standardized is not a string")
	}
	standardized = strings.ToLower(strings.TrimSpace(standardized))
	if standardized == "" {
		return model.StandardizedTerm{}, fmt.Errorf("standardized is empty")
	}

	var variations []string
	if err := json.Unmarshal(obj.Variations, &variations); err != nil {
		return model.StandardizedTerm{}, fmt.Errorf("search_variations is not a list of strings")
	}
	if len(variations) == 0 {
		return model.StandardizedTerm{}, fmt.Errorf("search_variations is empty")
	}

	return model.StandardizedTerm{
		Standardized: standardized,
		Variations:   cleanVariations(standardized, variations),
	}, nil
}

// cleanVariations trims, drops blanks, de-duplicates case-insensitively
// keeping the first spelling, and makes sure standardized is present.
func cleanVariations(standardized string, variations []string) []string {
	seen := make(map[string]bool, len(variations)+1)
	out := make([]string, 0, len(variations)+1)
	for _, v := range variations {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	if !seen[strings.ToLower(standardized)] {
		out = append(out, standardized)
	}
	return out
}
