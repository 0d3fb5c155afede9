package ai

import (
	"context"
	"errors"
)

// ErrDisabled is returned by NopProvider so callers take their fallback path.
var ErrDisabled = errors.New("llm provider disabled")

// CompletionRequest is one structured-output call. Schema is a JSON Schema
// object the reply must conform to.
type CompletionRequest struct {
	System     string
	Prompt     string
	SchemaName string
	Schema     map[string]any
}

// LLMProvider sends a prompt to an LLM and returns the raw text response.
// Used only by PreferenceExtractor and TermStandardizer.
type LLMProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
