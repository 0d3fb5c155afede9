package ai

import "context"

// NopProvider is used when ai.enabled is false. Every call fails with
// ErrDisabled, so extraction and standardization use their rule-based paths.
type NopProvider struct{}

// NewNopProvider returns a NopProvider.
func NewNopProvider() *NopProvider {
	return &NopProvider{}
}

// Complete always returns ErrDisabled.
func (n *NopProvider) Complete(_ context.Context, _ CompletionRequest) (string, error) {
	return "", ErrDisabled
}
