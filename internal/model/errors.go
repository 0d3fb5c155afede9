package model

import (
	"errors"
	"fmt"
	"time"
)

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// Embedding provider failures. The gateway returns exactly one of these
// (wrapped) for every failed call.
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnauthorized    = errors.New("provider rejected credentials")
	ErrRateLimited     = errors.New("provider rate limited")
	ErrUnavailable     = errors.New("provider unavailable")
	ErrInvalidResponse = errors.New("invalid provider response")
)

// Search failures surfaced by the match engine.
var (
	ErrEmptyQuery           = fmt.Errorf("%w: query text cannot be empty", ErrInvalidInput)
	ErrInvalidLimit         = fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	ErrConfiguration        = errors.New("embedding provider misconfigured")
	ErrProviderRateLimited  = errors.New("embedding provider is rate limiting requests")
	ErrProviderUnavailable  = errors.New("embedding provider is unavailable")
	ErrSystemNotInitialized = errors.New("no job embeddings have been generated yet")
	ErrStoreUnavailable     = errors.New("embedding store unavailable")
)
