package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/amishk599/jobmatch/internal/model"
)

// Embedder is a decorator that retries transient embedding failures with
// exponential backoff and jitter before giving up.
type Embedder struct {
	inner      model.Embedder
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// NewEmbedder wraps an Embedder with retry logic.
// maxRetries is the number of additional attempts after the first failure.
// baseDelay is the delay before the first retry, doubled on each subsequent retry.
func NewEmbedder(inner model.Embedder, maxRetries int, baseDelay time.Duration, logger *slog.Logger) *Embedder {
	return &Embedder{
		inner:      inner,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     logger,
	}
}

// Embed attempts to embed text, retrying on rate limiting and unavailability.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.inner.Embed(ctx, text)
	if err == nil {
		return vec, nil
	}

	if !isRetryable(err) {
		return nil, err
	}

	lastErr := err
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		delay := e.backoffDelay(attempt, lastErr)

		e.logger.Warn("retrying embedding after transient error",
			"attempt", attempt,
			"max_retries", e.maxRetries,
			"delay", delay,
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}

		vec, err = e.inner.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}

		if !isRetryable(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

// backoffDelay computes the delay for a given attempt with ±30% jitter.
// A Retry-After carried by the error takes precedence.
func (e *Embedder) backoffDelay(attempt int, err error) time.Duration {
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}

	delay := e.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}

	jitter := float64(delay) * 0.3
	return time.Duration(float64(delay) + (rand.Float64()*2-1)*jitter)
}

// isRetryable returns true for rate limiting and provider unavailability.
// Cancellation of the caller's context is never retried.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, model.ErrRateLimited) || errors.Is(err, model.ErrUnavailable)
}
