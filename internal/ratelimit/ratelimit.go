package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amishk599/jobmatch/internal/model"
)

// Limiter enforces a minimum delay between calls sharing the same key.
// Concurrent waiters on one key are spaced out one gap apart.
type Limiter struct {
	mu       sync.Mutex
	next     map[string]time.Time // earliest start of the next call, per key
	minDelay time.Duration
}

// NewLimiter creates a limiter that enforces minDelay between consecutive
// calls with the same key.
func NewLimiter(minDelay time.Duration) *Limiter {
	return &Limiter{
		next:     make(map[string]time.Time),
		minDelay: minDelay,
	}
}

// Wait blocks until the caller may proceed for key.
// Returns an error if the context is cancelled while waiting.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if l.minDelay <= 0 {
		return nil
	}

	l.mu.Lock()
	now := time.Now()
	slot, ok := l.next[key]
	if !ok || !slot.After(now) {
		slot = now
	}
	l.next[key] = slot.Add(l.minDelay)
	l.mu.Unlock()

	remaining := slot.Sub(now)
	if remaining <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limiter wait for %s: %w", key, ctx.Err())
	case <-time.After(remaining):
	}
	return nil
}

// Embedder is a decorator that rate limits calls to the wrapped Embedder.
// All embedders targeting the same provider should share one Limiter.
type Embedder struct {
	inner    model.Embedder
	limiter  *Limiter
	provider string
}

// NewEmbedder wraps an Embedder with provider-level rate limiting.
func NewEmbedder(inner model.Embedder, limiter *Limiter, provider string) *Embedder {
	return &Embedder{
		inner:    inner,
		limiter:  limiter,
		provider: provider,
	}
}

// Embed waits for the limiter, then delegates to the wrapped embedder.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx, e.provider); err != nil {
		return nil, err
	}
	return e.inner.Embed(ctx, text)
}
