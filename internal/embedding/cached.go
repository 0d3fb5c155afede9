package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"

	"github.com/amishk599/jobmatch/internal/model"
)

// Cache is the subset of cache.Redis used for query embeddings.
type Cache interface {
	GetJSON(ctx context.Context, key string, out any) (bool, error)
	SetJSON(ctx context.Context, key string, value any) error
}

// CachedEmbedder serves repeated query embeddings from a cache. Cache errors
// are logged and never returned; the inner embedder's errors pass through.
type CachedEmbedder struct {
	inner      model.Embedder
	cache      Cache
	model      string
	dimensions int
	logger     *slog.Logger
}

// NewCachedEmbedder wraps inner. Cached vectors whose length differs from
// dimensions are ignored.
func NewCachedEmbedder(inner model.Embedder, cache Cache, modelName string, dimensions int, logger *slog.Logger) *CachedEmbedder {
	return &CachedEmbedder{
		inner:      inner,
		cache:      cache,
		model:      modelName,
		dimensions: dimensions,
		logger:     logger,
	}
}

// Embed returns the cached vector for text or computes and stores it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return c.inner.Embed(ctx, text)
	}

	key := c.key(text)
	var cached []float32
	hit, err := c.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		c.logger.Debug("embedding cache read failed", "error", err)
	}
	if hit && len(cached) == c.dimensions {
		c.logger.Debug("embedding cache hit", "key", key)
		return cached, nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.cache.SetJSON(ctx, key, vec); err != nil {
		c.logger.Debug("embedding cache write failed", "error", err)
	}
	return vec, nil
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return "embedding:" + c.model + ":" + hex.EncodeToString(sum[:])
}
