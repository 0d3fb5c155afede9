package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 24 * time.Hour

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration // default entry lifetime, 24h when zero
}

// Redis is a JSON cache that degrades to a no-op when the server cannot be
// reached. A nil *Redis is valid and always misses.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger

	warnedUnavailable atomic.Bool
}

// NewRedis connects to Redis and pings it. When the ping fails the returned
// cache bypasses every call instead of failing.
func NewRedis(ctx context.Context, opts Options, logger *slog.Logger) *Redis {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, bypassing cache", "addr", opts.Addr, "error", err)
		_ = client.Close()
		return &Redis{ttl: ttl, logger: logger}
	}

	logger.Info("redis cache connected", "addr", opts.Addr, "ttl", ttl.String())
	return &Redis{client: client, ttl: ttl, logger: logger}
}

// Available reports whether the cache is backed by a live connection.
func (r *Redis) Available() bool {
	return r != nil && r.client != nil
}

func (r *Redis) warnUnavailableOnce(err error) {
	if r.warnedUnavailable.CompareAndSwap(false, true) {
		r.logger.Warn("redis error, continuing without cache", "error", err)
	}
}

// GetJSON decodes the value at key into out. It reports false on a miss.
func (r *Redis) GetJSON(ctx context.Context, key string, out any) (bool, error) {
	if !r.Available() {
		return false, nil
	}
	b, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		r.warnUnavailableOnce(err)
		return false, err
	}
	if len(b) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON stores value at key with the configured TTL.
func (r *Redis) SetJSON(ctx context.Context, key string, value any) error {
	if !r.Available() {
		return nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, key, b, r.ttl).Err(); err != nil {
		r.warnUnavailableOnce(err)
		return err
	}
	return nil
}

// Close releases the connection.
func (r *Redis) Close() error {
	if !r.Available() {
		return nil
	}
	return r.client.Close()
}
