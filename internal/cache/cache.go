// Package cache is a small JSON cache over Valkey, used to avoid
// hammering provider quota endpoints on every stats request.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"skydeck/internal/config"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned when a key is absent or the cache is disabled.
var ErrMiss = errors.New("cache miss")

type Cache struct {
	client *redis.Client
}

// New connects to Valkey using the configured address. A nil Cache is
// returned without error when caching is disabled; all operations on
// it degrade to misses.
func New(ctx context.Context) (*Cache, error) {
	if config.CacheDisabled {
		return nil, nil
	}
	addr := fmt.Sprintf("%s:%d", config.ValkeyHost, config.ValkeyPort)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "",
		DB:       0,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Valkey: %w", err)
	}
	return &Cache{client: client}, nil
}

// NewWithClient wraps an existing client, mainly for tests.
func NewWithClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Get unmarshals the cached JSON value into out, or returns ErrMiss.
func (c *Cache) Get(ctx context.Context, key string, out any) error {
	if c == nil {
		return ErrMiss
	}
	raw, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		slog.Warn("cache read failed", "key", key, "error", err)
		return ErrMiss
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return ErrMiss
	}
	return nil
}

// Set stores a JSON value with a TTL. Failures are logged and
// swallowed; the cache is never allowed to fail a request.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		slog.Warn("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		slog.Warn("cache write failed", "key", key, "error", err)
	}
}

// Invalidate drops a key.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		slog.Warn("cache invalidation failed", "key", key, "error", err)
	}
}
