// Package cache fronts the model store with a Redis read-through cache.
// Concurrent misses for the same key are collapsed through singleflight so a
// cold cache admits one store read per key, not one per request.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/topicmine/platform/pkg/config"
	"github.com/topicmine/platform/pkg/metrics"
	pkgredis "github.com/topicmine/platform/pkg/redis"
)

const keyPrefix = "topics:"

// RunCache caches serialized model-store reads in Redis.
type RunCache struct {
	client  *pkgredis.Client
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a RunCache with the TTL from cfg. m may be nil.
func New(client *pkgredis.Client, cfg config.RedisConfig, m *metrics.Metrics) *RunCache {
	return &RunCache{
		client:  client,
		ttl:     cfg.CacheTTL,
		metrics: m,
		logger:  slog.Default().With("component", "run-cache"),
	}
}

// GetOrCompute returns the cached value for key, or computes, caches, and
// returns it. The boolean reports whether the value came from the cache.
// Compute errors are returned uncached.
func GetOrCompute[T any](ctx context.Context, c *RunCache, key string, compute func() (T, error)) (T, bool, error) {
	var zero T
	storageKey := c.buildKey(key)
	if cached, ok := lookup[T](ctx, c, storageKey); ok {
		return cached, true, nil
	}
	val, err, _ := c.group.Do(storageKey, func() (interface{}, error) {
		if cached, ok := lookup[T](ctx, c, storageKey); ok {
			return cached, nil
		}
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.store(ctx, storageKey, result)
		return result, nil
	})
	if err != nil {
		return zero, false, err
	}
	return val.(T), false, nil
}

// Invalidate drops every cached entry.
func (c *RunCache) Invalidate(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating run cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

// Stats reports hit and miss counts since startup.
func (c *RunCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func lookup[T any](ctx context.Context, c *RunCache, storageKey string) (T, bool) {
	var result T
	data, err := c.client.Get(ctx, storageKey)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", storageKey, "error", err)
		}
		c.miss()
		return result, false
	}
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", storageKey, "error", err)
		c.miss()
		return result, false
	}
	c.hit()
	return result, true
}

func (c *RunCache) store(ctx context.Context, storageKey string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", storageKey, "error", err)
		return
	}
	if err := c.client.Set(ctx, storageKey, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", storageKey, "error", err)
	}
}

func (c *RunCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *RunCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func (c *RunCache) buildKey(raw string) string {
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
