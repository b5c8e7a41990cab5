// Package cache provides the shared read-through cache used by the config
// resolver and model metadata aggregator. Every operation is fail-open: a
// backend outage degrades to "always miss" / "no-op set" and is logged,
// never surfaced to request handling.
package cache

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const keyNamespace = "cgw:"

// TTLs per logical cache tier. Provider configs expire faster because
// credential and endpoint changes are riskier to serve stale.
const (
	ClusterTTL        = 5 * time.Minute
	ProviderConfigTTL = 1 * time.Minute
	ModelMetadataTTL  = 5 * time.Minute
)

// Cache wraps a single long-lived redis client shared by all requests.
// A nil client means caching is disabled and every Get is a miss.
type Cache struct {
	rdb    *redis.Client
	logger *slog.Logger
	onOp   func(key, outcome string)

	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
}

func New(rdb *redis.Client, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{rdb: rdb, logger: logger}
}

// Enabled reports whether a backend is attached.
func (c *Cache) Enabled() bool { return c != nil && c.rdb != nil }

// OnOp registers a callback invoked with the cache key and outcome ("hit",
// "miss" or "error") of each operation. Lets the caller export per-tier
// metrics without this package depending on a registry.
func (c *Cache) OnOp(fn func(key, outcome string)) { c.onOp = fn }

func (c *Cache) track(key, outcome string) {
	switch outcome {
	case "hit":
		c.hits.Add(1)
	case "miss":
		c.misses.Add(1)
	case "error":
		c.errors.Add(1)
	}
	if c.onOp != nil {
		c.onOp(key, outcome)
	}
}

// Get returns the raw value for key, or ok=false on miss or backend failure.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if !c.Enabled() {
		return nil, false
	}
	val, err := c.rdb.Get(ctx, keyNamespace+key).Bytes()
	if err == redis.Nil {
		c.track(key, "miss")
		return nil, false
	}
	if err != nil {
		c.track(key, "error")
		c.logger.Warn("cache get failed", "key", key, "error", err)
		return nil, false
	}
	c.track(key, "hit")
	return val, true
}

// GetJSON unmarshals the cached value for key into dest. A corrupt entry
// counts as a miss and is deleted so the next read repopulates it.
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) bool {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.logger.Warn("cache entry corrupt, dropping", "key", key, "error", err)
		c.rdb.Del(ctx, keyNamespace+key)
		return false
	}
	return true
}

// Set stores value under key with the given TTL. Failures are logged and
// swallowed; the caller's result is already authoritative.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if !c.Enabled() {
		return
	}
	if err := c.rdb.Set(ctx, keyNamespace+key, value, ttl).Err(); err != nil {
		c.track(key, "error")
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// SetJSON marshals value and stores it under key.
func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if !c.Enabled() {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache marshal failed", "key", key, "error", err)
		return
	}
	c.Set(ctx, key, data, ttl)
}

// Invalidate resolves each glob pattern to concrete keys via SCAN and
// deletes them in bulk. Returns the number of keys removed. A single
// configuration change invalidates every derived entry without the caller
// enumerating them.
func (c *Cache) Invalidate(ctx context.Context, patterns ...string) int {
	if !c.Enabled() {
		return 0
	}
	removed := 0
	for _, pattern := range patterns {
		iter := c.rdb.Scan(ctx, 0, keyNamespace+pattern, 100).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			c.track(pattern, "error")
			c.logger.Warn("cache scan failed", "pattern", pattern, "error", err)
			continue
		}
		if len(keys) == 0 {
			continue
		}
		n, err := c.rdb.Del(ctx, keys...).Result()
		if err != nil {
			c.track(pattern, "error")
			c.logger.Warn("cache delete failed", "pattern", pattern, "error", err)
			continue
		}
		removed += int(n)
	}
	return removed
}

// Stats returns cumulative hit/miss/error counts for telemetry scraping.
func (c *Cache) Stats() (hits, misses, errors int64) {
	if c == nil {
		return 0, 0, 0
	}
	return c.hits.Load(), c.misses.Load(), c.errors.Load()
}
