// internal/cache/cache.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"poi-aggregator/internal/common/config"
	"poi-aggregator/internal/common/database"
	"poi-aggregator/internal/common/logger"
	"poi-aggregator/internal/common/metrics"
	"poi-aggregator/internal/models"
)

const redisKeyPrefix = "poi:aggregation:"

type entry struct {
	venues   []models.CanonicalVenue
	storedAt time.Time
}

// ResultCache holds finished aggregation results keyed by query
// fingerprint. The process-local layer is authoritative and expires
// passively on read; Redis is an optional shared layer behind it.
// Concurrent misses on the same key are collapsed through Do so at
// most one aggregation per key is in flight.
type ResultCache struct {
	cfg    config.CacheConfig
	redis  *database.RedisClient
	logger logger.Logger

	flight singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry
}

// New builds a ResultCache. redis may be nil, in which case only the
// process-local layer is used.
func New(cfg config.CacheConfig, redis *database.RedisClient, log logger.Logger) *ResultCache {
	return &ResultCache{
		cfg:     cfg,
		redis:   redis,
		logger:  log,
		entries: make(map[string]*entry),
	}
}

func (c *ResultCache) ttl() time.Duration {
	return time.Duration(c.cfg.TTL) * time.Minute
}

// Get returns the cached venues for key, checking the local layer
// first and falling back to Redis. A Redis hit repopulates the local
// layer.
func (c *ResultCache) Get(ctx context.Context, key string) ([]models.CanonicalVenue, bool) {
	if venues, ok := c.getLocal(key); ok {
		metrics.CacheHits.WithLabelValues("local").Inc()
		return venues, true
	}
	metrics.CacheMisses.WithLabelValues("local").Inc()

	if c.redis == nil {
		return nil, false
	}

	raw, err := c.redis.Get(ctx, redisKeyPrefix+key)
	if err != nil {
		metrics.CacheMisses.WithLabelValues("redis").Inc()
		return nil, false
	}

	var venues []models.CanonicalVenue
	if err := json.Unmarshal([]byte(raw), &venues); err != nil {
		c.logger.WithError(err).Warn("Discarding undecodable cached aggregation", nil)
		metrics.CacheMisses.WithLabelValues("redis").Inc()
		return nil, false
	}

	metrics.CacheHits.WithLabelValues("redis").Inc()
	c.setLocal(key, venues)
	return venues, true
}

// Set stores venues under key in both layers. Redis failures are
// logged and otherwise ignored, the local layer is enough to serve.
func (c *ResultCache) Set(ctx context.Context, key string, venues []models.CanonicalVenue) {
	c.setLocal(key, venues)

	if c.redis == nil {
		return
	}

	payload, err := json.Marshal(venues)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to encode aggregation for cache", nil)
		return
	}
	if err := c.redis.Set(ctx, redisKeyPrefix+key, payload, c.ttl()); err != nil {
		c.logger.WithError(err).WithFields(map[string]interface{}{
			"cache_key": key,
		}).Warn("Failed to write aggregation to redis", nil)
	}
}

// Do returns the cached venues for key, or runs fn once to produce
// them. Concurrent callers with the same key share a single fn
// execution and its result.
func (c *ResultCache) Do(ctx context.Context, key string, fn func(context.Context) ([]models.CanonicalVenue, error)) ([]models.CanonicalVenue, error) {
	result, err, _ := c.flight.Do(key, func() (interface{}, error) {
		if venues, ok := c.Get(ctx, key); ok {
			return venues, nil
		}
		venues, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, venues)
		return venues, nil
	})
	if err != nil {
		return nil, err
	}

	venues, ok := result.([]models.CanonicalVenue)
	if !ok {
		return nil, fmt.Errorf("unexpected cache payload type %T", result)
	}
	return venues, nil
}

// Invalidate drops key from both layers.
func (c *ResultCache) Invalidate(ctx context.Context, key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()

	if c.redis != nil {
		if err := c.redis.Del(ctx, redisKeyPrefix+key); err != nil {
			c.logger.WithError(err).Warn("Failed to invalidate redis cache entry", nil)
		}
	}
}

// Len reports the number of live local entries, expired ones included
// until their next read.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ResultCache) getLocal(key string) ([]models.CanonicalVenue, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Since(e.storedAt) > c.ttl() {
		delete(c.entries, key)
		return nil, false
	}
	return e.venues, true
}

func (c *ResultCache) setLocal(key string, venues []models.CanonicalVenue) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg.MaxEntries > 0 && len(c.entries) >= c.cfg.MaxEntries {
		if _, exists := c.entries[key]; !exists {
			c.evictOldestLocked()
		}
	}
	c.entries[key] = &entry{venues: venues, storedAt: time.Now()}
}

// evictOldestLocked removes the entry with the earliest store time.
// Caller holds c.mu.
func (c *ResultCache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for key, e := range c.entries {
		if oldestKey == "" || e.storedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = e.storedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
