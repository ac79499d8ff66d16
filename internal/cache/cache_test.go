// internal/cache/cache_test.go
package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poi-aggregator/internal/common/config"
	"poi-aggregator/internal/common/database"
	"poi-aggregator/internal/common/logger"
	"poi-aggregator/internal/models"
)

func testCacheConfig() config.CacheConfig {
	return config.CacheConfig{TTL: 360, MaxEntries: 4}
}

func newLocalCache(t *testing.T, cfg config.CacheConfig) *ResultCache {
	t.Helper()
	return New(cfg, nil, logger.NewTestLogger(t))
}

func newRedisCache(t *testing.T) (*ResultCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := &database.RedisClient{Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() { _ = rdb.Close() })
	return New(testCacheConfig(), rdb, logger.NewTestLogger(t)), mr
}

func sampleVenues() []models.CanonicalVenue {
	rating := 4.5
	return []models.CanonicalVenue{
		{
			ID:                  "a1b2c3d4e5f60718",
			Name:                "全聚德烤鸭店",
			Rating:              &rating,
			ReviewCount:         12000,
			QualityScore:        91.5,
			ContributingSources: []models.SourceKind{models.SourcePrimaryAPI},
		},
	}
}

func TestLocalSetAndGet(t *testing.T) {
	c := newLocalCache(t, testCacheConfig())
	ctx := context.Background()

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	c.Set(ctx, "beijing", sampleVenues())
	venues, ok := c.Get(ctx, "beijing")
	require.True(t, ok)
	require.Len(t, venues, 1)
	assert.Equal(t, "全聚德烤鸭店", venues[0].Name)
}

func TestLocalExpiryOnRead(t *testing.T) {
	c := newLocalCache(t, testCacheConfig())
	ctx := context.Background()

	c.Set(ctx, "beijing", sampleVenues())

	c.mu.Lock()
	c.entries["beijing"].storedAt = time.Now().Add(-7 * time.Hour)
	c.mu.Unlock()

	_, ok := c.Get(ctx, "beijing")
	assert.False(t, ok, "entries past their TTL expire on read")
	assert.Equal(t, 0, c.Len())
}

func TestEvictsOldestWhenFull(t *testing.T) {
	c := newLocalCache(t, config.CacheConfig{TTL: 360, MaxEntries: 2})
	ctx := context.Background()

	c.Set(ctx, "first", sampleVenues())
	c.mu.Lock()
	c.entries["first"].storedAt = time.Now().Add(-time.Hour)
	c.mu.Unlock()

	c.Set(ctx, "second", sampleVenues())
	c.Set(ctx, "third", sampleVenues())

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get(ctx, "first")
	assert.False(t, ok, "the oldest entry is evicted first")
	_, ok = c.Get(ctx, "third")
	assert.True(t, ok)
}

func TestRedisReadThrough(t *testing.T) {
	c, _ := newRedisCache(t)
	ctx := context.Background()

	c.Set(ctx, "beijing", sampleVenues())

	// Drop the local layer so the next read has to come from Redis.
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.mu.Unlock()

	venues, ok := c.Get(ctx, "beijing")
	require.True(t, ok)
	require.Len(t, venues, 1)
	assert.Equal(t, 12000, venues[0].ReviewCount)
	assert.Equal(t, 1, c.Len(), "a redis hit repopulates the local layer")
}

func TestRedisUnavailableFallsBackToLocal(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()
	mr.Close()

	c.Set(ctx, "beijing", sampleVenues())
	venues, ok := c.Get(ctx, "beijing")
	require.True(t, ok, "local layer serves even when redis is down")
	assert.Len(t, venues, 1)
}

func TestRedisGetErrorIsAMiss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(testCacheConfig(), &database.RedisClient{Client: db}, logger.NewTestLogger(t))

	mock.ExpectGet(redisKeyPrefix + "beijing").SetErr(errors.New("connection refused"))

	_, ok := c.Get(context.Background(), "beijing")
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisUndecodablePayloadIsAMiss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(testCacheConfig(), &database.RedisClient{Client: db}, logger.NewTestLogger(t))

	mock.ExpectGet(redisKeyPrefix + "beijing").SetVal("not json at all")

	_, ok := c.Get(context.Background(), "beijing")
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDoCollapsesConcurrentCallers(t *testing.T) {
	c := newLocalCache(t, testCacheConfig())
	ctx := context.Background()

	var calls int64
	fn := func(context.Context) ([]models.CanonicalVenue, error) {
		atomic.AddInt64(&calls, 1)
		time.Sleep(50 * time.Millisecond)
		return sampleVenues(), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			venues, err := c.Do(ctx, "beijing", fn)
			assert.NoError(t, err)
			assert.Len(t, venues, 1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&calls), "only one aggregation per key may run")
}

func TestDoServesCachedResultWithoutCalling(t *testing.T) {
	c := newLocalCache(t, testCacheConfig())
	ctx := context.Background()

	c.Set(ctx, "beijing", sampleVenues())

	called := false
	venues, err := c.Do(ctx, "beijing", func(context.Context) ([]models.CanonicalVenue, error) {
		called = true
		return nil, nil
	})
	require.NoError(t, err)
	assert.Len(t, venues, 1)
	assert.False(t, called)
}

func TestDoPropagatesError(t *testing.T) {
	c := newLocalCache(t, testCacheConfig())

	wantErr := errors.New("all providers down")
	_, err := c.Do(context.Background(), "beijing", func(context.Context) ([]models.CanonicalVenue, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 0, c.Len(), "failed runs are not cached")
}

func TestInvalidate(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()

	c.Set(ctx, "beijing", sampleVenues())
	require.True(t, mr.Exists(redisKeyPrefix+"beijing"))

	c.Invalidate(ctx, "beijing")
	_, ok := c.Get(ctx, "beijing")
	assert.False(t, ok)
	assert.False(t, mr.Exists(redisKeyPrefix+"beijing"))
}
