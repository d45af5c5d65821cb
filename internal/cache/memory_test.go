package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/marketgw/internal/config"
	"github.com/vyrodovalexey/marketgw/internal/observability"
)

func newTestMemoryCache(t *testing.T, maxEntries int, ttl time.Duration) *memoryCache {
	t.Helper()
	c := newMemoryCache(&config.CacheConfig{
		Enabled:    true,
		MaxEntries: maxEntries,
		TTL:        config.Duration(ttl),
	}, observability.NopLogger(), NewMetrics(nil))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestMemoryCache_SetGet(t *testing.T) {
	c := newTestMemoryCache(t, 10, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	ok, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Size)
}

func TestMemoryCache_Miss(t *testing.T) {
	c := newTestMemoryCache(t, 10, time.Minute)

	_, err := c.Get(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestMemoryCache_Overwrite(t *testing.T) {
	c := newTestMemoryCache(t, 10, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v1"), 0))
	require.NoError(t, c.Set(ctx, "k", []byte("v2"), 0))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
	assert.Equal(t, int64(1), c.Stats().Size)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := newTestMemoryCache(t, 10, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
	ok, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := newTestMemoryCache(t, 2, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))
	_, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, "c", []byte("3"), 0))

	_, err = c.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "a")
	assert.NoError(t, err)
	_, err = c.Get(ctx, "c")
	assert.NoError(t, err)
}

func TestMemoryCache_Delete(t *testing.T) {
	c := newTestMemoryCache(t, 10, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, c.Delete(ctx, "k"))
	require.NoError(t, c.Delete(ctx, "missing"))

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_Cleanup(t *testing.T) {
	c := newTestMemoryCache(t, 10, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", []byte("v"), time.Millisecond))
	require.NoError(t, c.Set(ctx, "long", []byte("v"), time.Hour))
	time.Sleep(5 * time.Millisecond)

	c.cleanup()

	assert.Equal(t, int64(1), c.Stats().Size)
}

func TestMemoryCache_CloseIsIdempotent(t *testing.T) {
	c := newTestMemoryCache(t, 10, time.Minute)

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

func TestMemoryCache_Concurrent(t *testing.T) {
	c := newTestMemoryCache(t, 100, time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%5)
			_ = c.Set(ctx, key, []byte("v"), 0)
			_, _ = c.Get(ctx, key)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Stats().Size, int64(5))
}
