// ABOUTME: Tests for the memory, badger and redis response caches
// ABOUTME: Each backend must honor TTLs and endpoint-scoped prefix invalidation
package remote

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKeyIsCanonical(t *testing.T) {
	a := cacheKey("/constituents", Params{"email": "a@x.org", "page": 1})
	b := cacheKey("/constituents", Params{"page": 1, "email": "a@x.org"})
	c := cacheKey("/constituents", Params{"email": "b@x.org"})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, cacheKey("/funds.json", nil), cacheKey("/funds.json", Params{}))
}

func TestEndpointScope(t *testing.T) {
	assert.Equal(t, endpointScope("/constituents"), endpointScope("constituents/"))
	assert.Equal(t, endpointScope("/constituents"), endpointScope("/constituents?email=x"))
	assert.NotEqual(t, endpointScope("/constituents"), endpointScope("/constituents/12"))

	key := cacheKey("/constituents/12/email_addresses", nil)
	assert.True(t, strings.HasPrefix(key, endpointScope("/constituents/12/email_addresses")))
	assert.False(t, strings.HasPrefix(key, endpointScope("/constituents/12")))
}

func exerciseCache(t *testing.T, cache Cache) {
	t.Helper()
	ctx := context.Background()

	search := cacheKey("/constituents", Params{"email": "a@x.org"})
	single := cacheKey("/constituents/12", nil)
	funds := cacheKey("/funds.json", nil)

	require.NoError(t, cache.Set(ctx, search, []byte(`[{"id":12}]`), time.Hour))
	require.NoError(t, cache.Set(ctx, single, []byte(`{"id":12}`), time.Hour))
	require.NoError(t, cache.Set(ctx, funds, []byte(`[]`), time.Hour))

	value, ok, err := cache.Get(ctx, search)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `[{"id":12}]`, string(value))

	require.NoError(t, cache.DeletePrefix(ctx, endpointScope("/constituents")))

	_, ok, err = cache.Get(ctx, search)
	require.NoError(t, err)
	assert.False(t, ok, "search entry invalidated")

	_, ok, err = cache.Get(ctx, single)
	require.NoError(t, err)
	assert.True(t, ok, "other endpoints untouched")

	_, ok, err = cache.Get(ctx, funds)
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = cache.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache(t *testing.T) {
	exerciseCache(t, NewMemoryCache())
}

func TestMemoryCacheExpiry(t *testing.T) {
	clock := newFakeClock()
	cache := NewMemoryCache()
	cache.now = clock.Now
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", []byte("v"), time.Minute))
	_, ok, _ := cache.Get(ctx, "k")
	assert.True(t, ok)

	_ = clock.Sleep(ctx, time.Minute)
	_, ok, _ = cache.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestBadgerCache(t *testing.T) {
	cache, err := OpenBadgerCache(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = cache.Close() }()

	exerciseCache(t, cache)
}

func TestBadgerCacheInMemory(t *testing.T) {
	cache, err := OpenBadgerCache("")
	require.NoError(t, err)
	defer func() { _ = cache.Close() }()

	exerciseCache(t, cache)
}

func TestRedisCache(t *testing.T) {
	s := miniredis.RunT(t)

	cache, err := NewRedisCache("redis://" + s.Addr())
	require.NoError(t, err)
	defer func() { _ = cache.Close() }()

	exerciseCache(t, cache)
}

func TestRedisCacheExpiry(t *testing.T) {
	s := miniredis.RunT(t)

	cache, err := NewRedisCache("redis://" + s.Addr())
	require.NoError(t, err)
	defer func() { _ = cache.Close() }()

	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, "crm:/funds.json|x", []byte("[]"), time.Minute))
	s.FastForward(2 * time.Minute)

	_, ok, err := cache.Get(ctx, "crm:/funds.json|x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRedisCacheBadURL(t *testing.T) {
	_, err := NewRedisCache("not a url")
	assert.Error(t, err)
}
