package catalog

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func TestCacheRoundTripAndInvalidate(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "Haifa", storesCacheKey("Haifa"), []string{"a"}))
	require.NoError(t, cache.Put(ctx, "haifa", pricesCacheKey("haifa", []string{"milk"}), []string{"b"}))
	require.NoError(t, cache.Put(ctx, "eilat", storesCacheKey("eilat"), []string{"c"}))
	require.True(t, mr.Exists("catalog:haifa:keys"))
	require.Equal(t, 2*time.Minute, mr.TTL("catalog:haifa:keys"))

	var got []string
	ok, err := cache.Get(ctx, storesCacheKey("haifa"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"a"}, got)

	require.NoError(t, cache.InvalidateCity(ctx, "HAIFA"))
	require.False(t, mr.Exists(storesCacheKey("haifa")))
	require.False(t, mr.Exists(pricesCacheKey("haifa", []string{"milk"})))
	require.False(t, mr.Exists("catalog:haifa:keys"))
	require.True(t, mr.Exists(storesCacheKey("eilat")))
}

func TestCacheCorruptEntry(t *testing.T) {
	cache, mr := newTestCache(t)
	require.NoError(t, mr.Set(storesCacheKey("haifa"), "{not json"))
	var got []string
	ok, err := cache.Get(context.Background(), storesCacheKey("haifa"), &got)
	require.Error(t, err)
	require.False(t, ok)
}

func TestCacheMissAndDisabled(t *testing.T) {
	cache, _ := newTestCache(t)
	var dst []string
	ok, err := cache.Get(context.Background(), "catalog:none", &dst)
	require.NoError(t, err)
	require.False(t, ok)

	var disabled *Cache
	ok, err = disabled.Get(context.Background(), "k", &dst)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, disabled.Put(context.Background(), "haifa", "k", dst))
	require.NoError(t, disabled.InvalidateCity(context.Background(), "haifa"))
}

func TestPricesCacheKeyIgnoresOrder(t *testing.T) {
	require.Equal(t, pricesCacheKey("haifa", []string{"milk", "bread"}), pricesCacheKey("haifa", []string{"bread", "milk"}))
	require.NotEqual(t, pricesCacheKey("haifa", nil), pricesCacheKey("haifa", []string{}))
}
