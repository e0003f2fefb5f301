package caching

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (CacheService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCacheServiceWithClient(client), mr
}

func TestWebhookEventDedupe(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	seen, err := cache.SeenWebhookEvent(ctx, "modern_v2", "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, cache.MarkWebhookEventSeen(ctx, "modern_v2", "evt_1", time.Hour))

	seen, err = cache.SeenWebhookEvent(ctx, "modern_v2", "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)

	// Markers are scoped per provider.
	seen, err = cache.SeenWebhookEvent(ctx, "legacy_v1", "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestWebhookEventMarkerExpires(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.MarkWebhookEventSeen(ctx, "modern_v2", "evt_1", time.Hour))
	mr.FastForward(2 * time.Hour)

	seen, err := cache.SeenWebhookEvent(ctx, "modern_v2", "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestStringOperations(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetString(ctx, "k", "v", time.Minute))

	value, err := cache.GetString(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)

	require.NoError(t, cache.Delete(ctx, "k"))

	_, err = cache.GetString(ctx, "k")
	assert.Error(t, err)
}
