//go:build integration

package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-projections/pkg/testhelpers"
)

func TestRedisCache_RoundTrip(t *testing.T) {
	client := testhelpers.GetTestRedis(t)
	cache := NewRedisCache(client)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "k", []byte("v"), time.Minute))
	val, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), val)

	ttl, err := client.TTL(ctx, "k").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestCachedRegistry_WithRedis(t *testing.T) {
	client := testhelpers.GetTestRedis(t)
	upstream := &countingRegistry{result: wgs84Result()}
	r := NewCachedRegistry(upstream, NewRedisCache(client), time.Minute, zap.NewNop())
	ctx := context.Background()

	first, err := r.Import(ctx, 4326)
	require.NoError(t, err)
	second, err := r.Import(ctx, 4326)
	require.NoError(t, err)

	assert.Equal(t, 1, upstream.calls)
	assert.Equal(t, first.Bounds, second.Bounds)

	exists, err := client.Exists(ctx, CacheKey(4326)).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)
}
