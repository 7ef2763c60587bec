package ratelimit

import (
	"context"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func Test_Limiter_TokenBucket(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := New(client, "test", map[string]Rate{"hh": {PerMinute: 2, Burst: 2}})
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for range 2 {
		allowed, err := limiter.Allow(ctx, "hh")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, err := limiter.Allow(ctx, "hh")
	require.NoError(t, err)
	assert.False(t, allowed)

	now = now.Add(31 * time.Second)
	allowed, err = limiter.Allow(ctx, "hh")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = limiter.Allow(ctx, "hh")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func Test_Limiter_UnconfiguredSourceIsUnlimited(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	limiter := New(client, "test", nil)
	for range 10 {
		allowed, err := limiter.Allow(context.Background(), "adzuna")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	assert.Empty(t, server.Keys())
}
