package cache_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-api/internal/cache"
)

func TestJSONSetGetExpire(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := cache.NewJSON(client, time.Minute)
	ctx := context.Background()
	key := cache.KeyFXRates("usd")
	require.Equal(t, "fx:rates:USD", key)

	var got map[string]float64
	ok, err := c.Get(ctx, key, &got)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, key, map[string]float64{"EUR": 0.92}))
	ok, err = c.Get(ctx, key, &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0.92, got["EUR"])

	mr.FastForward(2 * time.Minute)
	ok, err = c.Get(ctx, key, &got)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestJSONWithoutClientIsMiss(t *testing.T) {
	c := cache.NewJSON(nil, time.Minute)
	require.NoError(t, c.Set(context.Background(), "k", 1))
	var v int
	ok, err := c.Get(context.Background(), "k", &v)
	require.NoError(t, err)
	require.False(t, ok)
}
