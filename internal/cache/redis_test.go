package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T, name string) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	c, err := NewRedis(Options{Name: name, RedisURL: "redis://" + mr.Addr(), TTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedis_GetSet(t *testing.T) {
	ctx := context.Background()
	c, mr := setupRedis(t, "origin")

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	assert.True(t, mr.Exists("connectorgw:origin:k"))
	assert.Equal(t, time.Minute, mr.TTL("connectorgw:origin:k"))

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestRedis_Expiry(t *testing.T) {
	ctx := context.Background()
	c, mr := setupRedis(t, "origin")

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Second))
	mr.FastForward(2 * time.Second)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedis_ClearOnlyOwnNamespace(t *testing.T) {
	ctx := context.Background()
	c, mr := setupRedis(t, "origin")
	require.NoError(t, mr.Set("connectorgw:response:other", "x"))

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, c.Set(ctx, k, []byte(k), 0))
	}
	require.NoError(t, c.Delete(ctx, "c"))

	n, err := c.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, mr.Exists("connectorgw:response:other"))
}

func TestRedis_ConnectionFailure(t *testing.T) {
	_, err := NewRedis(Options{Name: "origin", RedisURL: "redis://127.0.0.1:1"})
	assert.Error(t, err)

	_, err = NewRedis(Options{Name: "origin", RedisURL: "::not a url"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
