package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewMemory("test", 10, time.Minute)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Size)
	assert.InDelta(t, 50.0, stats.HitRate(), 0.001)
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory("test", 10, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "short", []byte("1"), time.Second))
	require.NoError(t, c.Set(ctx, "forever", []byte("2"), -1))

	now = now.Add(2 * time.Second)

	_, err := c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "forever")
	assert.NoError(t, err)
}

func TestMemory_Sweep(t *testing.T) {
	ctx := context.Background()
	c := NewMemory("test", 10, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprint(i), []byte("x"), time.Second))
	}
	require.NoError(t, c.Set(ctx, "keep", []byte("x"), time.Hour))

	now = now.Add(time.Minute)
	assert.Equal(t, 3, c.Sweep())
	assert.Equal(t, int64(1), c.Stats().Size)
}

func TestMemory_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewMemory("test", 2, 0)

	require.NoError(t, c.Set(ctx, "a", []byte("a"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("b"), 0))
	_, _ = c.Get(ctx, "a") // a is now most recent
	require.NoError(t, c.Set(ctx, "c", []byte("c"), 0))

	_, err := c.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "a")
	assert.NoError(t, err)
}

func TestMemory_ClearAndDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemory("test", 0, 0)

	require.NoError(t, c.Set(ctx, "a", []byte("a"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("b"), 0))
	require.NoError(t, c.Delete(ctx, "a"))

	n, err := c.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(0), c.Stats().Size)
}

func TestNew(t *testing.T) {
	c, err := New(Options{Name: "origin"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, c)

	_, err = New(Options{Name: "origin", Backend: "memcached"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Options{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Options{Name: "origin", Backend: BackendRedis})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key("a", "b"), Key("a", "b"))
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
	assert.Len(t, Key("x"), 32)
}

func TestStartSweeper_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		StartSweeper(ctx, 10*time.Millisecond, NewMemory("test", 0, 0))
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
