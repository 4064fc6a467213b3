package dedupe

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStoreFirstSeenWins(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := NewRedisStore(rdb, time.Hour)
	ctx := context.Background()

	first, err := store.MarkIfFirstSeen(ctx, "external-signals", "e-1")
	require.NoError(t, err)
	assert.True(t, first)

	second, err := store.MarkIfFirstSeen(ctx, "external-signals", "e-1")
	require.NoError(t, err)
	assert.False(t, second)

	// Same event id on a different stream is independent.
	other, err := store.MarkIfFirstSeen(ctx, "classified-events", "e-1")
	require.NoError(t, err)
	assert.True(t, other)
}

func TestRedisStoreMarkerExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := NewRedisStore(rdb, time.Minute)
	ctx := context.Background()

	first, err := store.MarkIfFirstSeen(ctx, "external-signals", "e-1")
	require.NoError(t, err)
	require.True(t, first)

	mr.FastForward(2 * time.Minute)

	again, err := store.MarkIfFirstSeen(ctx, "external-signals", "e-1")
	require.NoError(t, err)
	assert.True(t, again)
}

func TestRedisStoreClear(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := NewRedisStore(rdb, time.Hour)
	ctx := context.Background()

	_, err := store.MarkIfFirstSeen(ctx, "external-signals", "e-1")
	require.NoError(t, err)
	require.NoError(t, store.Clear(ctx, "external-signals", "e-1"))

	again, err := store.MarkIfFirstSeen(ctx, "external-signals", "e-1")
	require.NoError(t, err)
	assert.True(t, again)
}
