package dedupe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreFirstSeenWins(t *testing.T) {
	store := NewMemoryStore(10, time.Hour)
	ctx := context.Background()

	first, err := store.MarkIfFirstSeen(ctx, "external-signals", "e-1")
	require.NoError(t, err)
	assert.True(t, first)

	second, err := store.MarkIfFirstSeen(ctx, "external-signals", "e-1")
	require.NoError(t, err)
	assert.False(t, second)
}

func TestMemoryStoreExpiredMarkerIsAbsent(t *testing.T) {
	store := NewMemoryStore(10, time.Minute)
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }
	ctx := context.Background()

	first, err := store.MarkIfFirstSeen(ctx, "external-signals", "e-1")
	require.NoError(t, err)
	require.True(t, first)

	current = current.Add(2 * time.Minute)

	again, err := store.MarkIfFirstSeen(ctx, "external-signals", "e-1")
	require.NoError(t, err)
	assert.True(t, again)
}

func TestMemoryStoreEvictsLeastRecentlyUsed(t *testing.T) {
	store := NewMemoryStore(2, time.Hour)
	ctx := context.Background()

	_, err := store.MarkIfFirstSeen(ctx, "s", "e-1")
	require.NoError(t, err)
	_, err = store.MarkIfFirstSeen(ctx, "s", "e-2")
	require.NoError(t, err)

	// Touch e-1 so e-2 becomes least recently used.
	dup, err := store.MarkIfFirstSeen(ctx, "s", "e-1")
	require.NoError(t, err)
	require.False(t, dup)

	_, err = store.MarkIfFirstSeen(ctx, "s", "e-3")
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())

	// Evicted e-2 is re-admitted as first seen.
	readmitted, err := store.MarkIfFirstSeen(ctx, "s", "e-2")
	require.NoError(t, err)
	assert.True(t, readmitted)

	// e-1 survived the eviction.
	stillDup, err := store.MarkIfFirstSeen(ctx, "s", "e-1")
	require.NoError(t, err)
	assert.False(t, stillDup)
}

func TestMemoryStoreClear(t *testing.T) {
	store := NewMemoryStore(10, time.Hour)
	ctx := context.Background()

	_, err := store.MarkIfFirstSeen(ctx, "s", "e-1")
	require.NoError(t, err)
	require.NoError(t, store.Clear(ctx, "s", "e-1"))

	again, err := store.MarkIfFirstSeen(ctx, "s", "e-1")
	require.NoError(t, err)
	assert.True(t, again)
}
