package connector

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanewatch/lanewatch/pkg/bus"
	"github.com/lanewatch/lanewatch/pkg/models"
)

type stubProvider struct {
	items      []Item
	nextCursor string
	failures   int
	calls      int
	cursors    []string
}

func (p *stubProvider) fetch(_ context.Context, _ ProviderConfig, cursor string) ([]Item, string, error) {
	p.calls++
	p.cursors = append(p.cursors, cursor)
	if p.calls <= p.failures {
		return nil, "", errors.New("provider unavailable")
	}
	return p.items, p.nextCursor, nil
}

func contentVersion(item Item) string {
	return fmt.Sprintf("%v", item.Data["observation"])
}

func itemTransform(item Item) (models.RawExternalSignal, error) {
	return models.RawExternalSignal{
		"event_id":         item.ID,
		"source_type":      "weather",
		"raw_content":      fmt.Sprintf("%v", item.Data["observation"]),
		"source_reference": "stub-provider",
		"geographic_scope": "Mumbai",
		"timestamp_utc":    "2026-03-01T10:00:00Z",
	}, nil
}

func testConnectorConfig() Config {
	return Config{
		Name:           "stub",
		PollInterval:   time.Minute,
		RequestTimeout: time.Second,
		MaxRetries:     2,
		BackoffBase:    time.Millisecond,
	}
}

func newConnectorHarness(t *testing.T, provider *stubProvider, transform Transformer) (*Connector, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	b := bus.New(rdb)
	if transform == nil {
		transform = itemTransform
	}
	return New(testConnectorConfig(), provider.fetch, contentVersion, transform, b, NewStateStore(rdb)), rdb
}

func TestConfigValidate(t *testing.T) {
	cfg := testConnectorConfig()
	require.NoError(t, cfg.Validate())

	missing := cfg
	missing.Name = ""
	assert.Error(t, missing.Validate())

	noInterval := cfg
	noInterval.PollInterval = 0
	assert.Error(t, noInterval.Validate())

	noTimeout := cfg
	noTimeout.RequestTimeout = 0
	assert.Error(t, noTimeout.Validate())
}

func TestTickPublishesNewItems(t *testing.T) {
	provider := &stubProvider{
		items: []Item{
			{ID: "i-1", Data: map[string]any{"observation": "clear"}},
			{ID: "i-2", Data: map[string]any{"observation": "cyclone"}},
		},
		nextCursor: "page-2",
	}
	c, rdb := newConnectorHarness(t, provider, nil)
	ctx := context.Background()

	summary, err := c.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Fetched: 2, Published: 2}, summary)

	count, err := rdb.XLen(ctx, models.StreamRawInputSignals).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// Cursor and versions persisted for the next tick.
	state, err := NewStateStore(rdb).Load(ctx, "stub")
	require.NoError(t, err)
	assert.Equal(t, "page-2", state.Cursor)
	assert.Equal(t, "clear", state.Versions["i-1"])
	assert.NotEmpty(t, state.LastPollUTC)
}

func TestTickSkipsUnchangedItems(t *testing.T) {
	provider := &stubProvider{
		items: []Item{{ID: "i-1", Data: map[string]any{"observation": "clear"}}},
	}
	c, rdb := newConnectorHarness(t, provider, nil)
	ctx := context.Background()

	_, err := c.Tick(ctx)
	require.NoError(t, err)

	// Second tick returns the identical item: nothing new is published.
	summary, err := c.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Fetched: 1, SkippedUnchanged: 1}, summary)

	count, err := rdb.XLen(ctx, models.StreamRawInputSignals).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Changed observation republishes.
	provider.items[0].Data["observation"] = "cyclone"
	summary, err = c.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Fetched: 1, Published: 1}, summary)
}

func TestTickCursorThreading(t *testing.T) {
	provider := &stubProvider{nextCursor: "page-2"}
	c, _ := newConnectorHarness(t, provider, nil)
	ctx := context.Background()

	_, err := c.Tick(ctx)
	require.NoError(t, err)
	provider.nextCursor = "page-3"
	_, err = c.Tick(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"", "page-2"}, provider.cursors)
}

func TestTickRetriesFetchWithinBudget(t *testing.T) {
	provider := &stubProvider{
		failures: 2,
		items:    []Item{{ID: "i-1", Data: map[string]any{"observation": "clear"}}},
	}
	c, _ := newConnectorHarness(t, provider, nil)

	summary, err := c.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, provider.calls)
	assert.Equal(t, Summary{Fetched: 1, Published: 1}, summary)
}

func TestTickSurrendersAfterRetryBudget(t *testing.T) {
	provider := &stubProvider{failures: 10, nextCursor: "page-2"}
	c, rdb := newConnectorHarness(t, provider, nil)
	ctx := context.Background()

	_, err := c.Tick(ctx)
	require.Error(t, err)
	assert.Equal(t, 3, provider.calls) // 1 + MaxRetries

	// State is not advanced on a surrendered tick.
	state, err := NewStateStore(rdb).Load(ctx, "stub")
	require.NoError(t, err)
	assert.Empty(t, state.Cursor)
}

func TestTickCountsTransformFailures(t *testing.T) {
	provider := &stubProvider{
		items: []Item{
			{ID: "i-1", Data: map[string]any{"observation": "clear"}},
			{ID: "i-bad", Data: map[string]any{"observation": "mangled"}},
		},
	}
	transform := func(item Item) (models.RawExternalSignal, error) {
		if item.ID == "i-bad" {
			return nil, errors.New("unparsable item")
		}
		return itemTransform(item)
	}
	c, _ := newConnectorHarness(t, provider, transform)

	summary, err := c.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Fetched: 2, Published: 1, Failed: 1}, summary)
	assert.Equal(t, summary.Fetched, summary.Published+summary.SkippedUnchanged+summary.Failed)

	// Failed items carry no version, so the next tick retries them.
	summary, err = c.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Fetched: 2, SkippedUnchanged: 1, Failed: 1}, summary)
}

func TestStateStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := NewStateStore(rdb)
	ctx := context.Background()

	// Never-persisted connectors load a zero state with a usable map.
	state, err := store.Load(ctx, "fresh")
	require.NoError(t, err)
	assert.NotNil(t, state.Versions)
	assert.Empty(t, state.Cursor)

	state.Cursor = "page-9"
	state.LastPollUTC = "2026-03-01T10:00:00Z"
	state.Versions["i-1"] = "v1"
	require.NoError(t, store.Save(ctx, "fresh", state))

	loaded, err := store.Load(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, state, loaded)
}

func TestVersionCacheEvictsBeyondCap(t *testing.T) {
	c := newVersionCache(nil, 2)
	c.put("i-1", "v1")
	c.put("i-2", "v1")

	// Touch i-1 so i-2 is least recently seen.
	_, ok := c.get("i-1")
	require.True(t, ok)

	c.put("i-3", "v1")
	snap := c.snapshot()
	assert.Len(t, snap, 2)
	assert.Contains(t, snap, "i-1")
	assert.Contains(t, snap, "i-3")
	assert.NotContains(t, snap, "i-2")
}
