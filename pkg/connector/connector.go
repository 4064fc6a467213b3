// Package connector implements the universal polling connector: a state
// machine that fetches from an external provider on a schedule, detects
// change against persisted per-item versions, publishes only new or changed
// signals, and degrades gracefully on transient failure.
package connector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lanewatch/lanewatch/pkg/bus"
	"github.com/lanewatch/lanewatch/pkg/models"
	"github.com/lanewatch/lanewatch/pkg/retry"
)

// Phase is the connector state machine's current state.
type Phase string

// Connector phases. A tick walks Idle → Fetching → Transforming → Publishing
// → Persisting → Idle; Backoff is reachable from any fetch error.
const (
	PhaseIdle         Phase = "idle"
	PhaseFetching     Phase = "fetching"
	PhaseTransforming Phase = "transforming"
	PhasePublishing   Phase = "publishing"
	PhasePersisting   Phase = "persisting"
	PhaseBackoff      Phase = "backoff"
)

// ProviderConfig is opaque provider-specific configuration (API keys, station
// lists, query terms). The connector passes it through to the fetcher.
type ProviderConfig map[string]any

// Item is one record returned by a provider fetch.
type Item struct {
	ID   string
	Data map[string]any
}

// Fetcher retrieves the provider's current items. The cursor from the
// previous tick is passed in; the returned cursor is persisted for the next.
type Fetcher func(ctx context.Context, cfg ProviderConfig, cursor string) (items []Item, nextCursor string, err error)

// ChangeDetector computes a version string for an item. The connector
// republishes an item iff its version differs from the persisted one.
type ChangeDetector func(item Item) string

// Transformer converts a provider item into a raw external signal.
type Transformer func(item Item) (models.RawExternalSignal, error)

// Config configures one connector instance.
type Config struct {
	// Name identifies the connector and keys its persisted state.
	Name string

	// PollInterval is the schedule between ticks. Must be positive.
	PollInterval time.Duration

	// RequestTimeout bounds each provider fetch attempt. Must be positive.
	RequestTimeout time.Duration

	// MaxRetries is the number of additional fetch attempts within one tick
	// after the first fails.
	MaxRetries int

	// Stream is the target stream; defaults to raw-input-signals.
	Stream string

	// BackoffBase seeds the exponential fetch backoff. Defaults to 500ms;
	// the delay is always bounded by PollInterval.
	BackoffBase time.Duration

	// MaxVersionEntries caps the per-item version map. Defaults to 10_000;
	// least-recently-seen item ids are evicted beyond the cap.
	MaxVersionEntries int

	// Provider is passed through to the fetcher untouched.
	Provider ProviderConfig
}

// Validate checks the configuration at startup.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("connector name is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("connector %s: poll interval must be positive", c.Name)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("connector %s: request timeout must be positive", c.Name)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("connector %s: max retries must be >= 0", c.Name)
	}
	return nil
}

// Summary reports one tick's outcome. Published + SkippedUnchanged + Failed
// always equals Fetched.
type Summary struct {
	Fetched          int `json:"fetched"`
	Published        int `json:"published"`
	SkippedUnchanged int `json:"skipped_unchanged"`
	Failed           int `json:"failed"`
}

// Connector drives the poll → detect → publish → persist loop for one
// provider. One goroutine owns each connector; the state store keyspace is
// single-writer by construction.
type Connector struct {
	cfg       Config
	fetch     Fetcher
	detect    ChangeDetector
	transform Transformer
	bus       *bus.Bus
	states    *StateStore

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu          sync.RWMutex
	phase       Phase
	lastSummary Summary
	ticks       int
}

// New creates a connector. The configuration must already be validated.
func New(cfg Config, fetch Fetcher, detect ChangeDetector, transform Transformer, b *bus.Bus, states *StateStore) *Connector {
	if cfg.Stream == "" {
		cfg.Stream = models.StreamRawInputSignals
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.MaxVersionEntries <= 0 {
		cfg.MaxVersionEntries = 10_000
	}
	return &Connector{
		cfg:       cfg,
		fetch:     fetch,
		detect:    detect,
		transform: transform,
		bus:       b,
		states:    states,
		stopCh:    make(chan struct{}),
		phase:     PhaseIdle,
	}
}

// Start launches the tick loop in a goroutine.
func (c *Connector) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.run(ctx)
}

// Stop signals the loop to exit and waits for the in-flight tick to finish.
// Safe to call multiple times.
func (c *Connector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// Health returns the connector's current phase and last tick summary.
func (c *Connector) Health() (Phase, Summary, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase, c.lastSummary, c.ticks
}

func (c *Connector) run(ctx context.Context) {
	defer c.wg.Done()

	log := slog.With("connector", c.cfg.Name)
	log.Info("Connector started",
		"poll_interval", c.cfg.PollInterval,
		"stream", c.cfg.Stream)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			log.Info("Connector shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, connector shutting down")
			return
		case <-ticker.C:
			summary, err := c.Tick(ctx)
			if err != nil {
				log.Error("Tick failed", "error", err)
				continue
			}
			log.Info("Tick complete",
				"fetched", summary.Fetched,
				"published", summary.Published,
				"skipped_unchanged", summary.SkippedUnchanged,
				"failed", summary.Failed)
		}
	}
}

// Tick runs one full poll cycle and returns its summary. The returned error
// covers fetch exhaustion and state persistence only; per-item failures are
// counted in the summary and never abort the tick.
func (c *Connector) Tick(ctx context.Context) (Summary, error) {
	defer c.setPhase(PhaseIdle)

	c.setPhase(PhaseFetching)
	state, err := c.states.Load(ctx, c.cfg.Name)
	if err != nil {
		return Summary{}, err
	}

	items, nextCursor, err := c.fetchWithRetry(ctx, state.Cursor)
	if err != nil {
		// Tick surrendered; state is not advanced so the next tick retries
		// from the same cursor.
		c.recordSummary(Summary{})
		return Summary{}, fmt.Errorf("fetch exhausted retries: %w", err)
	}

	versions := newVersionCache(state.Versions, c.cfg.MaxVersionEntries)
	summary := Summary{Fetched: len(items)}

	for _, item := range items {
		version := c.detect(item)
		if stored, ok := versions.get(item.ID); ok && stored == version {
			summary.SkippedUnchanged++
			continue
		}

		c.setPhase(PhaseTransforming)
		raw, err := c.transform(item)
		if err != nil {
			slog.Warn("Item transform failed",
				"connector", c.cfg.Name, "item_id", item.ID, "error", err)
			summary.Failed++
			continue
		}

		c.setPhase(PhasePublishing)
		if _, err := c.bus.Publish(ctx, c.cfg.Stream, raw); err != nil {
			// Version not advanced: the item is retried on the next tick.
			slog.Warn("Item publish failed",
				"connector", c.cfg.Name, "item_id", item.ID, "error", err)
			summary.Failed++
			continue
		}

		versions.put(item.ID, version)
		summary.Published++
	}

	c.setPhase(PhasePersisting)
	state.LastPollUTC = time.Now().UTC().Format(time.RFC3339)
	state.Cursor = nextCursor
	state.Versions = versions.snapshot()
	if err := c.states.Save(ctx, c.cfg.Name, state); err != nil {
		c.recordSummary(summary)
		return summary, err
	}

	c.recordSummary(summary)
	return summary, nil
}

// fetchWithRetry calls the provider under the request timeout, backing off
// exponentially between attempts. The backoff never exceeds the poll
// interval, so a failing provider cannot stall the schedule.
func (c *Connector) fetchWithRetry(ctx context.Context, cursor string) ([]Item, string, error) {
	var (
		items      []Item
		nextCursor string
	)
	err := retry.Do(ctx, c.cfg.MaxRetries+1, c.cfg.BackoffBase, c.cfg.PollInterval,
		func(attempt int, err error) {
			c.setPhase(PhaseBackoff)
			slog.Warn("Provider fetch failed, backing off",
				"connector", c.cfg.Name, "attempt", attempt, "error", err)
		},
		func() error {
			fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
			defer cancel()
			var fetchErr error
			items, nextCursor, fetchErr = c.fetch(fetchCtx, c.cfg.Provider, cursor)
			return fetchErr
		})
	return items, nextCursor, err
}

func (c *Connector) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
}

func (c *Connector) recordSummary(s Summary) {
	c.mu.Lock()
	c.lastSummary = s
	c.ticks++
	c.mu.Unlock()
}
