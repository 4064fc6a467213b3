// Package ingest normalises untrusted raw records into the validated
// canonical schema and publishes them, deduplicated, to the
// external-signals stream.
package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lanewatch/lanewatch/pkg/bus"
	"github.com/lanewatch/lanewatch/pkg/dedupe"
	"github.com/lanewatch/lanewatch/pkg/models"
)

// SignalSource is a polling provider of raw signals. Poll is subject to the
// caller's context; a failing source is counted and logged, never fatal.
type SignalSource interface {
	Name() string
	Poll(ctx context.Context) ([]models.RawExternalSignal, error)
}

// Summary reports one ingestion cycle.
type Summary struct {
	Polled       int `json:"polled"`
	Normalized   int `json:"normalized"`
	Deduplicated int `json:"deduplicated"`
	Published    int `json:"published"`
	Failed       int `json:"failed"`
}

// Service polls registered sources, normalises, dedupes, and publishes.
type Service struct {
	sources      []SignalSource
	markers      dedupe.Store
	bus          *bus.Bus
	pollInterval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu          sync.RWMutex
	lastSummary Summary
	cycles      int
}

// NewService creates the ingestion service.
func NewService(sources []SignalSource, markers dedupe.Store, b *bus.Bus, pollInterval time.Duration) *Service {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	return &Service{
		sources:      sources,
		markers:      markers,
		bus:          b,
		pollInterval: pollInterval,
		stopCh:       make(chan struct{}),
	}
}

// Start launches the cycle loop in a goroutine. With no registered sources
// there is nothing to poll and no loop starts: signals then arrive only via
// connectors and the gateway stream.
func (s *Service) Start(ctx context.Context) {
	if len(s.sources) == 0 {
		slog.Info("Signal ingestion has no polling sources, serving the gateway stream only")
		return
	}
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop signals the loop to exit and waits for the in-flight cycle.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Health returns the last cycle summary and total cycle count.
func (s *Service) Health() (Summary, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSummary, s.cycles
}

func (s *Service) run(ctx context.Context) {
	defer s.wg.Done()

	slog.Info("Signal ingestion started",
		"sources", len(s.sources), "poll_interval", s.pollInterval)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			slog.Info("Signal ingestion shutting down")
			return
		case <-ctx.Done():
			slog.Info("Context cancelled, signal ingestion shutting down")
			return
		case <-ticker.C:
			summary := s.RunCycle(ctx)
			slog.Info("Ingestion cycle complete",
				"polled", summary.Polled,
				"normalized", summary.Normalized,
				"deduplicated", summary.Deduplicated,
				"published", summary.Published,
				"failed", summary.Failed)
		}
	}
}

// RunCycle polls every source once and processes all returned raw signals.
func (s *Service) RunCycle(ctx context.Context) Summary {
	var summary Summary

	for _, source := range s.sources {
		raws, err := source.Poll(ctx)
		if err != nil {
			slog.Warn("Source poll failed", "source", source.Name(), "error", err)
			summary.Failed++
			continue
		}
		summary.Polled += len(raws)

		for _, raw := range raws {
			s.processRaw(ctx, source.Name(), raw, &summary)
		}
	}

	s.mu.Lock()
	s.lastSummary = summary
	s.cycles++
	s.mu.Unlock()
	return summary
}

// Ingest normalises and publishes a single raw signal. It is used both by
// the cycle loop and by callers feeding raw records directly (tests, demos).
// Outcomes: "published", "deduplicated", or an error.
func (s *Service) Ingest(ctx context.Context, raw models.RawExternalSignal) (string, error) {
	signal, err := Normalize(raw)
	if err != nil {
		return "", err
	}

	firstSeen, err := s.markers.MarkIfFirstSeen(ctx, models.StreamExternalSignals, signal.EventID)
	if err != nil {
		return "", err
	}
	if !firstSeen {
		return "deduplicated", nil
	}

	if _, err := s.bus.Publish(ctx, models.StreamExternalSignals, signal); err != nil {
		// Roll the marker back so a retry of the same raw input can proceed.
		if clearErr := s.markers.Clear(ctx, models.StreamExternalSignals, signal.EventID); clearErr != nil {
			slog.Error("Failed to roll back idempotency marker",
				"event_id", signal.EventID, "error", clearErr)
		}
		return "", err
	}
	return "published", nil
}

func (s *Service) processRaw(ctx context.Context, sourceName string, raw models.RawExternalSignal, summary *Summary) {
	outcome, err := s.Ingest(ctx, raw)
	switch {
	case err != nil && models.IsSchemaError(err):
		slog.Warn("Dropping raw signal failing schema validation",
			"source", sourceName, "error", err)
		summary.Failed++
	case err != nil:
		slog.Warn("Failed to publish signal", "source", sourceName, "error", err)
		summary.Failed++
	case outcome == "deduplicated":
		summary.Normalized++
		summary.Deduplicated++
	default:
		summary.Normalized++
		summary.Published++
	}
}
