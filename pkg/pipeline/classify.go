// Package pipeline contains the business transformers built on the consumer
// worker: classification, risk evaluation, mitigation planning, and planning
// impact. Each reads from one stream and publishes to the next.
package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lanewatch/lanewatch/pkg/bus"
	"github.com/lanewatch/lanewatch/pkg/models"
	"github.com/lanewatch/lanewatch/pkg/worker"
)

// RiskDraft is a classifier's raw verdict before the service stamps identity
// and provenance.
type RiskDraft struct {
	RiskCategory models.RiskCategory
	Severity     float64
	Confidence   float64
	ImpactRegion string
	Summary      string
}

// Classifier turns a canonical signal into a risk draft. Implementations
// range from remote models to the deterministic rule table; the service
// composes them primary-first with a confidence-threshold guard.
type Classifier interface {
	ModelVersion() string
	Classify(ctx context.Context, signal models.ExternalSignal) (RiskDraft, error)
}

// ClassificationCounters reports the service's running totals.
type ClassificationCounters struct {
	Received     int64 `json:"received"`
	Published    int64 `json:"published"`
	UsedFallback int64 `json:"used_fallback"`
	Failed       int64 `json:"failed"`
}

// ClassificationService reads external-signals and publishes structured
// risks to classified-events.
type ClassificationService struct {
	primary   Classifier // may be nil: fallback only
	fallback  Classifier
	threshold float64
	bus       *bus.Bus

	received     atomic.Int64
	published    atomic.Int64
	usedFallback atomic.Int64
	failed       atomic.Int64
}

// NewClassificationService creates the service. fallback must be non-nil and
// must never fail; primary may be nil. Drafts from primary below threshold
// are re-classified by the fallback.
func NewClassificationService(primary, fallback Classifier, threshold float64, b *bus.Bus) *ClassificationService {
	return &ClassificationService{
		primary:   primary,
		fallback:  fallback,
		threshold: threshold,
		bus:       b,
	}
}

// Counters returns a snapshot of the running totals.
func (s *ClassificationService) Counters() ClassificationCounters {
	return ClassificationCounters{
		Received:     s.received.Load(),
		Published:    s.published.Load(),
		UsedFallback: s.usedFallback.Load(),
		Failed:       s.failed.Load(),
	}
}

// Handler is the per-message transform run under the consumer worker.
func (s *ClassificationService) Handler() worker.Handler {
	return func(ctx context.Context, rec bus.Record) error {
		signal, err := bus.DecodeMessage[models.ExternalSignal](rec)
		if err != nil {
			s.failed.Add(1)
			return err
		}
		s.received.Add(1)

		draft, modelVersion := s.classify(ctx, signal)

		risk := models.StructuredRisk{
			ClassificationID:         uuid.NewString(),
			EventID:                  signal.EventID,
			RiskCategory:             draft.RiskCategory,
			Severity:                 draft.Severity,
			ClassificationConfidence: draft.Confidence,
			ImpactRegion:             draft.ImpactRegion,
			Summary:                  draft.Summary,
			ModelVersion:             modelVersion,
			ProcessedAtUTC:           time.Now().UTC().Format(time.RFC3339),
		}
		if err := risk.Validate(); err != nil {
			s.failed.Add(1)
			return err
		}

		if _, err := s.bus.Publish(ctx, models.StreamClassifiedEvents, risk); err != nil {
			s.failed.Add(1)
			return err
		}
		s.published.Add(1)
		return nil
	}
}

// classify runs the primary classifier and falls back to the rule-based one
// when the primary errors or is under-confident.
func (s *ClassificationService) classify(ctx context.Context, signal models.ExternalSignal) (RiskDraft, string) {
	if s.primary != nil {
		draft, err := s.primary.Classify(ctx, signal)
		if err == nil && draft.Confidence >= s.threshold {
			return draft, s.primary.ModelVersion()
		}
		if err != nil {
			slog.Warn("Primary classifier failed, using fallback",
				"event_id", signal.EventID, "error", err)
		} else {
			slog.Debug("Primary classification under threshold, using fallback",
				"event_id", signal.EventID,
				"confidence", draft.Confidence,
				"threshold", s.threshold)
		}
		s.usedFallback.Add(1)
	}

	draft, err := s.fallback.Classify(ctx, signal)
	if err != nil {
		// The rule-based fallback is total; reaching this means a programming
		// error, not bad input. Classify as an unscored logistics risk.
		slog.Error("Fallback classifier failed", "event_id", signal.EventID, "error", err)
		draft = RiskDraft{
			RiskCategory: models.RiskCategoryLogistics,
			Severity:     0.1,
			Confidence:   0.1,
			ImpactRegion: signal.GeographicScope,
			Summary:      signal.RawContent,
		}
	}
	return draft, s.fallback.ModelVersion()
}
