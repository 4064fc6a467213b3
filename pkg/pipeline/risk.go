package pipeline

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lanewatch/lanewatch/pkg/bus"
	"github.com/lanewatch/lanewatch/pkg/models"
	"github.com/lanewatch/lanewatch/pkg/worker"
)

// LaneProfile describes one supply lane and the geographic trigger terms
// that tie risks to it. Profiles are externalised as configuration.
type LaneProfile struct {
	LaneID       string   `yaml:"lane_id" json:"lane_id"`
	Name         string   `yaml:"name" json:"name"`
	Origin       string   `yaml:"origin" json:"origin"`
	Destination  string   `yaml:"destination" json:"destination"`
	TriggerTerms []string `yaml:"trigger_terms" json:"trigger_terms"`
}

// RiskThresholds bucket the composite score into levels and set the floor
// below which an evaluation is dropped.
type RiskThresholds struct {
	Medium       float64 `yaml:"medium" json:"medium"`
	High         float64 `yaml:"high" json:"high"`
	Critical     float64 `yaml:"critical" json:"critical"`
	MinRelevance float64 `yaml:"min_relevance" json:"min_relevance"`
}

// DefaultRiskThresholds are used when configuration provides none.
func DefaultRiskThresholds() RiskThresholds {
	return RiskThresholds{Medium: 0.4, High: 0.6, Critical: 0.8, MinRelevance: 0.2}
}

// delayHoursByLevel estimates transit delay from the bucketed level.
var delayHoursByLevel = map[models.RiskLevel]float64{
	models.RiskLevelLow:      0,
	models.RiskLevelMedium:   24,
	models.RiskLevelHigh:     48,
	models.RiskLevelCritical: 96,
}

// RiskCounters reports the engine's running totals. Dropped counts messages
// for which no lane cleared the relevance floor.
type RiskCounters struct {
	Received  int64 `json:"received"`
	Published int64 `json:"published"`
	Dropped   int64 `json:"dropped"`
	Failed    int64 `json:"failed"`
}

// RiskEngine reads classified-events, scores each risk against the lane
// profile table, and publishes one evaluation per relevant lane.
type RiskEngine struct {
	lanes      []LaneProfile
	thresholds RiskThresholds
	bus        *bus.Bus

	received  atomic.Int64
	published atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

// NewRiskEngine creates the engine. Zero thresholds fall back to defaults.
func NewRiskEngine(lanes []LaneProfile, thresholds RiskThresholds, b *bus.Bus) *RiskEngine {
	if thresholds == (RiskThresholds{}) {
		thresholds = DefaultRiskThresholds()
	}
	return &RiskEngine{lanes: lanes, thresholds: thresholds, bus: b}
}

// Counters returns a snapshot of the running totals.
func (e *RiskEngine) Counters() RiskCounters {
	return RiskCounters{
		Received:  e.received.Load(),
		Published: e.published.Load(),
		Dropped:   e.dropped.Load(),
		Failed:    e.failed.Load(),
	}
}

// Handler is the per-message transform run under the consumer worker.
func (e *RiskEngine) Handler() worker.Handler {
	return func(ctx context.Context, rec bus.Record) error {
		risk, err := bus.DecodeMessage[models.StructuredRisk](rec)
		if err != nil {
			e.failed.Add(1)
			return err
		}
		e.received.Add(1)

		now := time.Now().UTC().Format(time.RFC3339)
		matched := 0
		for _, lane := range e.lanes {
			relevance := LaneRelevance(lane, risk.ImpactRegion)
			if relevance < e.thresholds.MinRelevance {
				continue
			}
			matched++

			score := models.Round4(0.6*risk.Severity + 0.4*relevance)
			level := e.bucket(score)
			eval := models.RiskEvaluation{
				RiskID:              uuid.NewString(),
				ClassificationID:    risk.ClassificationID,
				EventID:             risk.EventID,
				LaneID:              lane.LaneID,
				LaneName:            lane.Name,
				RiskLevel:           level,
				RiskScore:           score,
				LaneRelevance:       models.Round4(relevance),
				PredictedDelayHours: delayHoursByLevel[level],
				EvaluatedAtUTC:      now,
			}
			if _, err := e.bus.Publish(ctx, models.StreamRiskEvaluations, eval); err != nil {
				e.failed.Add(1)
				return err
			}
			e.published.Add(1)
		}
		// Dropped counts messages, not lanes: a risk matching one lane out of
		// many is published, not partially dropped.
		if matched == 0 {
			e.dropped.Add(1)
		}
		return nil
	}
}

func (e *RiskEngine) bucket(score float64) models.RiskLevel {
	switch {
	case score >= e.thresholds.Critical:
		return models.RiskLevelCritical
	case score >= e.thresholds.High:
		return models.RiskLevelHigh
	case score >= e.thresholds.Medium:
		return models.RiskLevelMedium
	default:
		return models.RiskLevelLow
	}
}

// LaneRelevance scores how strongly an impact region matches a lane. The
// match is trigger-term first: each of the lane's terms is tested as a
// lowercase substring of the region text, and the score is the matched
// fraction.
func LaneRelevance(lane LaneProfile, impactRegion string) float64 {
	if len(lane.TriggerTerms) == 0 {
		return 0
	}
	region := strings.ToLower(impactRegion)
	matched := 0
	for _, term := range lane.TriggerTerms {
		if term == "" {
			continue
		}
		if strings.Contains(region, strings.ToLower(term)) {
			matched++
		}
	}
	return float64(matched) / float64(len(lane.TriggerTerms))
}
