package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lanewatch/lanewatch/pkg/bus"
	"github.com/lanewatch/lanewatch/pkg/models"
	"github.com/lanewatch/lanewatch/pkg/retry"
	"github.com/lanewatch/lanewatch/pkg/worker"
)

// Planner produces the actions for one risk evaluation. A plan must carry at
// least one action; the service stamps identity and timestamps.
type Planner interface {
	CreatePlan(ctx context.Context, eval models.RiskEvaluation) ([]models.MitigationAction, error)
}

// MitigationCounters reports the service's running totals.
type MitigationCounters struct {
	Received  int64 `json:"received"`
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
}

// MitigationService reads risk-evaluations and publishes mitigation plans
// with bounded retry on the publish itself.
type MitigationService struct {
	planner            Planner
	bus                *bus.Bus
	maxPublishAttempts int
	publishBackoff     time.Duration

	received  atomic.Int64
	published atomic.Int64
	failed    atomic.Int64
}

// NewMitigationService creates the service. maxPublishAttempts below 1 means
// one attempt; publishBackoff seeds the exponential delay between attempts.
func NewMitigationService(planner Planner, b *bus.Bus, maxPublishAttempts int, publishBackoff time.Duration) *MitigationService {
	if maxPublishAttempts < 1 {
		maxPublishAttempts = 3
	}
	if publishBackoff <= 0 {
		publishBackoff = 200 * time.Millisecond
	}
	return &MitigationService{
		planner:            planner,
		bus:                b,
		maxPublishAttempts: maxPublishAttempts,
		publishBackoff:     publishBackoff,
	}
}

// Counters returns a snapshot of the running totals.
func (s *MitigationService) Counters() MitigationCounters {
	return MitigationCounters{
		Received:  s.received.Load(),
		Published: s.published.Load(),
		Failed:    s.failed.Load(),
	}
}

// Handler is the per-message transform run under the consumer worker.
func (s *MitigationService) Handler() worker.Handler {
	return func(ctx context.Context, rec bus.Record) error {
		eval, err := bus.DecodeMessage[models.RiskEvaluation](rec)
		if err != nil {
			s.failed.Add(1)
			return err
		}
		s.received.Add(1)

		actions, err := s.planner.CreatePlan(ctx, eval)
		if err != nil {
			s.failed.Add(1)
			return fmt.Errorf("planning mitigation for risk %s: %w", eval.RiskID, err)
		}

		plan := models.MitigationPlan{
			PlanID:              uuid.NewString(),
			RiskID:              eval.RiskID,
			EventID:             eval.EventID,
			LaneID:              eval.LaneID,
			RiskLevel:           eval.RiskLevel,
			PredictedDelayHours: eval.PredictedDelayHours,
			Actions:             actions,
			CreatedAtUTC:        time.Now().UTC().Format(time.RFC3339),
		}
		if err := plan.Validate(); err != nil {
			s.failed.Add(1)
			return err
		}

		err = retry.Do(ctx, s.maxPublishAttempts, s.publishBackoff, 0,
			func(attempt int, err error) {
				slog.Warn("Mitigation plan publish failed, retrying",
					"plan_id", plan.PlanID, "attempt", attempt, "error", err)
			},
			func() error {
				_, err := s.bus.Publish(ctx, models.StreamMitigationPlans, plan)
				return err
			})
		if err != nil {
			s.failed.Add(1)
			return err
		}
		s.published.Add(1)
		return nil
	}
}

// RuleBasedPlanner maps risk level to a fixed escalation ladder of actions.
type RuleBasedPlanner struct{}

// NewRuleBasedPlanner creates the default planner.
func NewRuleBasedPlanner() *RuleBasedPlanner { return &RuleBasedPlanner{} }

// CreatePlan implements Planner. Every level yields at least one action.
func (p *RuleBasedPlanner) CreatePlan(_ context.Context, eval models.RiskEvaluation) ([]models.MitigationAction, error) {
	lane := eval.LaneName
	if lane == "" {
		lane = eval.LaneID
	}

	switch eval.RiskLevel {
	case models.RiskLevelCritical:
		return []models.MitigationAction{
			{ActionType: models.ActionReroute, Priority: 1,
				Description: fmt.Sprintf("Reroute in-flight shipments off lane %s", lane)},
			{ActionType: models.ActionBufferInventory, Priority: 2,
				Description: "Release safety stock at destination warehouses"},
			{ActionType: models.ActionNotifyPlanner, Priority: 3,
				Description: fmt.Sprintf("Escalate %s disruption to the planning desk", lane)},
		}, nil
	case models.RiskLevelHigh:
		return []models.MitigationAction{
			{ActionType: models.ActionExpedite, Priority: 1,
				Description: fmt.Sprintf("Expedite pending orders on lane %s ahead of the disruption", lane)},
			{ActionType: models.ActionNotifyPlanner, Priority: 2,
				Description: fmt.Sprintf("Notify planners of expected delay on %s", lane)},
		}, nil
	default:
		return []models.MitigationAction{
			{ActionType: models.ActionNotifyPlanner, Priority: 1,
				Description: fmt.Sprintf("Monitor lane %s; no intervention required yet", lane)},
		}, nil
	}
}
