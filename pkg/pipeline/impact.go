package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/lanewatch/lanewatch/pkg/bus"
	"github.com/lanewatch/lanewatch/pkg/models"
	"github.com/lanewatch/lanewatch/pkg/planning"
	"github.com/lanewatch/lanewatch/pkg/worker"
)

// ImpactCounters reports the service's running totals.
type ImpactCounters struct {
	PlansReceived      int64 `json:"plans_received"`
	ShipmentsFlagged   int64 `json:"shipments_flagged"`
	ExposuresPublished int64 `json:"exposures_published"`
	Skipped            int64 `json:"skipped"`
	Failed             int64 `json:"failed"`
}

// ImpactService reads mitigation-plans and projects each plan's predicted
// delay onto the planned shipments and inventory of the affected lane.
type ImpactService struct {
	store *planning.Store
	bus   *bus.Bus

	plansReceived      atomic.Int64
	shipmentsFlagged   atomic.Int64
	exposuresPublished atomic.Int64
	skipped            atomic.Int64
	failed             atomic.Int64
}

// NewImpactService creates the service.
func NewImpactService(store *planning.Store, b *bus.Bus) *ImpactService {
	return &ImpactService{store: store, bus: b}
}

// Counters returns a snapshot of the running totals.
func (s *ImpactService) Counters() ImpactCounters {
	return ImpactCounters{
		PlansReceived:      s.plansReceived.Load(),
		ShipmentsFlagged:   s.shipmentsFlagged.Load(),
		ExposuresPublished: s.exposuresPublished.Load(),
		Skipped:            s.skipped.Load(),
		Failed:             s.failed.Load(),
	}
}

// Handler is the per-message transform run under the consumer worker. Both
// impact records for a shipment are published before the next shipment is
// considered; missing inventory or shipments is a non-error skip.
func (s *ImpactService) Handler() worker.Handler {
	return func(ctx context.Context, rec bus.Record) error {
		plan, err := bus.DecodeMessage[models.MitigationPlan](rec)
		if err != nil {
			s.failed.Add(1)
			return err
		}
		s.plansReceived.Add(1)

		shipments, err := s.store.ShipmentsByLane(ctx, plan.LaneID)
		if err != nil {
			s.failed.Add(1)
			return err
		}
		if len(shipments) == 0 {
			s.skipped.Add(1)
			return nil
		}

		for _, shipment := range shipments {
			if err := s.projectShipment(ctx, plan, shipment); err != nil {
				s.failed.Add(1)
				return err
			}
		}
		return nil
	}
}

func (s *ImpactService) projectShipment(ctx context.Context, plan models.MitigationPlan, shipment models.ShipmentPlan) error {
	inv, err := s.store.Inventory(ctx, shipment.SKU)
	if errors.Is(err, planning.ErrNotFound) {
		slog.Debug("No inventory snapshot for shipment SKU, skipping",
			"shipment_id", shipment.ShipmentID, "sku", shipment.SKU)
		s.skipped.Add(1)
		return nil
	}
	if err != nil {
		return err
	}

	impact, ok := ProjectImpact(plan, shipment, inv, time.Now().UTC())
	if !ok {
		s.skipped.Add(1)
		return nil
	}

	// Both records are published before the next shipment is considered.
	if _, err := s.bus.Publish(ctx, models.StreamAtRiskShipments, impact.Shipment); err != nil {
		return err
	}
	s.shipmentsFlagged.Add(1)

	if _, err := s.bus.Publish(ctx, models.StreamInventoryExposures, impact.Exposure); err != nil {
		return err
	}
	s.exposuresPublished.Add(1)
	return nil
}

// Impact pairs the two records projected for one shipment.
type Impact struct {
	Shipment models.AtRiskShipment
	Exposure models.InventoryExposure
}

// ProjectImpact computes the business impact of a plan's predicted delay on
// one shipment and its SKU inventory. Returns ok=false when the SKU has no
// demand or the delay is fully absorbed by cover above safety stock.
//
// With delay d (days), cover c = on_hand/daily_demand, safety s (days):
//
//	gap = max(0, d - (c - s))
//	stockout_probability = gap / max(1, d)       (4 dp)
//	revenue_at_risk = gap * daily_demand * unit_revenue  (2 dp)
func ProjectImpact(plan models.MitigationPlan, shipment models.ShipmentPlan, inv models.InventorySnapshot, now time.Time) (Impact, bool) {
	if inv.DailyDemandUnits <= 0 {
		return Impact{}, false
	}

	delayDays := plan.PredictedDelayHours / 24
	coverDays := inv.OnHandUnits / inv.DailyDemandUnits
	safetyDays := inv.SafetyStockUnits / inv.DailyDemandUnits

	gapDays := delayDays - (coverDays - safetyDays)
	if gapDays < 0 {
		gapDays = 0
	}

	denominator := delayDays
	if denominator < 1 {
		denominator = 1
	}
	probability := models.Round4(gapDays / denominator)
	if probability == 0 {
		return Impact{}, false
	}

	revenueAtRisk := models.Round2(gapDays * inv.DailyDemandUnits * shipment.UnitRevenueINR)
	stockoutAt := now.Add(time.Duration(coverDays * 24 * float64(time.Hour)))
	nowISO := now.Format(time.RFC3339)

	return Impact{
		Shipment: models.AtRiskShipment{
			ShipmentID:       shipment.ShipmentID,
			PlanID:           plan.PlanID,
			RiskID:           plan.RiskID,
			EventID:          plan.EventID,
			LaneID:           plan.LaneID,
			SKU:              shipment.SKU,
			DelayDays:        models.Round2(delayDays),
			RevenueAtRiskINR: revenueAtRisk,
			FlaggedAtUTC:     nowISO,
		},
		Exposure: models.InventoryExposure{
			SKU:                  shipment.SKU,
			ShipmentID:           shipment.ShipmentID,
			PlanID:               plan.PlanID,
			EventID:              plan.EventID,
			DaysOfCover:          models.Round2(coverDays),
			StockoutProbability:  probability,
			ProjectedStockoutUTC: stockoutAt.Format(time.RFC3339),
			RevenueAtRiskINR:     revenueAtRisk,
			ComputedAtUTC:        nowISO,
		},
	}, true
}
