package models

import "math"

// ShipmentPlan is a planned shipment as submitted through the planning
// gateway and upserted into the planning state store.
type ShipmentPlan struct {
	ShipmentID     string  `json:"shipment_id" validate:"required"`
	LaneID         string  `json:"lane_id" validate:"required"`
	SKU            string  `json:"sku" validate:"required"`
	Quantity       float64 `json:"quantity" validate:"min=0"`
	ETAUTC         string  `json:"eta_utc"`
	UnitRevenueINR float64 `json:"unit_revenue_inr" validate:"min=0"`
}

// Validate checks the shipment plan schema.
func (s *ShipmentPlan) Validate() error {
	if err := validate.Struct(s); err != nil {
		return newSchemaError("shipment_plan", err)
	}
	return nil
}

// InventorySnapshot is the current stock position for one SKU.
type InventorySnapshot struct {
	SKU              string  `json:"sku" validate:"required"`
	OnHandUnits      float64 `json:"on_hand_units" validate:"min=0"`
	InTransitUnits   float64 `json:"in_transit_units" validate:"min=0"`
	DailyDemandUnits float64 `json:"daily_demand_units" validate:"min=0"`
	SafetyStockUnits float64 `json:"safety_stock_units" validate:"min=0"`
}

// Validate checks the inventory snapshot schema.
func (i *InventorySnapshot) Validate() error {
	if err := validate.Struct(i); err != nil {
		return newSchemaError("inventory_snapshot", err)
	}
	return nil
}

// AtRiskShipment flags a planned shipment whose lane is hit by a mitigation
// plan's predicted delay.
type AtRiskShipment struct {
	ShipmentID       string  `json:"shipment_id" validate:"required"`
	PlanID           string  `json:"plan_id" validate:"required"`
	RiskID           string  `json:"risk_id" validate:"required"`
	EventID          string  `json:"event_id" validate:"required"`
	LaneID           string  `json:"lane_id" validate:"required"`
	SKU              string  `json:"sku" validate:"required"`
	DelayDays        float64 `json:"delay_days" validate:"min=0"`
	RevenueAtRiskINR float64 `json:"revenue_at_risk_inr" validate:"min=0"`
	FlaggedAtUTC     string  `json:"flagged_at_utc" validate:"required"`
}

// Validate checks the at-risk shipment schema.
func (a *AtRiskShipment) Validate() error {
	if err := validate.Struct(a); err != nil {
		return newSchemaError("at_risk_shipment", err)
	}
	return nil
}

// InventoryExposure projects the stock impact of a delayed shipment onto the
// SKU it carries. Probability is rounded to 4 decimal places, currency to 2.
type InventoryExposure struct {
	SKU                  string  `json:"sku" validate:"required"`
	ShipmentID           string  `json:"shipment_id" validate:"required"`
	PlanID               string  `json:"plan_id" validate:"required"`
	EventID              string  `json:"event_id" validate:"required"`
	DaysOfCover          float64 `json:"days_of_cover" validate:"min=0"`
	StockoutProbability  float64 `json:"stockout_probability" validate:"min=0,max=1"`
	ProjectedStockoutUTC string  `json:"projected_stockout_utc"`
	RevenueAtRiskINR     float64 `json:"revenue_at_risk_inr" validate:"min=0"`
	ComputedAtUTC        string  `json:"computed_at_utc" validate:"required"`
}

// Validate checks the inventory exposure schema.
func (e *InventoryExposure) Validate() error {
	if err := validate.Struct(e); err != nil {
		return newSchemaError("inventory_exposure", err)
	}
	return nil
}

// Round2 rounds to 2 decimal places (currency fields).
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Round4 rounds to 4 decimal places (probability fields).
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
