package models

// StructuredRisk is the classification service's output: a canonical signal
// interpreted as a concrete risk with category, severity, and impact region.
type StructuredRisk struct {
	// ClassificationID is minted fresh for each classification; EventID is
	// inherited from the originating signal so cross-stream joins stay
	// possible offline.
	ClassificationID         string       `json:"classification_id" validate:"required"`
	EventID                  string       `json:"event_id" validate:"required"`
	RiskCategory             RiskCategory `json:"risk_category" validate:"required,oneof=WEATHER LOGISTICS GEOPOLITICAL SUPPLIER DEMAND"`
	Severity                 float64      `json:"severity" validate:"min=0,max=1"`
	ClassificationConfidence float64      `json:"classification_confidence" validate:"min=0,max=1"`
	ImpactRegion             string       `json:"impact_region" validate:"required"`
	Summary                  string       `json:"summary"`
	ModelVersion             string       `json:"model_version" validate:"required"`
	ProcessedAtUTC           string       `json:"processed_at_utc" validate:"required"`
}

// Validate checks the structured risk schema.
func (r *StructuredRisk) Validate() error {
	if err := validate.Struct(r); err != nil {
		return newSchemaError("structured_risk", err)
	}
	return nil
}

// RiskEvaluation scores a structured risk against one supply lane.
type RiskEvaluation struct {
	RiskID              string    `json:"risk_id" validate:"required"`
	ClassificationID    string    `json:"classification_id" validate:"required"`
	EventID             string    `json:"event_id" validate:"required"`
	LaneID              string    `json:"lane_id" validate:"required"`
	LaneName            string    `json:"lane_name"`
	RiskLevel           RiskLevel `json:"risk_level" validate:"required,oneof=LOW MEDIUM HIGH CRITICAL"`
	RiskScore           float64   `json:"risk_score" validate:"min=0,max=1"`
	LaneRelevance       float64   `json:"lane_relevance" validate:"min=0,max=1"`
	PredictedDelayHours float64   `json:"predicted_delay_hours" validate:"min=0"`
	EvaluatedAtUTC      string    `json:"evaluated_at_utc" validate:"required"`
}

// Validate checks the risk evaluation schema.
func (e *RiskEvaluation) Validate() error {
	if err := validate.Struct(e); err != nil {
		return newSchemaError("risk_evaluation", err)
	}
	return nil
}

// MitigationAction is a single recommended step inside a plan.
type MitigationAction struct {
	ActionType  MitigationActionType `json:"action_type" validate:"required"`
	Description string               `json:"description" validate:"required"`
	Priority    int                  `json:"priority" validate:"min=1"`
}

// MitigationPlan is the mitigation service's output for one risk evaluation.
// A plan always carries at least one action.
type MitigationPlan struct {
	PlanID              string             `json:"plan_id" validate:"required"`
	RiskID              string             `json:"risk_id" validate:"required"`
	EventID             string             `json:"event_id" validate:"required"`
	LaneID              string             `json:"lane_id" validate:"required"`
	RiskLevel           RiskLevel          `json:"risk_level" validate:"required"`
	PredictedDelayHours float64            `json:"predicted_delay_hours" validate:"min=0"`
	Actions             []MitigationAction `json:"actions" validate:"required,min=1,dive"`
	CreatedAtUTC        string             `json:"created_at_utc" validate:"required"`
}

// Validate checks the mitigation plan schema.
func (p *MitigationPlan) Validate() error {
	if err := validate.Struct(p); err != nil {
		return newSchemaError("mitigation_plan", err)
	}
	return nil
}
