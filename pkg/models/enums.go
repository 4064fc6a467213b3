package models

// SourceType identifies the class of external provider a signal came from.
type SourceType string

// Valid source types. Normalisation uppercases free-form provider values and
// defaults unknown ones to NEWS before validation.
const (
	SourceTypeWeather SourceType = "WEATHER"
	SourceTypeNews    SourceType = "NEWS"
	SourceTypeSocial  SourceType = "SOCIAL"
	SourceTypeTraffic SourceType = "TRAFFIC"
)

// IsValid reports whether the source type is one of the known values.
func (s SourceType) IsValid() bool {
	switch s {
	case SourceTypeWeather, SourceTypeNews, SourceTypeSocial, SourceTypeTraffic:
		return true
	}
	return false
}

// RiskCategory is the classification bucket assigned to a structured risk.
type RiskCategory string

// Valid risk categories.
const (
	RiskCategoryWeather      RiskCategory = "WEATHER"
	RiskCategoryLogistics    RiskCategory = "LOGISTICS"
	RiskCategoryGeopolitical RiskCategory = "GEOPOLITICAL"
	RiskCategorySupplier     RiskCategory = "SUPPLIER"
	RiskCategoryDemand       RiskCategory = "DEMAND"
)

// RiskLevel buckets a composite risk score.
type RiskLevel string

// Risk levels in ascending order of severity.
const (
	RiskLevelLow      RiskLevel = "LOW"
	RiskLevelMedium   RiskLevel = "MEDIUM"
	RiskLevelHigh     RiskLevel = "HIGH"
	RiskLevelCritical RiskLevel = "CRITICAL"
)

// MitigationActionType identifies the kind of action in a mitigation plan.
type MitigationActionType string

// Mitigation action types.
const (
	ActionReroute         MitigationActionType = "REROUTE"
	ActionExpedite        MitigationActionType = "EXPEDITE"
	ActionBufferInventory MitigationActionType = "BUFFER_INVENTORY"
	ActionNotifyPlanner   MitigationActionType = "NOTIFY_PLANNER"
	ActionAlternateSource MitigationActionType = "ALTERNATE_SOURCE"
)
