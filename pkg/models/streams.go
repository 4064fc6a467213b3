package models

// Stream names are wire-stable: every publisher and consumer group in the
// pipeline agrees on these literal strings. Renaming one is a breaking change
// for any replica still running the old binary.
const (
	// StreamRawInputSignals receives unvalidated records from ingress
	// gateways and connectors before normalisation.
	StreamRawInputSignals = "raw-input-signals"

	// StreamExternalSignals carries validated canonical signals.
	StreamExternalSignals = "external-signals"

	// StreamClassifiedEvents carries structured risks produced by the
	// classification service.
	StreamClassifiedEvents = "classified-events"

	// StreamRiskEvaluations carries lane-scored risk evaluations.
	StreamRiskEvaluations = "risk-evaluations"

	// StreamMitigationPlans carries mitigation plans.
	StreamMitigationPlans = "mitigation-plans"

	// StreamAtRiskShipments and StreamInventoryExposures are the terminal
	// impact streams.
	StreamAtRiskShipments    = "at-risk-shipments"
	StreamInventoryExposures = "inventory-exposures"

	// StreamShipmentPlans and StreamInventorySnapshots feed the planning
	// state store from the planning gateway.
	StreamShipmentPlans      = "shipment-plans"
	StreamInventorySnapshots = "inventory-snapshots"
)

// DLQStream returns the dead-letter stream for a source stream. Each consuming
// group routes exhausted or undecodable messages here.
func DLQStream(stream string) string {
	return stream + ".dlq"
}
