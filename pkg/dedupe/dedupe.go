// Package dedupe provides the first-seen-wins idempotency store that makes
// the bus's at-least-once delivery behaviourally exactly-once at event-id
// granularity.
package dedupe

import "context"

// Store marks (stream, event_id) pairs as seen. MarkIfFirstSeen must be an
// atomic conditional insert: exactly one concurrent caller observes true.
type Store interface {
	// MarkIfFirstSeen returns true iff this caller inserted the marker.
	MarkIfFirstSeen(ctx context.Context, stream, eventID string) (bool, error)

	// Clear removes the marker so a future attempt is not suppressed. Used
	// to roll back when a publish ultimately fails after a successful mark.
	Clear(ctx context.Context, stream, eventID string) error
}

func markerKey(stream, eventID string) string {
	return "dedupe:" + stream + ":" + eventID
}
