package ingest

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lanewatch/lanewatch/pkg/models"
)

// Normalize is the single choke point where a permissive raw signal becomes a
// strict canonical one. Alias resolution order and fallbacks:
//
//	event_id          event_id, eventId           → minted UUID
//	source_type       source_type, sourceType     → uppercased, unknown → NEWS
//	raw_content       raw_content, rawContent, content → JSON of whole record
//	source_reference  source_reference, sourceReference, reference
//	geographic_scope  geographic_scope, geographicScope, region
//	timestamp_utc     ISO-8601 with "T", or epoch millis → now
//	signal_confidence clamped to [0,1]            → 0.5
//
// Validation runs after normalisation; a failure surfaces as SchemaError and
// the record never reaches the bus.
func Normalize(raw models.RawExternalSignal) (models.ExternalSignal, error) {
	now := time.Now().UTC()

	signal := models.ExternalSignal{
		EventID:          raw.String("event_id", "eventId"),
		SourceType:       normalizeSourceType(raw.String("source_type", "sourceType")),
		RawContent:       raw.String("raw_content", "rawContent", "content"),
		SourceReference:  raw.String("source_reference", "sourceReference", "reference"),
		GeographicScope:  raw.String("geographic_scope", "geographicScope", "region"),
		TimestampUTC:     normalizeTimestamp(raw, now),
		IngestionTimeUTC: now.Format(time.RFC3339),
		SignalConfidence: normalizeConfidence(raw),
	}

	if signal.EventID == "" {
		signal.EventID = uuid.NewString()
	}
	if signal.RawContent == "" {
		signal.RawContent = raw.JSON()
	}

	if err := signal.Validate(); err != nil {
		return models.ExternalSignal{}, err
	}
	return signal, nil
}

// normalizeSourceType uppercases the provider value and defaults unknown
// spellings to NEWS. Values outside the enumeration after uppercasing (e.g.
// "UNKNOWN") are kept so schema validation rejects them.
func normalizeSourceType(value string) models.SourceType {
	if value == "" {
		return models.SourceTypeNews
	}
	upper := models.SourceType(strings.ToUpper(strings.TrimSpace(value)))
	return upper
}

// normalizeTimestamp accepts ISO-8601 containing "T" or epoch milliseconds,
// falling back to now.
func normalizeTimestamp(raw models.RawExternalSignal, now time.Time) string {
	if s := raw.String("timestamp_utc", "timestampUtc", "timestamp"); s != "" && strings.Contains(s, "T") {
		return s
	}
	if millis, ok := raw.Number("timestamp_utc", "timestampUtc", "timestamp"); ok {
		return time.UnixMilli(int64(millis)).UTC().Format(time.RFC3339)
	}
	return now.Format(time.RFC3339)
}

// normalizeConfidence clamps to [0,1] with a 0.5 default.
func normalizeConfidence(raw models.RawExternalSignal) float64 {
	v, ok := raw.Number("signal_confidence", "signalConfidence", "confidence")
	if !ok {
		return 0.5
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
