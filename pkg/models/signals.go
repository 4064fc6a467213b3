package models

import (
	"encoding/json"
	"strings"
)

// RawExternalSignal is the permissive form of a signal as accepted from
// connectors and the ingress gateway. Providers disagree on field naming
// (snake_case, camelCase, and generic names), so the raw record is kept as a
// flat JSON object; unknown fields are preserved but ignored by the core.
// Normalisation into the strict ExternalSignal happens at a single choke
// point in pkg/ingest.
type RawExternalSignal map[string]any

// String returns the first non-empty string value among the given keys.
func (r RawExternalSignal) String(keys ...string) string {
	for _, k := range keys {
		if v, ok := r[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// Number returns the first numeric value among the given keys. JSON numbers
// decode as float64; integer-typed values from programmatic construction are
// accepted too.
func (r RawExternalSignal) Number(keys ...string) (float64, bool) {
	for _, k := range keys {
		v, ok := r[k]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n, true
		case int:
			return float64(n), true
		case int64:
			return float64(n), true
		case json.Number:
			if f, err := n.Float64(); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// JSON returns the whole raw record serialised as JSON. Used as the content
// fallback when a provider supplies no recognisable content field.
func (r RawExternalSignal) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ExternalSignal is the canonical, validated form of an ingested signal.
// Every signal on the external-signals stream satisfies this schema.
type ExternalSignal struct {
	// EventID is stable across retries of the same upstream record and is
	// the idempotency key for deduplication.
	EventID          string     `json:"event_id" validate:"required"`
	SourceType       SourceType `json:"source_type" validate:"required,oneof=WEATHER NEWS SOCIAL TRAFFIC"`
	RawContent       string     `json:"raw_content" validate:"required"`
	SourceReference  string     `json:"source_reference" validate:"required"`
	GeographicScope  string     `json:"geographic_scope" validate:"required"`
	TimestampUTC     string     `json:"timestamp_utc" validate:"required"`
	IngestionTimeUTC string     `json:"ingestion_time_utc" validate:"required"`
	SignalConfidence float64    `json:"signal_confidence" validate:"min=0,max=1"`
}

// Validate checks the canonical schema. The timestamp must be ISO-8601 with a
// date/time separator; epoch forms are converted during normalisation.
func (s *ExternalSignal) Validate() error {
	if err := validate.Struct(s); err != nil {
		return newSchemaError("external_signal", err)
	}
	if !strings.Contains(s.TimestampUTC, "T") {
		return &SchemaError{Record: "external_signal", Field: "timestamp_utc", Reason: "is not ISO-8601"}
	}
	return nil
}
