package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDLQStream(t *testing.T) {
	assert.Equal(t, "external-signals.dlq", DLQStream(StreamExternalSignals))
}

func TestEnumValidity(t *testing.T) {
	assert.True(t, SourceTypeWeather.IsValid())
	assert.False(t, SourceType("CARRIER_PIGEON").IsValid())
}

func TestRawExternalSignalAccessors(t *testing.T) {
	raw := RawExternalSignal{
		"event_id":   "e-1",
		"empty":      "",
		"eventId":    "shadowed",
		"confidence": 0.4,
		"count":      7,
	}

	assert.Equal(t, "e-1", raw.String("event_id", "eventId"))
	assert.Equal(t, "shadowed", raw.String("empty", "eventId"))
	assert.Empty(t, raw.String("missing"))

	v, ok := raw.Number("confidence")
	require.True(t, ok)
	assert.InDelta(t, 0.4, v, 1e-9)

	v, ok = raw.Number("count")
	require.True(t, ok)
	assert.InDelta(t, 7, v, 1e-9)

	_, ok = raw.Number("event_id")
	assert.False(t, ok)

	assert.Contains(t, raw.JSON(), `"event_id":"e-1"`)
}

func validSignal() ExternalSignal {
	return ExternalSignal{
		EventID:          "e-1",
		SourceType:       SourceTypeNews,
		RawContent:       "text",
		SourceReference:  "ref",
		GeographicScope:  "Mumbai",
		TimestampUTC:     "2026-03-01T10:00:00Z",
		IngestionTimeUTC: "2026-03-01T10:00:05Z",
		SignalConfidence: 0.5,
	}
}

func TestExternalSignalValidate(t *testing.T) {
	signal := validSignal()
	require.NoError(t, signal.Validate())

	tests := []struct {
		name   string
		mutate func(*ExternalSignal)
		field  string
	}{
		{"missing event id", func(s *ExternalSignal) { s.EventID = "" }, "event_id"},
		{"unknown source type", func(s *ExternalSignal) { s.SourceType = "PIGEON" }, "source_type"},
		{"confidence above one", func(s *ExternalSignal) { s.SignalConfidence = 1.2 }, "signal_confidence"},
		{"epoch timestamp", func(s *ExternalSignal) { s.TimestampUTC = "1772366400000" }, "timestamp_utc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSignal()
			tt.mutate(&s)
			err := s.Validate()
			require.Error(t, err)

			var schemaErr *SchemaError
			require.ErrorAs(t, err, &schemaErr)
			assert.Equal(t, tt.field, schemaErr.Field)
			assert.True(t, IsSchemaError(err))
		})
	}
}

func TestMitigationPlanRequiresActions(t *testing.T) {
	plan := MitigationPlan{
		PlanID:       "p-1",
		RiskID:       "r-1",
		EventID:      "e-1",
		LaneID:       "lane-a",
		RiskLevel:    RiskLevelHigh,
		CreatedAtUTC: "2026-03-01T10:00:00Z",
	}
	assert.Error(t, plan.Validate())

	plan.Actions = []MitigationAction{
		{ActionType: ActionExpedite, Description: "Expedite", Priority: 1},
	}
	assert.NoError(t, plan.Validate())
}

func TestRounding(t *testing.T) {
	assert.InDelta(t, 0.3333, Round4(1.0/3.0), 1e-9)
	assert.InDelta(t, 166.67, Round2(500.0/3.0), 1e-9)
	assert.InDelta(t, 0.5, Round4(0.5), 1e-9)
}
