package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	var c codec
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	values, err := c.encode(testEvent{EventID: "e-1", Text: "hi"}, now)
	require.NoError(t, err)

	payload, publishedAt, err := c.decode(values)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event_id":"e-1","text":"hi"}`, string(payload))
	assert.Equal(t, "2026-03-01T12:00:00Z", publishedAt)
}

func TestCodecDecodeErrors(t *testing.T) {
	var c codec

	tests := []struct {
		name   string
		values map[string]any
	}{
		{"missing payload", map[string]any{fieldPublishedAt: "2026-03-01T12:00:00Z"}},
		{"missing published_at", map[string]any{fieldPayload: `{}`}},
		{"payload not JSON", map[string]any{fieldPayload: "{oops", fieldPublishedAt: "2026-03-01T12:00:00Z"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := c.decode(tt.values)
			assert.ErrorIs(t, err, ErrBadEncoding)
		})
	}
}
