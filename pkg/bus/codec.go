package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Log entries carry exactly two string fields. The codec is the only place in
// the codebase that knows this shape; everything else works with Record.
const (
	fieldPayload     = "payload"
	fieldPublishedAt = "published_at_utc"
)

// ErrBadEncoding reports a log entry that does not match the expected field
// shape, or whose payload is not valid JSON. Entries failing with it are
// routed to the consuming group's dead-letter stream.
var ErrBadEncoding = errors.New("bad event encoding")

// codec maps a typed message to and from the flat field record stored on the
// log.
type codec struct{}

// encode serialises a message into the two-field log entry. The publish time
// is stamped here so every entry on the log carries it.
func (codec) encode(message any, now time.Time) (map[string]any, error) {
	payload, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	return map[string]any{
		fieldPayload:     string(payload),
		fieldPublishedAt: now.UTC().Format(time.RFC3339Nano),
	}, nil
}

// decode extracts payload and publish time from a log entry's field map.
func (codec) decode(values map[string]any) (json.RawMessage, string, error) {
	rawPayload, ok := values[fieldPayload].(string)
	if !ok {
		return nil, "", fmt.Errorf("%w: missing %s field", ErrBadEncoding, fieldPayload)
	}
	publishedAt, ok := values[fieldPublishedAt].(string)
	if !ok {
		return nil, "", fmt.Errorf("%w: missing %s field", ErrBadEncoding, fieldPublishedAt)
	}
	if !json.Valid([]byte(rawPayload)) {
		return nil, "", fmt.Errorf("%w: payload is not valid JSON", ErrBadEncoding)
	}
	return json.RawMessage(rawPayload), publishedAt, nil
}
