package bus

import (
	"encoding/json"
	"fmt"
)

// Record is one decoded event on a stream. ID is assigned by the log and is
// monotonically increasing within a stream.
type Record struct {
	ID             string
	Stream         string
	Payload        json.RawMessage
	PublishedAtUTC string
}

// DecodeMessage unmarshals a record's payload into the message type for its
// stream.
func DecodeMessage[T any](rec Record) (T, error) {
	var msg T
	if err := json.Unmarshal(rec.Payload, &msg); err != nil {
		return msg, fmt.Errorf("decoding %s message %s: %w", rec.Stream, rec.ID, err)
	}
	return msg, nil
}
