// Package bus implements the durable event bus over a log-oriented Redis
// Streams store: append with approximate trimming, tail reads, consumer
// groups with at-least-once delivery, and dead-letter routing.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultMaxStreamLen caps stream storage when no explicit limit is
// configured. Trimming is approximate: Redis removes whole macro nodes, never
// blocking appends on precise counts.
const DefaultMaxStreamLen = 100_000

// ReasonBadEncoding is the DLQ reason for log entries the codec cannot read.
const ReasonBadEncoding = "BAD_ENCODING"

// Bus is the event bus shared by every service in a process. It is safe for
// concurrent use; the underlying go-redis client multiplexes connections.
type Bus struct {
	rdb          *redis.Client
	codec        codec
	maxStreamLen int64
	now          func() time.Time
}

// Option configures a Bus.
type Option func(*Bus)

// WithMaxStreamLen overrides the approximate per-stream length cap.
func WithMaxStreamLen(n int64) Option {
	return func(b *Bus) { b.maxStreamLen = n }
}

// withClock overrides the publish timestamp source in tests.
func withClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// New creates a Bus on top of an existing Redis client.
func New(rdb *redis.Client, opts ...Option) *Bus {
	b := &Bus{
		rdb:          rdb,
		maxStreamLen: DefaultMaxStreamLen,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Client exposes the underlying Redis client so the key-value stores
// (idempotency markers, retry counters, connector state) share one
// connection pool with the bus.
func (b *Bus) Client() *redis.Client {
	return b.rdb
}

// Publish encodes the message, appends it to the stream, and trims the stream
// to the configured approximate maximum length.
func (b *Bus) Publish(ctx context.Context, stream string, message any) (Record, error) {
	values, err := b.codec.encode(message, b.now())
	if err != nil {
		return Record{}, err
	}
	id, err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: b.maxStreamLen,
		Approx: true,
		ID:     "*",
		Values: values,
	}).Result()
	if err != nil {
		return Record{}, fmt.Errorf("appending to %s: %w", stream, err)
	}
	return Record{
		ID:             id,
		Stream:         stream,
		Payload:        []byte(values[fieldPayload].(string)),
		PublishedAtUTC: values[fieldPublishedAt].(string),
	}, nil
}

// ReadRecent returns the most recent count records in reverse chronological
// order. Operational surfaces only; transformers consume via groups.
func (b *Bus) ReadRecent(ctx context.Context, stream string, count int64) ([]Record, error) {
	msgs, err := b.rdb.XRevRangeN(ctx, stream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("reading recent from %s: %w", stream, err)
	}
	records := make([]Record, 0, len(msgs))
	for _, msg := range msgs {
		payload, publishedAt, err := b.codec.decode(msg.Values)
		if err != nil {
			slog.Warn("Skipping undecodable record on tail read",
				"stream", stream, "id", msg.ID, "error", err)
			continue
		}
		records = append(records, Record{
			ID:             msg.ID,
			Stream:         stream,
			Payload:        payload,
			PublishedAtUTC: publishedAt,
		})
	}
	return records, nil
}

// EnsureGroup creates a consumer group starting at the stream tail. Creating
// a group that already exists is a no-op; the stream is created if missing.
func (b *Bus) EnsureGroup(ctx context.Context, stream, group string) error {
	err := b.rdb.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("creating group %s on %s: %w", group, stream, err)
	}
	return nil
}

// ConsumeArgs names the consumer-group read parameters.
type ConsumeArgs struct {
	Stream   string
	Group    string
	Consumer string
	Count    int64
	Block    time.Duration

	// Pending re-reads this consumer's own delivered-but-unacked entries
	// instead of new messages. Used to retry messages left pending by a
	// failing handler.
	Pending bool
}

// Consume blocks for up to args.Block reading new messages for the group.
// Undecodable entries are routed to the group's dead-letter stream and acked;
// they are never surfaced to the caller.
func (b *Bus) Consume(ctx context.Context, args ConsumeArgs) ([]Record, error) {
	cursor := ">"
	if args.Pending {
		cursor = "0"
	}
	streams, err := b.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    args.Group,
		Consumer: args.Consumer,
		Streams:  []string{args.Stream, cursor},
		Count:    args.Count,
		Block:    args.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // block timeout, no new messages
		}
		return nil, fmt.Errorf("reading group %s on %s: %w", args.Group, args.Stream, err)
	}

	var records []Record
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			payload, publishedAt, decErr := b.codec.decode(msg.Values)
			if decErr != nil {
				b.routeBadEncoding(ctx, args, msg, decErr)
				continue
			}
			records = append(records, Record{
				ID:             msg.ID,
				Stream:         args.Stream,
				Payload:        payload,
				PublishedAtUTC: publishedAt,
			})
		}
	}
	return records, nil
}

// Ack acknowledges processed message ids for the group.
func (b *Bus) Ack(ctx context.Context, stream, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := b.rdb.XAck(ctx, stream, group, ids...).Err(); err != nil {
		return fmt.Errorf("acking on %s: %w", stream, err)
	}
	return nil
}

// DLQEntry describes a message being routed to a dead-letter stream.
type DLQEntry struct {
	SourceStream    string
	SourceMessageID string
	Reason          string
	Payload         string
	Metadata        map[string]string
}

// MoveToDLQ appends the entry to the source stream's dead-letter stream with
// structured metadata. The source message itself is acked by the caller.
func (b *Bus) MoveToDLQ(ctx context.Context, entry DLQEntry) error {
	values := map[string]any{
		"source_stream":     entry.SourceStream,
		"source_message_id": entry.SourceMessageID,
		"reason":            entry.Reason,
		fieldPayload:        entry.Payload,
		"moved_at_utc":      b.now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range entry.Metadata {
		values["meta_"+k] = v
	}
	err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: entry.SourceStream + ".dlq",
		MaxLen: b.maxStreamLen,
		Approx: true,
		ID:     "*",
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("routing %s to dlq: %w", entry.SourceMessageID, err)
	}
	return nil
}

// routeBadEncoding moves an undecodable entry to the DLQ and acks it so the
// group is not poisoned. Both steps are best-effort: failures are logged and
// the entry stays pending for a later consumer.
func (b *Bus) routeBadEncoding(ctx context.Context, args ConsumeArgs, msg redis.XMessage, decErr error) {
	slog.Warn("Routing undecodable message to DLQ",
		"stream", args.Stream, "group", args.Group, "id", msg.ID, "error", decErr)

	payload, _ := msg.Values[fieldPayload].(string)
	if err := b.MoveToDLQ(ctx, DLQEntry{
		SourceStream:    args.Stream,
		SourceMessageID: msg.ID,
		Reason:          ReasonBadEncoding,
		Payload:         payload,
		Metadata:        map[string]string{"group": args.Group, "error": decErr.Error()},
	}); err != nil {
		slog.Error("Failed to route undecodable message to DLQ",
			"stream", args.Stream, "id", msg.ID, "error", err)
		return
	}
	if err := b.Ack(ctx, args.Stream, args.Group, msg.ID); err != nil {
		slog.Error("Failed to ack undecodable message after DLQ route",
			"stream", args.Stream, "id", msg.ID, "error", err)
	}
}

// isBusyGroup matches the Redis error for creating a group that exists.
func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
