package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRetryKeyTTL garbage-collects counter keys well after the message is
// finally acked or DLQ-routed.
const DefaultRetryKeyTTL = time.Hour

// RetryCounter is the authoritative per-message delivery count, external to
// the log and keyed by message id. Coordination is purely through atomic
// Redis operations, so any number of group members can share it.
type RetryCounter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRetryCounter creates a RetryCounter. Non-positive ttl falls back to
// DefaultRetryKeyTTL.
func NewRetryCounter(rdb *redis.Client, ttl time.Duration) *RetryCounter {
	if ttl <= 0 {
		ttl = DefaultRetryKeyTTL
	}
	return &RetryCounter{rdb: rdb, ttl: ttl}
}

func retryKey(stream, group, messageID string) string {
	return "retry:" + stream + ":" + group + ":" + messageID
}

// Incr increments and returns the delivery count. The TTL is set on the
// first increment only so the key expires relative to the first failure.
func (c *RetryCounter) Incr(ctx context.Context, stream, group, messageID string) (int64, error) {
	key := retryKey(stream, group, messageID)
	count, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incrementing retry counter for %s: %w", messageID, err)
	}
	if count == 1 {
		if err := c.rdb.Expire(ctx, key, c.ttl).Err(); err != nil {
			return count, fmt.Errorf("expiring retry counter for %s: %w", messageID, err)
		}
	}
	return count, nil
}

// Delete removes the counter after a terminal outcome.
func (c *RetryCounter) Delete(ctx context.Context, stream, group, messageID string) error {
	if err := c.rdb.Del(ctx, retryKey(stream, group, messageID)).Err(); err != nil {
		return fmt.Errorf("deleting retry counter for %s: %w", messageID, err)
	}
	return nil
}
