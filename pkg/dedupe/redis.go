package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL keeps markers far longer than end-to-end pipeline latency so a
// replayed upstream record is still recognised as a duplicate.
const DefaultTTL = 24 * time.Hour

// RedisStore implements Store with SET NX EX on the shared Redis client.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore creates a RedisStore. A non-positive ttl falls back to
// DefaultTTL.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

// MarkIfFirstSeen performs the atomic set-if-absent with expiration.
func (s *RedisStore) MarkIfFirstSeen(ctx context.Context, stream, eventID string) (bool, error) {
	inserted, err := s.rdb.SetNX(ctx, markerKey(stream, eventID), 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("marking %s/%s: %w", stream, eventID, err)
	}
	return inserted, nil
}

// Clear removes the marker.
func (s *RedisStore) Clear(ctx context.Context, stream, eventID string) error {
	if err := s.rdb.Del(ctx, markerKey(stream, eventID)).Err(); err != nil {
		return fmt.Errorf("clearing %s/%s: %w", stream, eventID, err)
	}
	return nil
}
