package connector

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// State is a connector's persisted scalar state. Each connector name owns its
// keyspace exclusively (single writer), so reads and writes need no locking
// beyond Redis itself.
type State struct {
	LastPollUTC string            `json:"last_poll_utc"`
	Cursor      string            `json:"cursor"`
	Versions    map[string]string `json:"versions"` // provider item id → last published version
}

// StateStore persists per-connector state in a Redis hash under
// connector:state:<name>.
type StateStore struct {
	rdb *redis.Client
}

// NewStateStore creates a StateStore on the shared Redis client.
func NewStateStore(rdb *redis.Client) *StateStore {
	return &StateStore{rdb: rdb}
}

func stateKey(name string) string {
	return "connector:state:" + name
}

// Load reads the connector's state. A connector that has never persisted
// returns a zero state with a non-nil version map.
func (s *StateStore) Load(ctx context.Context, name string) (State, error) {
	values, err := s.rdb.HGetAll(ctx, stateKey(name)).Result()
	if err != nil {
		return State{}, fmt.Errorf("loading state for %s: %w", name, err)
	}

	state := State{
		LastPollUTC: values["last_poll_utc"],
		Cursor:      values["cursor"],
		Versions:    make(map[string]string),
	}
	if raw, ok := values["versions"]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &state.Versions); err != nil {
			return State{}, fmt.Errorf("decoding version map for %s: %w", name, err)
		}
	}
	return state, nil
}

// Save persists the state in one write.
func (s *StateStore) Save(ctx context.Context, name string, state State) error {
	versions, err := json.Marshal(state.Versions)
	if err != nil {
		return fmt.Errorf("encoding version map for %s: %w", name, err)
	}
	err = s.rdb.HSet(ctx, stateKey(name), map[string]any{
		"last_poll_utc": state.LastPollUTC,
		"cursor":        state.Cursor,
		"versions":      string(versions),
	}).Err()
	if err != nil {
		return fmt.Errorf("saving state for %s: %w", name, err)
	}
	return nil
}
