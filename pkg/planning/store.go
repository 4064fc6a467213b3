// Package planning holds the key-value state the impact service reads:
// planned shipments indexed by lane, and inventory snapshots by SKU. The
// store's contract is upsert-only; history lives on the streams.
package planning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/lanewatch/lanewatch/pkg/models"
)

// ErrNotFound reports a missing shipment or inventory record. The impact
// service treats it as a non-error skip.
var ErrNotFound = errors.New("planning record not found")

// Store persists shipments and inventory under planning:* keys with a
// per-lane index set.
type Store struct {
	rdb *redis.Client
}

// NewStore creates a Store on the shared Redis client.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func shipmentKey(id string) string { return "planning:shipment:" + id }
func inventoryKey(sku string) string { return "planning:inventory:" + sku }
func laneKey(laneID string) string { return "planning:lane:" + laneID }

// UpsertShipment writes the shipment and indexes it under its lane.
func (s *Store) UpsertShipment(ctx context.Context, plan models.ShipmentPlan) error {
	body, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("encoding shipment %s: %w", plan.ShipmentID, err)
	}
	if err := s.rdb.Set(ctx, shipmentKey(plan.ShipmentID), body, 0).Err(); err != nil {
		return fmt.Errorf("upserting shipment %s: %w", plan.ShipmentID, err)
	}
	if err := s.rdb.SAdd(ctx, laneKey(plan.LaneID), plan.ShipmentID).Err(); err != nil {
		return fmt.Errorf("indexing shipment %s on lane %s: %w", plan.ShipmentID, plan.LaneID, err)
	}
	return nil
}

// UpsertInventory writes the SKU's snapshot.
func (s *Store) UpsertInventory(ctx context.Context, snap models.InventorySnapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding inventory %s: %w", snap.SKU, err)
	}
	if err := s.rdb.Set(ctx, inventoryKey(snap.SKU), body, 0).Err(); err != nil {
		return fmt.Errorf("upserting inventory %s: %w", snap.SKU, err)
	}
	return nil
}

// ShipmentsByLane returns all planned shipments indexed under the lane.
// Dangling index entries (shipment key expired or deleted) are skipped.
func (s *Store) ShipmentsByLane(ctx context.Context, laneID string) ([]models.ShipmentPlan, error) {
	ids, err := s.rdb.SMembers(ctx, laneKey(laneID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading lane index %s: %w", laneID, err)
	}

	shipments := make([]models.ShipmentPlan, 0, len(ids))
	for _, id := range ids {
		body, err := s.rdb.Get(ctx, shipmentKey(id)).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading shipment %s: %w", id, err)
		}
		var plan models.ShipmentPlan
		if err := json.Unmarshal([]byte(body), &plan); err != nil {
			return nil, fmt.Errorf("decoding shipment %s: %w", id, err)
		}
		shipments = append(shipments, plan)
	}
	return shipments, nil
}

// Inventory returns the snapshot for a SKU, or ErrNotFound.
func (s *Store) Inventory(ctx context.Context, sku string) (models.InventorySnapshot, error) {
	body, err := s.rdb.Get(ctx, inventoryKey(sku)).Result()
	if errors.Is(err, redis.Nil) {
		return models.InventorySnapshot{}, fmt.Errorf("inventory %s: %w", sku, ErrNotFound)
	}
	if err != nil {
		return models.InventorySnapshot{}, fmt.Errorf("reading inventory %s: %w", sku, err)
	}
	var snap models.InventorySnapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		return models.InventorySnapshot{}, fmt.Errorf("decoding inventory %s: %w", sku, err)
	}
	return snap, nil
}
