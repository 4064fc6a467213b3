package planning

import (
	"context"

	"github.com/lanewatch/lanewatch/pkg/bus"
	"github.com/lanewatch/lanewatch/pkg/models"
	"github.com/lanewatch/lanewatch/pkg/worker"
)

// ShipmentSnapshotHandler consumes shipment-plans records and upserts them
// into the store. Invalid records fail the handler and follow the worker's
// retry/DLQ path.
func ShipmentSnapshotHandler(store *Store) worker.Handler {
	return func(ctx context.Context, rec bus.Record) error {
		plan, err := bus.DecodeMessage[models.ShipmentPlan](rec)
		if err != nil {
			return err
		}
		if err := plan.Validate(); err != nil {
			return err
		}
		return store.UpsertShipment(ctx, plan)
	}
}

// InventorySnapshotHandler consumes inventory-snapshots records and upserts
// them into the store.
func InventorySnapshotHandler(store *Store) worker.Handler {
	return func(ctx context.Context, rec bus.Record) error {
		snap, err := bus.DecodeMessage[models.InventorySnapshot](rec)
		if err != nil {
			return err
		}
		if err := snap.Validate(); err != nil {
			return err
		}
		return store.UpsertInventory(ctx, snap)
	}
}
