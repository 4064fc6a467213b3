package ingest

import (
	"context"
	"log/slog"

	"github.com/lanewatch/lanewatch/pkg/bus"
	"github.com/lanewatch/lanewatch/pkg/models"
	"github.com/lanewatch/lanewatch/pkg/worker"
)

// Handler adapts the service for the consumer worker reading the
// raw-input-signals stream fed by the HTTP gateway. Schema failures drop the
// record rather than retry it; normalisation is deterministic, so a retry
// can never succeed.
func (s *Service) Handler() worker.Handler {
	return func(ctx context.Context, rec bus.Record) error {
		raw, err := bus.DecodeMessage[models.RawExternalSignal](rec)
		if err != nil {
			return err
		}

		outcome, err := s.Ingest(ctx, raw)
		if models.IsSchemaError(err) {
			slog.Warn("Dropping gateway signal failing schema validation",
				"message_id", rec.ID, "error", err)
			return nil
		}
		if err != nil {
			return err
		}
		if outcome == "deduplicated" {
			slog.Debug("Gateway signal deduplicated", "message_id", rec.ID)
		}
		return nil
	}
}
