package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lanewatch/lanewatch/pkg/bus"
	"github.com/lanewatch/lanewatch/pkg/models"
)

// SignalGateway accepts raw signal batches over HTTP and publishes each
// record to the raw-input-signals stream. Normalisation and deduplication
// happen downstream in the ingestion pipeline.
type SignalGateway struct {
	*server
	bus *bus.Bus
}

// SubmitSignalsRequest is the POST /signals body.
type SubmitSignalsRequest struct {
	Signals []models.RawExternalSignal `json:"signals"`
}

// SubmitSignalsResponse echoes the appended records.
type SubmitSignalsResponse struct {
	Published []publishedRecord `json:"published"`
}

// NewSignalGateway creates the gateway.
func NewSignalGateway(cfg Config, b *bus.Bus) *SignalGateway {
	g := &SignalGateway{server: newServer(cfg, "signals"), bus: b}
	g.engine.POST("/signals", g.requireAuth, g.submitSignals)
	return g
}

func (g *SignalGateway) submitSignals(c *gin.Context) {
	g.counters.RequestsTotal.Add(1)

	var req SubmitSignalsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.counters.RequestsFailed.Add(1)
		if isBodyTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, errorBody{
				Error:   "payload_too_large",
				Message: "request body exceeds the configured maximum",
			})
			return
		}
		c.JSON(http.StatusBadRequest, errorBody{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	if len(req.Signals) == 0 {
		g.counters.RequestsFailed.Add(1)
		c.JSON(http.StatusBadRequest, errorBody{
			Error:   "invalid_request",
			Message: "signals must contain at least one record",
		})
		return
	}
	if g.cfg.MaxRecordsPerRequest > 0 && len(req.Signals) > g.cfg.MaxRecordsPerRequest {
		g.counters.RequestsFailed.Add(1)
		c.JSON(http.StatusUnprocessableEntity, errorBody{
			Error:   "batch_too_large",
			Message: "batch exceeds the configured maximum record count",
		})
		return
	}

	g.counters.RecordsReceived.Add(int64(len(req.Signals)))

	published := make([]publishedRecord, 0, len(req.Signals))
	for _, raw := range req.Signals {
		rec, err := g.bus.Publish(c.Request.Context(), models.StreamRawInputSignals, raw)
		if err != nil {
			g.counters.RequestsFailed.Add(1)
			c.JSON(http.StatusInternalServerError, errorBody{
				Error:   "publish_failed",
				Message: "failed to append signal to the input stream",
			})
			return
		}
		g.counters.RecordsPublished.Add(1)
		published = append(published, toPublished(rec))
	}

	c.JSON(http.StatusOK, SubmitSignalsResponse{Published: published})
}

// Handler exposes the engine for tests.
func (g *SignalGateway) Handler() http.Handler { return g.engine }
