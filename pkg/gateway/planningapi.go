package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lanewatch/lanewatch/pkg/bus"
	"github.com/lanewatch/lanewatch/pkg/models"
)

// PlanningGateway accepts shipment plans and inventory snapshots and
// publishes them to their streams; the snapshot workers fold them into the
// planning state store.
type PlanningGateway struct {
	*server
	bus *bus.Bus
}

// SubmitShipmentsRequest is the POST /shipments body.
type SubmitShipmentsRequest struct {
	Shipments []models.ShipmentPlan `json:"shipments"`
}

// SubmitInventoryRequest is the POST /inventory body.
type SubmitInventoryRequest struct {
	Snapshots []models.InventorySnapshot `json:"snapshots"`
}

// SubmitPlanningResponse echoes the appended records.
type SubmitPlanningResponse struct {
	Published []publishedRecord `json:"published"`
}

// NewPlanningGateway creates the gateway.
func NewPlanningGateway(cfg Config, b *bus.Bus) *PlanningGateway {
	g := &PlanningGateway{server: newServer(cfg, "records"), bus: b}
	g.engine.POST("/shipments", g.requireAuth, g.submitShipments)
	g.engine.POST("/inventory", g.requireAuth, g.submitInventory)
	return g
}

func (g *PlanningGateway) submitShipments(c *gin.Context) {
	var req SubmitShipmentsRequest
	if !g.bind(c, &req) {
		return
	}
	records := make([]any, len(req.Shipments))
	for i := range req.Shipments {
		if err := req.Shipments[i].Validate(); err != nil {
			g.reject(c, err)
			return
		}
		records[i] = req.Shipments[i]
	}
	g.publishBatch(c, models.StreamShipmentPlans, records)
}

func (g *PlanningGateway) submitInventory(c *gin.Context) {
	var req SubmitInventoryRequest
	if !g.bind(c, &req) {
		return
	}
	records := make([]any, len(req.Snapshots))
	for i := range req.Snapshots {
		if err := req.Snapshots[i].Validate(); err != nil {
			g.reject(c, err)
			return
		}
		records[i] = req.Snapshots[i]
	}
	g.publishBatch(c, models.StreamInventorySnapshots, records)
}

// bind decodes the request body and applies the shared size and batch
// limits. Returns false after writing the error response.
func (g *PlanningGateway) bind(c *gin.Context, req any) bool {
	g.counters.RequestsTotal.Add(1)

	if err := c.ShouldBindJSON(req); err != nil {
		g.counters.RequestsFailed.Add(1)
		if isBodyTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, errorBody{
				Error:   "payload_too_large",
				Message: "request body exceeds the configured maximum",
			})
			return false
		}
		c.JSON(http.StatusBadRequest, errorBody{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return false
	}

	count := 0
	switch r := req.(type) {
	case *SubmitShipmentsRequest:
		count = len(r.Shipments)
	case *SubmitInventoryRequest:
		count = len(r.Snapshots)
	}
	if count == 0 {
		g.counters.RequestsFailed.Add(1)
		c.JSON(http.StatusBadRequest, errorBody{
			Error:   "invalid_request",
			Message: "request must contain at least one record",
		})
		return false
	}
	if g.cfg.MaxRecordsPerRequest > 0 && count > g.cfg.MaxRecordsPerRequest {
		g.counters.RequestsFailed.Add(1)
		c.JSON(http.StatusUnprocessableEntity, errorBody{
			Error:   "batch_too_large",
			Message: "batch exceeds the configured maximum record count",
		})
		return false
	}
	return true
}

func (g *PlanningGateway) reject(c *gin.Context, err error) {
	g.counters.RequestsFailed.Add(1)
	c.JSON(http.StatusBadRequest, errorBody{
		Error:   "invalid_record",
		Message: err.Error(),
	})
}

func (g *PlanningGateway) publishBatch(c *gin.Context, stream string, records []any) {
	g.counters.RecordsReceived.Add(int64(len(records)))

	published := make([]publishedRecord, 0, len(records))
	for _, record := range records {
		rec, err := g.bus.Publish(c.Request.Context(), stream, record)
		if err != nil {
			g.counters.RequestsFailed.Add(1)
			c.JSON(http.StatusInternalServerError, errorBody{
				Error:   "publish_failed",
				Message: "failed to append record to " + stream,
			})
			return
		}
		g.counters.RecordsPublished.Add(1)
		published = append(published, toPublished(rec))
	}
	c.JSON(http.StatusOK, SubmitPlanningResponse{Published: published})
}

// Handler exposes the engine for tests.
func (g *PlanningGateway) Handler() http.Handler { return g.engine }
