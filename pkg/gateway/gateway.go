// Package gateway provides the HTTP front doors that publish directly into
// the bus: the signal-ingestion gateway and the planning gateway.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lanewatch/lanewatch/pkg/bus"
)

// Config holds one gateway's listen and limit settings.
type Config struct {
	Host                 string
	Port                 int
	MaxRequestBytes      int64
	MaxRecordsPerRequest int
	AuthToken            string // empty disables authentication
}

// Counters are the per-service operational totals exposed at /metrics.
type Counters struct {
	RequestsTotal    atomic.Int64
	RequestsFailed   atomic.Int64
	RecordsReceived  atomic.Int64
	RecordsPublished atomic.Int64
}

// snapshot renders the totals under the gateway's record noun: the signal
// gateway reports signals_received/signals_published, the planning gateway
// records_received/records_published.
func (c *Counters) snapshot(noun string) map[string]int64 {
	return map[string]int64{
		"requests_total":    c.RequestsTotal.Load(),
		"requests_failed":   c.RequestsFailed.Load(),
		noun + "_received":  c.RecordsReceived.Load(),
		noun + "_published": c.RecordsPublished.Load(),
	}
}

// errorBody is the structured error response shape.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// publishedRecord echoes one appended record back to the client.
type publishedRecord struct {
	ID             string `json:"id"`
	Stream         string `json:"stream"`
	PublishedAtUTC string `json:"published_at_utc"`
}

func toPublished(rec bus.Record) publishedRecord {
	return publishedRecord{ID: rec.ID, Stream: rec.Stream, PublishedAtUTC: rec.PublishedAtUTC}
}

// server wraps the shared gin/http lifecycle for both gateways.
type server struct {
	cfg        Config
	engine     *gin.Engine
	httpSrv    *http.Server
	counters   Counters
	recordNoun string
}

func newServer(cfg Config, recordNoun string) *server {
	engine := gin.New()
	engine.Use(gin.Recovery())
	s := &server{cfg: cfg, engine: engine, recordNoun: recordNoun}

	engine.Use(s.limitBody)
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.counters.snapshot(s.recordNoun))
	})
	return s
}

// Start serves until Shutdown; it blocks like http.Server.ListenAndServe.
func (s *server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown drains in-flight requests within the context's deadline.
func (s *server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// limitBody caps request bodies; oversized reads surface as
// http.MaxBytesError during binding and map to 413.
func (s *server) limitBody(c *gin.Context) {
	if s.cfg.MaxRequestBytes > 0 && c.Request.Body != nil {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxRequestBytes)
	}
	c.Next()
}

// requireAuth enforces the static bearer token when one is configured.
func (s *server) requireAuth(c *gin.Context) {
	if s.cfg.AuthToken == "" {
		c.Next()
		return
	}
	if c.GetHeader("Authorization") != "Bearer "+s.cfg.AuthToken {
		s.counters.RequestsTotal.Add(1)
		s.counters.RequestsFailed.Add(1)
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{
			Error:   "unauthorized",
			Message: "missing or invalid bearer token",
		})
		return
	}
	c.Next()
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
