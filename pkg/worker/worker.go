// Package worker implements the generic consumer-group loop shared by every
// transformer in the pipeline: blocking batch reads, per-message retry
// counters, and dead-letter routing on delivery exhaustion.
package worker

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/lanewatch/lanewatch/pkg/bus"
)

// ReasonMaxDeliveries is the DLQ reason for messages whose handler failed
// maxDeliveries times.
const ReasonMaxDeliveries = "MAX_DELIVERIES_EXCEEDED"

// Handler processes one decoded record. A returned error leaves the message
// pending and drives the retry-counter path; the worker must not be combined
// with an inner retry helper around the same work.
type Handler func(ctx context.Context, rec bus.Record) error

// Config configures one worker instance.
type Config struct {
	Stream        string
	Group         string
	Consumer      string
	BatchSize     int64
	BlockTimeout  time.Duration
	MaxDeliveries int64
	RetryBackoff  time.Duration
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = 5 * time.Second
	}
	if c.MaxDeliveries <= 0 {
		c.MaxDeliveries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
}

// Status is the worker's current state.
type Status string

// Worker status values.
const (
	StatusIdle    Status = "idle"
	StatusWorking Status = "working"
)

// Health is a point-in-time worker snapshot.
type Health struct {
	Consumer     string    `json:"consumer"`
	Status       Status    `json:"status"`
	Processed    int       `json:"processed"`
	Failed       int       `json:"failed"`
	DLQRouted    int       `json:"dlq_routed"`
	LastActivity time.Time `json:"last_activity"`
}

// Worker drives one (stream, group, consumer) loop with a per-message
// handler. Every message reaches exactly one terminal outcome: ack, ack after
// DLQ route, or pending retry.
type Worker struct {
	cfg     Config
	bus     *bus.Bus
	retries *RetryCounter
	handler Handler

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu           sync.RWMutex
	status       Status
	processed    int
	failed       int
	dlqRouted    int
	lastActivity time.Time
}

// New creates a worker. Zero config fields get conservative defaults.
func New(cfg Config, b *bus.Bus, retries *RetryCounter, handler Handler) *Worker {
	cfg.applyDefaults()
	return &Worker{
		cfg:          cfg,
		bus:          b,
		retries:      retries,
		handler:      handler,
		stopCh:       make(chan struct{}),
		status:       StatusIdle,
		lastActivity: time.Now(),
	}
}

// Start ensures the consumer group exists and launches the loop.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.bus.EnsureGroup(ctx, w.cfg.Stream, w.cfg.Group); err != nil {
		return err
	}
	w.wg.Add(1)
	go w.run(ctx)
	return nil
}

// Stop signals the loop to exit between batches and waits for the current
// handler to finish.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the worker's current snapshot.
func (w *Worker) Health() Health {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Health{
		Consumer:     w.cfg.Consumer,
		Status:       w.status,
		Processed:    w.processed,
		Failed:       w.failed,
		DLQRouted:    w.dlqRouted,
		LastActivity: w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("stream", w.cfg.Stream, "group", w.cfg.Group, "consumer", w.cfg.Consumer)
	log.Info("Worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		default:
			if err := w.RunBatch(ctx); err != nil {
				log.Error("Batch read failed", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

// RunBatch reads and processes one batch. The consumer's own pending entries
// (left unacked by earlier failures) are retried before new messages are
// taken, so a failing message is re-delivered on the next read.
func (w *Worker) RunBatch(ctx context.Context) error {
	records, err := w.bus.Consume(ctx, bus.ConsumeArgs{
		Stream:   w.cfg.Stream,
		Group:    w.cfg.Group,
		Consumer: w.cfg.Consumer,
		Count:    w.cfg.BatchSize,
		Pending:  true,
	})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		records, err = w.bus.Consume(ctx, bus.ConsumeArgs{
			Stream:   w.cfg.Stream,
			Group:    w.cfg.Group,
			Consumer: w.cfg.Consumer,
			Count:    w.cfg.BatchSize,
			Block:    w.cfg.BlockTimeout,
		})
		if err != nil {
			return err
		}
	}

	for _, rec := range records {
		select {
		case <-w.stopCh:
			return nil // unprocessed records stay pending for the next run
		case <-ctx.Done():
			return nil
		default:
		}
		w.processRecord(ctx, rec)
	}
	return nil
}

func (w *Worker) processRecord(ctx context.Context, rec bus.Record) {
	w.setStatus(StatusWorking)
	defer w.setStatus(StatusIdle)

	err := w.handler(ctx, rec)
	if err == nil {
		w.finalize(ctx, rec, false)
		return
	}

	retries, cntErr := w.retries.Incr(ctx, w.cfg.Stream, w.cfg.Group, rec.ID)
	if cntErr != nil {
		// Can't establish the delivery count; leave the message pending and
		// let the next delivery retry the increment.
		slog.Error("Retry counter unavailable", "id", rec.ID, "error", cntErr)
		w.sleep(w.cfg.RetryBackoff)
		return
	}

	log := slog.With("stream", w.cfg.Stream, "group", w.cfg.Group, "id", rec.ID)
	if retries >= w.cfg.MaxDeliveries {
		log.Warn("Delivery budget exhausted, routing to DLQ",
			"deliveries", retries, "error", err)
		if dlqErr := w.bus.MoveToDLQ(ctx, bus.DLQEntry{
			SourceStream:    w.cfg.Stream,
			SourceMessageID: rec.ID,
			Reason:          ReasonMaxDeliveries,
			Payload:         string(rec.Payload),
			Metadata: map[string]string{
				"group":      w.cfg.Group,
				"deliveries": strconv.FormatInt(retries, 10),
				"error":      err.Error(),
			},
		}); dlqErr != nil {
			// Keep the message pending; DLQ routing is retried on the next
			// delivery of the same id.
			log.Error("DLQ route failed", "error", dlqErr)
			w.sleep(w.cfg.RetryBackoff)
			return
		}
		w.finalize(ctx, rec, true)
		return
	}

	log.Warn("Handler failed, message stays pending",
		"deliveries", retries, "max_deliveries", w.cfg.MaxDeliveries, "error", err)
	w.mu.Lock()
	w.failed++
	w.mu.Unlock()
	w.sleep(w.cfg.RetryBackoff)
}

// finalize acks the message and removes its retry counter. dlqRouted marks
// the ack-after-DLQ-route outcome.
func (w *Worker) finalize(ctx context.Context, rec bus.Record, dlqRouted bool) {
	if err := w.bus.Ack(ctx, w.cfg.Stream, w.cfg.Group, rec.ID); err != nil {
		slog.Error("Ack failed, message will be re-delivered",
			"stream", w.cfg.Stream, "id", rec.ID, "error", err)
		return
	}
	if err := w.retries.Delete(ctx, w.cfg.Stream, w.cfg.Group, rec.ID); err != nil {
		slog.Warn("Failed to delete retry counter; key expires by TTL",
			"stream", w.cfg.Stream, "id", rec.ID, "error", err)
	}

	w.mu.Lock()
	if dlqRouted {
		w.dlqRouted++
	} else {
		w.processed++
	}
	w.lastActivity = time.Now()
	w.mu.Unlock()
}

func (w *Worker) setStatus(s Status) {
	w.mu.Lock()
	w.status = s
	w.lastActivity = time.Now()
	w.mu.Unlock()
}

// sleep waits for the duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

