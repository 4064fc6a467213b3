// LaneWatch risk-intelligence server. Runs the full pipeline in one process:
// HTTP gateways, signal ingestion, and the consumer workers that classify,
// score, plan, and project impact over the Redis stream bus.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/lanewatch/lanewatch/pkg/bus"
	"github.com/lanewatch/lanewatch/pkg/config"
	"github.com/lanewatch/lanewatch/pkg/connector"
	"github.com/lanewatch/lanewatch/pkg/dedupe"
	"github.com/lanewatch/lanewatch/pkg/gateway"
	"github.com/lanewatch/lanewatch/pkg/ingest"
	"github.com/lanewatch/lanewatch/pkg/models"
	"github.com/lanewatch/lanewatch/pkg/pipeline"
	"github.com/lanewatch/lanewatch/pkg/planning"
	"github.com/lanewatch/lanewatch/pkg/worker"
)

// resolveConsumerID determines the consumer name for stream groups.
// Priority: CONSUMER_ID env > HOSTNAME env > "local"
func resolveConsumerID() string {
	if id := os.Getenv("CONSUMER_ID"); id != "" {
		return id
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "local"
}

func main() {
	envPath := flag.String("env-file", ".env", "Path to optional .env file")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", *envPath, "error", err)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	consumerID := resolveConsumerID()
	slog.Info("Starting LaneWatch",
		"consumer_id", consumerID,
		"redis_url", cfg.RedisURL,
		"lane_profiles", cfg.LaneProfilePath)

	ctx := context.Background()

	laneFile, err := config.LoadLaneFile(cfg.LaneProfilePath)
	if err != nil {
		slog.Error("Failed to load lane profiles", "error", err)
		os.Exit(1)
	}
	slog.Info("Lane profiles loaded", "lanes", len(laneFile.Lanes))

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("Invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opts)
	defer func() {
		if err := rdb.Close(); err != nil {
			slog.Error("Error closing Redis client", "error", err)
		}
	}()

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		pingCancel()
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	pingCancel()
	slog.Info("Connected to Redis")

	// Shared infrastructure: bus, stores, retry counters.
	b := bus.New(rdb, bus.WithMaxStreamLen(cfg.StreamMaxLen))
	markers := dedupe.NewRedisStore(rdb, cfg.DedupTTL)
	planningStore := planning.NewStore(rdb)
	retries := worker.NewRetryCounter(rdb, cfg.RetryKeyTTL)

	// Pipeline services.
	ingestSvc := ingest.NewService(nil, markers, b, cfg.IngestPollInterval)
	classification := pipeline.NewClassificationService(
		nil, pipeline.NewRuleBasedClassifier(), cfg.ClassificationThreshold, b)
	riskEngine := pipeline.NewRiskEngine(laneFile.Lanes, laneFile.RiskThresholds(), b)
	mitigation := pipeline.NewMitigationService(
		pipeline.NewRuleBasedPlanner(), b, cfg.MaxPublishAttempts, 0)
	impact := pipeline.NewImpactService(planningStore, b)

	workerCfg := func(stream, group string) worker.Config {
		return worker.Config{
			Stream:        stream,
			Group:         group,
			Consumer:      consumerID,
			BatchSize:     cfg.Worker.BatchSize,
			BlockTimeout:  cfg.Worker.BlockTimeout,
			MaxDeliveries: cfg.Worker.MaxDeliveries,
			RetryBackoff:  cfg.Worker.RetryBackoff,
		}
	}

	workers := []*worker.Worker{
		worker.New(workerCfg(models.StreamRawInputSignals, "ingest"), b, retries, ingestSvc.Handler()),
		worker.New(workerCfg(models.StreamExternalSignals, "classification"), b, retries, classification.Handler()),
		worker.New(workerCfg(models.StreamClassifiedEvents, "risk"), b, retries, riskEngine.Handler()),
		worker.New(workerCfg(models.StreamRiskEvaluations, "mitigation"), b, retries, mitigation.Handler()),
		worker.New(workerCfg(models.StreamMitigationPlans, "impact"), b, retries, impact.Handler()),
		worker.New(workerCfg(models.StreamShipmentPlans, "planning-shipments"), b, retries, planning.ShipmentSnapshotHandler(planningStore)),
		worker.New(workerCfg(models.StreamInventorySnapshots, "planning-inventory"), b, retries, planning.InventorySnapshotHandler(planningStore)),
	}
	for _, w := range workers {
		if err := w.Start(ctx); err != nil {
			slog.Error("Failed to start worker", "error", err)
			os.Exit(1)
		}
	}
	slog.Info("Consumer workers started", "count", len(workers))

	ingestSvc.Start(ctx)

	// Polling connectors declared in the lane file feed raw-input-signals.
	connectorStates := connector.NewStateStore(rdb)
	httpFetcher := connector.NewHTTPFetcher(&http.Client{})
	connectors := make([]*connector.Connector, 0, len(laneFile.Connectors))
	for _, def := range laneFile.Connectors {
		c := connector.New(def.ConnectorConfig(), httpFetcher,
			connector.ContentVersion, connector.RawSignalTransform, b, connectorStates)
		c.Start(ctx)
		connectors = append(connectors, c)
	}
	if len(connectors) > 0 {
		slog.Info("Polling connectors started", "count", len(connectors))
	}

	// HTTP gateways (non-blocking).
	signalGW := gateway.NewSignalGateway(gateway.Config{
		Host:                 cfg.SignalGateway.Host,
		Port:                 cfg.SignalGateway.Port,
		MaxRequestBytes:      cfg.SignalGateway.MaxRequestBytes,
		MaxRecordsPerRequest: cfg.SignalGateway.MaxRecordsPerRequest,
		AuthToken:            cfg.SignalGateway.AuthToken,
	}, b)
	planningGW := gateway.NewPlanningGateway(gateway.Config{
		Host:                 cfg.PlanningGateway.Host,
		Port:                 cfg.PlanningGateway.Port,
		MaxRequestBytes:      cfg.PlanningGateway.MaxRequestBytes,
		MaxRecordsPerRequest: cfg.PlanningGateway.MaxRecordsPerRequest,
		AuthToken:            cfg.PlanningGateway.AuthToken,
	}, b)

	errCh := make(chan error, 2)
	go func() {
		addr := cfg.SignalGateway.Addr()
		slog.Info("Signal gateway listening", "addr", addr)
		if err := signalGW.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Signal gateway error", "error", err)
			errCh <- err
		}
	}()
	go func() {
		addr := cfg.PlanningGateway.Addr()
		slog.Info("Planning gateway listening", "addr", addr)
		if err := planningGW.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Planning gateway error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("LaneWatch started successfully", "consumer_id", consumerID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// Gateways first so no new records arrive while workers drain.
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := signalGW.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("Signal gateway shutdown error", "error", err)
	}
	if err := planningGW.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("Planning gateway shutdown error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.GracefulShutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for _, c := range connectors {
			c.Stop()
		}
		ingestSvc.Stop()
		for _, w := range workers {
			w.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Workers stopped gracefully")
	case <-shutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded, unacked messages will be re-delivered")
	}

	slog.Info("Shutdown complete")
}
