// Package config loads service configuration from the environment and lane
// profiles from YAML. Missing values fall back to documented defaults;
// malformed values fail fast at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ConfigError reports an unparsable environment value.
type ConfigError struct {
	Variable string
	Value    string
	Reason   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s=%q %s", e.Variable, e.Value, e.Reason)
}

// GatewayConfig is one HTTP gateway's listen and limit settings.
type GatewayConfig struct {
	Host                 string
	Port                 int
	MaxRequestBytes      int64
	MaxRecordsPerRequest int
	AuthToken            string
}

// Addr returns the host:port listen address.
func (g GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// WorkerConfig holds the consumer-worker tunables shared by all services.
type WorkerConfig struct {
	BatchSize     int64
	BlockTimeout  time.Duration
	MaxDeliveries int64
	RetryBackoff  time.Duration
}

// Config is the full process configuration.
type Config struct {
	RedisURL     string
	StreamMaxLen int64
	DedupTTL     time.Duration
	RetryKeyTTL  time.Duration

	Worker             WorkerConfig
	IngestPollInterval time.Duration

	ClassificationThreshold float64
	MaxPublishAttempts      int

	LaneProfilePath string

	SignalGateway   GatewayConfig
	PlanningGateway GatewayConfig

	GracefulShutdownTimeout time.Duration
}

// FromEnv builds the configuration from the environment.
func FromEnv() (*Config, error) {
	cfg := &Config{
		RedisURL:        getEnv("REDIS_URL", "redis://127.0.0.1:6379"),
		LaneProfilePath: getEnv("LANE_PROFILE_PATH", "./deploy/config/lanes.yaml"),
	}

	var err error
	if cfg.StreamMaxLen, err = envInt64("STREAM_MAX_LEN", 100_000); err != nil {
		return nil, err
	}
	if cfg.DedupTTL, err = envSeconds("DEDUP_TTL_SECONDS", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RetryKeyTTL, err = envSeconds("RETRY_KEY_TTL_SECONDS", time.Hour); err != nil {
		return nil, err
	}

	if cfg.Worker.BatchSize, err = envInt64("WORKER_BATCH_SIZE", 10); err != nil {
		return nil, err
	}
	if cfg.Worker.BlockTimeout, err = envMillis("WORKER_BLOCK_MS", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.Worker.MaxDeliveries, err = envInt64("WORKER_MAX_DELIVERIES", 3); err != nil {
		return nil, err
	}
	if cfg.Worker.RetryBackoff, err = envMillis("WORKER_RETRY_BACKOFF_MS", time.Second); err != nil {
		return nil, err
	}

	if cfg.IngestPollInterval, err = envMillis("INGEST_POLL_INTERVAL_MS", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ClassificationThreshold, err = envFloat("CLASSIFICATION_CONFIDENCE_THRESHOLD", 0.6); err != nil {
		return nil, err
	}
	if cfg.MaxPublishAttempts, err = envInt("MAX_PUBLISH_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.GracefulShutdownTimeout, err = envSeconds("GRACEFUL_SHUTDOWN_TIMEOUT_SECONDS", 30*time.Second); err != nil {
		return nil, err
	}

	if cfg.SignalGateway, err = gatewayFromEnv("SIGNAL_GATEWAY", 8090); err != nil {
		return nil, err
	}
	if cfg.PlanningGateway, err = gatewayFromEnv("PLANNING_GATEWAY", 8091); err != nil {
		return nil, err
	}
	return cfg, nil
}

// gatewayFromEnv reads one gateway's settings under the given prefix.
// Defaults: loopback host, 1 MiB request cap, 500-record batches, no auth.
func gatewayFromEnv(prefix string, defaultPort int) (GatewayConfig, error) {
	g := GatewayConfig{
		Host:      getEnv(prefix+"_HOST", "127.0.0.1"),
		AuthToken: os.Getenv(prefix + "_AUTH_TOKEN"),
	}
	var err error
	if g.Port, err = envInt(prefix+"_PORT", defaultPort); err != nil {
		return GatewayConfig{}, err
	}
	if g.MaxRequestBytes, err = envInt64(prefix+"_MAX_REQUEST_BYTES", 1<<20); err != nil {
		return GatewayConfig{}, err
	}
	if g.MaxRecordsPerRequest, err = envInt(prefix+"_MAX_RECORDS_PER_REQUEST", 500); err != nil {
		return GatewayConfig{}, err
	}
	return g, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ConfigError{Variable: key, Value: raw, Reason: "is not an integer"}
	}
	return v, nil
}

func envInt64(key string, fallback int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &ConfigError{Variable: key, Value: raw, Reason: "is not an integer"}
	}
	return v, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &ConfigError{Variable: key, Value: raw, Reason: "is not a number"}
	}
	return v, nil
}

func envSeconds(key string, fallback time.Duration) (time.Duration, error) {
	v, err := envInt64(key, int64(fallback/time.Second))
	if err != nil {
		return 0, err
	}
	return time.Duration(v) * time.Second, nil
}

func envMillis(key string, fallback time.Duration) (time.Duration, error) {
	v, err := envInt64(key, int64(fallback/time.Millisecond))
	if err != nil {
		return 0, err
	}
	return time.Duration(v) * time.Millisecond, nil
}
