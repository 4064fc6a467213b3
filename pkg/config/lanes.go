package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lanewatch/lanewatch/pkg/connector"
	"github.com/lanewatch/lanewatch/pkg/pipeline"
)

// LaneFile is the pipeline YAML document: the lanes the risk engine scores
// against, optional score thresholds, and the polling connectors to run.
type LaneFile struct {
	Lanes      []pipeline.LaneProfile   `yaml:"lanes"`
	Thresholds *pipeline.RiskThresholds `yaml:"thresholds"`
	Connectors []ConnectorDef           `yaml:"connectors"`
}

// ConnectorDef declares one polling connector. Only the "http" type exists
// today; the provider map is passed through to the fetcher untouched.
type ConnectorDef struct {
	Name             string         `yaml:"name"`
	Type             string         `yaml:"type"`
	PollIntervalMS   int64          `yaml:"poll_interval_ms"`
	RequestTimeoutMS int64          `yaml:"request_timeout_ms"`
	MaxRetries       int            `yaml:"max_retries"`
	Stream           string         `yaml:"stream"`
	Provider         map[string]any `yaml:"provider"`
}

// ConnectorConfig converts the definition into the connector runtime config.
func (d ConnectorDef) ConnectorConfig() connector.Config {
	return connector.Config{
		Name:           d.Name,
		PollInterval:   time.Duration(d.PollIntervalMS) * time.Millisecond,
		RequestTimeout: time.Duration(d.RequestTimeoutMS) * time.Millisecond,
		MaxRetries:     d.MaxRetries,
		Stream:         d.Stream,
		Provider:       connector.ProviderConfig(d.Provider),
	}
}

// LoadLaneFile reads and parses the pipeline YAML at path. Environment
// variables in the file are expanded before parsing. A file with no lanes is
// an error; absent thresholds fall back to defaults, and connector
// definitions get default intervals before validation.
func LoadLaneFile(path string) (*LaneFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading lane profiles: %w", err)
	}
	data = ExpandEnv(data)

	var file LaneFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing lane profiles %s: %w", path, err)
	}

	if len(file.Lanes) == 0 {
		return nil, fmt.Errorf("lane profiles %s: no lanes defined", path)
	}
	for i, lane := range file.Lanes {
		if lane.LaneID == "" {
			return nil, fmt.Errorf("lane profiles %s: lane %d has no lane_id", path, i)
		}
		if len(lane.TriggerTerms) == 0 {
			return nil, fmt.Errorf("lane profiles %s: lane %s has no trigger_terms", path, lane.LaneID)
		}
	}

	for i := range file.Connectors {
		def := &file.Connectors[i]
		if def.Name == "" {
			return nil, fmt.Errorf("lane profiles %s: connector %d has no name", path, i)
		}
		if def.Type == "" {
			def.Type = "http"
		}
		if def.Type != "http" {
			return nil, fmt.Errorf("lane profiles %s: connector %s has unknown type %q", path, def.Name, def.Type)
		}
		if def.PollIntervalMS <= 0 {
			def.PollIntervalMS = 30_000
		}
		if def.RequestTimeoutMS <= 0 {
			def.RequestTimeoutMS = 10_000
		}
		cfg := def.ConnectorConfig()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("lane profiles %s: %w", path, err)
		}
	}
	return &file, nil
}

// RiskThresholds returns the file's thresholds or the defaults.
func (f *LaneFile) RiskThresholds() pipeline.RiskThresholds {
	if f.Thresholds == nil {
		return pipeline.DefaultRiskThresholds()
	}
	return *f.Thresholds
}
