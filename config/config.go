/*
Copyright (c) The handover-core Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config loads the process-wide configuration surface (§6): a YAML
// file read once at start, plus an optional INI node registry describing
// which nodes back each network plane.
package config

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"

	"github.com/ntn-constellation/handover-core/bridge"
)

// Config is the process-wide configuration surface (§6). It is loaded once
// at start; hot-reload is not required.
type Config struct {
	DeltaTSeconds                float64 `yaml:"delta_t_s"`
	BinarySearchPrecisionSeconds float64 `yaml:"binary_search_precision_s"`
	BlockSizeDeg                 float64 `yaml:"block_size_deg"`
	MaxCandidateSatellites       int     `yaml:"max_candidate_satellites"`
	MinElevationDeg              float64 `yaml:"min_elevation_deg"`
	SchedulerMinElevationDeg     float64 `yaml:"scheduler_min_elevation_deg"`
	TwoPointDeltaMinutes         float64 `yaml:"two_point_delta_minutes"`

	SyncIntervalSeconds  float64 `yaml:"sync_interval_s"`
	MaxClockDriftMS      float64 `yaml:"max_clock_drift_ms"`
	TargetSyncAccuracyMS float64 `yaml:"target_sync_accuracy_ms"`

	Mode             string  `yaml:"mode"`
	FallbackTimeoutS float64 `yaml:"fallback_timeout_s"`

	EventStoreMax          int `yaml:"event_store_max"`
	EventWorkerCount       int `yaml:"event_worker_count"`
	EventDefaultMaxRetries int `yaml:"event_default_max_retries"`

	MeasurementOutputDir string `yaml:"measurement_output_dir"`

	NodeRegistryPath string `yaml:"node_registry_path"`
}

// Default returns Config populated with §6's named defaults.
func Default() *Config {
	return &Config{
		DeltaTSeconds:                5.0,
		BinarySearchPrecisionSeconds: 0.01,
		BlockSizeDeg:                 10,
		MaxCandidateSatellites:       5,
		MinElevationDeg:              10,
		SchedulerMinElevationDeg:     30,
		TwoPointDeltaMinutes:         2.0,

		SyncIntervalSeconds:  15,
		MaxClockDriftMS:      50,
		TargetSyncAccuracyMS: 10,

		Mode:             bridge.PaperOnly.String(),
		FallbackTimeoutS: 10,

		EventStoreMax:          10000,
		EventWorkerCount:       4,
		EventDefaultMaxRetries: 3,

		MeasurementOutputDir: "./measurement_results",
	}
}

// Load reads path (YAML) over Default, so a config file only needs to name
// the fields it overrides.
func Load(path string) (*Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return c, nil
}

// DeltaT returns the scheduler tick period as a time.Duration.
func (c *Config) DeltaT() time.Duration {
	return time.Duration(c.DeltaTSeconds * float64(time.Second))
}

// BinarySearchPrecision returns the binary-search precision as a
// time.Duration.
func (c *Config) BinarySearchPrecision() time.Duration {
	return time.Duration(c.BinarySearchPrecisionSeconds * float64(time.Second))
}

// SyncInterval returns the drift-monitoring period as a time.Duration.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalSeconds * float64(time.Second))
}

// FallbackTimeout returns the Fallback-mode timeout as a time.Duration.
func (c *Config) FallbackTimeout() time.Duration {
	return time.Duration(c.FallbackTimeoutS * float64(time.Second))
}

// TwoPointDelta returns the two-point prediction lookback as a
// time.Duration.
func (c *Config) TwoPointDelta() time.Duration {
	return time.Duration(c.TwoPointDeltaMinutes * float64(time.Minute))
}

// Validate makes sure c is sane before the daemon wires it up.
func (c *Config) Validate() error {
	if c.DeltaTSeconds <= 0 {
		return fmt.Errorf("delta_t_s must be positive")
	}
	if c.BlockSizeDeg <= 0 {
		return fmt.Errorf("block_size_deg must be positive")
	}
	if c.MaxCandidateSatellites <= 0 {
		return fmt.Errorf("max_candidate_satellites must be positive")
	}
	if c.MinElevationDeg < 0 || c.MinElevationDeg > 90 {
		return fmt.Errorf("min_elevation_deg must be between 0 and 90")
	}
	if c.TwoPointDeltaMinutes <= 0 {
		return fmt.Errorf("two_point_delta_minutes must be positive")
	}
	if c.SyncIntervalSeconds <= 0 {
		return fmt.Errorf("sync_interval_s must be positive")
	}
	if c.MaxClockDriftMS <= 0 {
		return fmt.Errorf("max_clock_drift_ms must be positive")
	}
	if c.TargetSyncAccuracyMS <= 0 {
		return fmt.Errorf("target_sync_accuracy_ms must be positive")
	}
	if _, ok := bridge.ParseMode(c.Mode); !ok {
		return fmt.Errorf("mode must be one of PaperOnly, EnhancedOnly, Hybrid, Fallback, got %q", c.Mode)
	}
	if c.FallbackTimeoutS <= 0 {
		return fmt.Errorf("fallback_timeout_s must be positive")
	}
	if c.EventStoreMax <= 0 {
		return fmt.Errorf("event_store_max must be positive")
	}
	if c.EventWorkerCount <= 0 {
		return fmt.Errorf("event_worker_count must be positive")
	}
	if c.EventDefaultMaxRetries < 0 {
		return fmt.Errorf("event_default_max_retries must be 0 or positive")
	}
	return nil
}
