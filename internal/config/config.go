// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Keep fields unexported where possible and use functional options.
// - Provide New(...Option) initializer to build a Config with defaults.
// - All future functions must accept context.Context as the first parameter.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"context"
	"runtime"
)

// Lineage store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// BatchQueueSize bounds the in-memory batch queue.
	BatchQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of pipeline workers.
	WorkerCount int `koanf:"worker_count"`

	// GuardSize sets the size of the submission dedupe cache.
	GuardSize int `koanf:"guard_size"`

	// RetryBudget bounds scoring retries on transient model failures.
	RetryBudget int `koanf:"retry_budget"`

	// RetryBackoffMS sets the linear backoff base between scoring retries.
	RetryBackoffMS int `koanf:"retry_backoff_ms"`

	// ThresholdLow and ThresholdHigh partition scores into segments.
	// A score below ThresholdLow is low risk; a score at or above
	// ThresholdHigh is high risk; everything between is medium.
	ThresholdLow  float64 `koanf:"threshold_low"`
	ThresholdHigh float64 `koanf:"threshold_high"`

	// FeatureSet selects the feature definition version to derive.
	FeatureSet string `koanf:"feature_set"`

	// ModelVersion labels score results for lineage.
	ModelVersion string `koanf:"model_version"`

	// LineageDriver selects the lineage store backend: memory or postgres.
	LineageDriver string `koanf:"lineage_driver"`

	// PostgresDSN configures the postgres lineage store connection.
	PostgresDSN string `koanf:"postgres_dsn"`

	// RefDataPath points at a YAML reference data snapshot. Empty means
	// an empty in-memory snapshot.
	RefDataPath string `koanf:"refdata_path"`
}

// New creates a Config using provided options. Context is accepted first to
// satisfy the project-wide convention; loading from env/files happens in
// Load.
func New(_ context.Context) *Config {
	c := &Config{
		LogLevel:       "info",
		Addr:           ":9080",
		BatchQueueSize: 1024,
		WorkerCount:    runtime.NumCPU() * 2,
		GuardSize:      100_000,
		RetryBudget:    3,
		RetryBackoffMS: 100,
		ThresholdLow:   0.05,
		ThresholdHigh:  0.20,
		FeatureSet:     "fs-1",
		ModelVersion:   "logistic-1",
		LineageDriver:  DriverMemory,
	}
	return c
}
