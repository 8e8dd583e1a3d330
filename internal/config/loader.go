package config

import (
	"context"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces environment overrides, e.g. RISKPIPE_WORKER_COUNT=8.
const envPrefix = "RISKPIPE_"

// envConfigPath names the environment variable holding an optional YAML
// config file path.
const envConfigPath = "RISKPIPE_CONFIG"

// Load builds a Config from defaults, then an optional YAML file named by
// RISKPIPE_CONFIG, then RISKPIPE_-prefixed environment variables. Later
// sources win.
func Load(ctx context.Context) (*Config, error) {
	cfg := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv(envConfigPath); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, WrapLoad("read config file", err)
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil)
	if err != nil {
		return nil, WrapLoad("read environment", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, WrapLoad("unmarshal config", err)
	}

	if err := cfg.Validate(ctx); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that a Config is internally consistent.
func (c *Config) Validate(_ context.Context) error {
	switch {
	case c.BatchQueueSize <= 0:
		return NewInvalid("queue_size must be positive")
	case c.WorkerCount <= 0:
		return NewInvalid("worker_count must be positive")
	case c.RetryBudget < 0:
		return NewInvalid("retry_budget must be non-negative")
	case c.RetryBackoffMS < 0:
		return NewInvalid("retry_backoff_ms must be non-negative")
	case c.ThresholdLow < 0 || c.ThresholdHigh > 1:
		return NewInvalid("thresholds must lie within [0, 1]")
	case c.ThresholdLow >= c.ThresholdHigh:
		return NewInvalid("threshold_low must be below threshold_high")
	case c.FeatureSet == "":
		return NewInvalid("feature_set must be set")
	}
	switch c.LineageDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return NewInvalid("postgres_dsn required for postgres lineage driver")
		}
	default:
		return NewInvalid("unknown lineage_driver: " + c.LineageDriver)
	}
	return nil
}
