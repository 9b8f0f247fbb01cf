package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

// Override durability backends. Memory keeps operator annotations for the
// process lifetime only; redis and postgres survive restarts.
const (
	OverrideBackendMemory   = "memory"
	OverrideBackendRedis    = "redis"
	OverrideBackendPostgres = "postgres"
)

type Config struct {
	UpstreamBaseURL    string `env:"UPSTREAM_BASE_URL,required=true"`
	UpstreamTimeoutSec int    `env:"UPSTREAM_TIMEOUT_SEC,default=30"`

	// BatchesDialect declares which query-parameter dialect the upstream's
	// batches route expects: "daycount" or "daterange".
	BatchesDialect string `env:"UPSTREAM_BATCHES_DIALECT,default=daterange"`

	OverrideBackend          string `env:"OVERRIDE_BACKEND,default=memory"`
	ClearOverridesOnShutdown bool   `env:"OVERRIDE_CLEAR_ON_SHUTDOWN,default=false"`
	DatabaseDSN              string `env:"DATABASE_DSN"`
	RedisURL                 string `env:"REDIS_URL"`

	APIPort         int    `env:"API_PORT,default=8080"`
	LogLevel        string `env:"LOG_LEVEL,default=info"`
	LogFormat       string `env:"LOG_FORMAT,default=json"`
	DefaultPageSize int    `env:"DEFAULT_PAGE_SIZE,default=50"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.BatchesDialect {
	case "daycount", "daterange":
	default:
		return fmt.Errorf("invalid UPSTREAM_BATCHES_DIALECT %q", c.BatchesDialect)
	}

	switch c.OverrideBackend {
	case OverrideBackendMemory:
	case OverrideBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when OVERRIDE_BACKEND=redis")
		}
	case OverrideBackendPostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_DSN is required when OVERRIDE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("invalid OVERRIDE_BACKEND %q", c.OverrideBackend)
	}

	if c.UpstreamTimeoutSec <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT_SEC must be positive")
	}
	if c.DefaultPageSize <= 0 {
		return fmt.Errorf("DEFAULT_PAGE_SIZE must be positive")
	}

	return nil
}
