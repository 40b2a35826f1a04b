package ratelimit

import (
	"fmt"
	"time"
)

// Config holds limiter settings for one external service.
type Config struct {
	Strategy       Strategy      `yaml:"strategy" json:"strategy"`
	RequestsPerSec float64       `yaml:"requests_per_second" json:"requests_per_second"`
	Burst          int           `yaml:"burst" json:"burst"`
	FixedDelay     time.Duration `yaml:"fixed_delay" json:"fixed_delay"`
}

// DefaultConfig returns a conservative token bucket.
func DefaultConfig() Config {
	return Config{
		Strategy:       StrategyTokenBucket,
		RequestsPerSec: 1.0,
		Burst:          1,
		FixedDelay:     2 * time.Second,
	}
}

// Validate rejects unknown strategies and negative values.
func (c Config) Validate() error {
	switch c.Strategy {
	case "", StrategyTokenBucket, StrategyFixedWindow, StrategyFixedDelay, StrategyNone:
	default:
		return fmt.Errorf("unknown rate limit strategy %q", c.Strategy)
	}
	if c.RequestsPerSec < 0 || c.Burst < 0 || c.FixedDelay < 0 {
		return fmt.Errorf("rate limit values must not be negative")
	}
	return nil
}

func applyDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Strategy == "" {
		cfg.Strategy = def.Strategy
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = def.RequestsPerSec
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.FixedDelay <= 0 {
		cfg.FixedDelay = def.FixedDelay
	}
	return cfg
}
