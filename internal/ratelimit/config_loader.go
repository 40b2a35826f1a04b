package ratelimit

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ServiceConfigs maps an external service name to its limiter settings.
type ServiceConfigs map[string]Config

// LoadServiceConfigs decodes a YAML document with a top-level rate_limits map.
func LoadServiceConfigs(data []byte) (ServiceConfigs, error) {
	var doc struct {
		RateLimits ServiceConfigs `yaml:"rate_limits"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if err := doc.RateLimits.Validate(); err != nil {
		return nil, err
	}
	return doc.RateLimits, nil
}

// Validate checks every entry.
func (s ServiceConfigs) Validate() error {
	for name, cfg := range s {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("rate_limits.%s: %w", name, err)
		}
	}
	return nil
}

// For returns the settings for service, or fallback when none are configured.
func (s ServiceConfigs) For(service string, fallback Config) Config {
	if cfg, ok := s[service]; ok {
		return applyDefaults(cfg)
	}
	return applyDefaults(fallback)
}
