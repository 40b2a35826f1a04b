package imgt

import (
	"fmt"
	"net/url"
	"time"
)

// DefaultBaseURL is the public V-QUEST analysis endpoint.
const DefaultBaseURL = "https://www.imgt.org/IMGT_vquest/analysis"

// DefaultBatchSize is the largest number of sequences V-QUEST accepts per request.
const DefaultBatchSize = 50

// Config selects the alignment endpoint and analysis parameters.
type Config struct {
	BaseURL  string `yaml:"base_url"`
	Species  string `yaml:"species"`
	Receptor string `yaml:"receptor"`
	// BatchSize caps sequences per request. Zero means DefaultBatchSize,
	// a negative value sends everything in one request.
	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`
	// Options are passed through as additional form fields.
	Options map[string]string `yaml:"options"`
}

// DefaultConfig targets alpaca immunoglobulins on the public service.
func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		Species:   "alpaca",
		Receptor:  "IG",
		BatchSize: DefaultBatchSize,
		Timeout:   5 * time.Minute,
	}
}

// WithDefaults fills unset fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = def.BaseURL
	}
	if c.Species == "" {
		c.Species = def.Species
	}
	if c.Receptor == "" {
		c.Receptor = def.Receptor
	}
	if c.BatchSize == 0 {
		c.BatchSize = def.BatchSize
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	return c
}

// Validate checks the endpoint URL.
func (c Config) Validate() error {
	u, err := url.Parse(c.WithDefaults().BaseURL)
	if err != nil {
		return fmt.Errorf("imgt base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("imgt base_url must be http(s), got %q", c.BaseURL)
	}
	return nil
}
