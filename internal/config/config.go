// Package config loads the YAML settings of the antigen tooling.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mkoziy/antigen/sequencing/internal/blast"
	"github.com/mkoziy/antigen/sequencing/internal/database"
	"github.com/mkoziy/antigen/sequencing/internal/ratelimit"
	"github.com/mkoziy/antigen/sequencing/internal/search"
	"github.com/mkoziy/antigen/sequencing/internal/sources/imgt"
	"github.com/mkoziy/antigen/sequencing/internal/storage"
	"github.com/mkoziy/antigen/sequencing/internal/storage/core"
)

// ServiceIMGT is the rate_limits key of the alignment service.
const ServiceIMGT = "imgt"

// Config holds every setting of the CLI and the HTTP server.
type Config struct {
	Database   database.Config          `yaml:"database"`
	Storage    storage.Config           `yaml:"storage"`
	IMGT       imgt.Config              `yaml:"imgt"`
	Blast      blast.Config             `yaml:"blast"`
	Search     search.Thresholds        `yaml:"search"`
	RateLimits ratelimit.ServiceConfigs `yaml:"rate_limits"`
	Logging    LoggingConfig            `yaml:"logging"`
	HTTP       HTTPConfig               `yaml:"http"`
	// CorpusConcurrency bounds parallel AIRR table reads.
	CorpusConcurrency int `yaml:"corpus_concurrency"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the settings used when no file is given: a local SQLite
// database and filesystem store next to the working directory.
func Default() *Config {
	return &Config{
		Database: database.Config{Driver: database.DriverSQLite, DSN: "file:antigen.db"},
		Storage:  storage.Config{Driver: core.DriverFilesystem, Root: "./blobdata"},
		IMGT:     imgt.DefaultConfig(),
		Blast:    blast.DefaultConfig(),
		Search:   search.DefaultThresholds(),
		RateLimits: ratelimit.ServiceConfigs{
			ServiceIMGT: ratelimit.DefaultConfig(),
		},
		Logging: LoggingConfig{Level: "info"},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			MaxUploadBytes:  256 << 20,
			ReadTimeout:     5 * time.Minute,
			WriteTimeout:    10 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
		},
		CorpusConcurrency: 8,
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path yields the defaults with overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnvOverrides(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	c.IMGT = c.IMGT.WithDefaults()
	c.Blast = c.Blast.WithDefaults()
	c.Search = c.Search.WithDefaults()
	def := Default()
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = def.HTTP.Addr
	}
	if c.HTTP.MaxUploadBytes <= 0 {
		c.HTTP.MaxUploadBytes = def.HTTP.MaxUploadBytes
	}
	if c.HTTP.ReadTimeout <= 0 {
		c.HTTP.ReadTimeout = def.HTTP.ReadTimeout
	}
	if c.HTTP.WriteTimeout <= 0 {
		c.HTTP.WriteTimeout = def.HTTP.WriteTimeout
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = def.HTTP.ShutdownTimeout
	}
	if c.CorpusConcurrency <= 0 {
		c.CorpusConcurrency = def.CorpusConcurrency
	}
}

// applyEnvOverrides replaces file settings with ANTIGEN_* variables.
func (c *Config) applyEnvOverrides(lookup func(string) (string, bool)) error {
	strs := []struct {
		name string
		dst  *string
	}{
		{"ANTIGEN_DATABASE_DRIVER", &c.Database.Driver},
		{"ANTIGEN_DATABASE_DSN", &c.Database.DSN},
		{"ANTIGEN_STORAGE_FS_ROOT", &c.Storage.Root},
		{"ANTIGEN_S3_BUCKET", &c.Storage.S3.Bucket},
		{"ANTIGEN_S3_REGION", &c.Storage.S3.Region},
		{"ANTIGEN_S3_ENDPOINT", &c.Storage.S3.Endpoint},
		{"ANTIGEN_IMGT_URL", &c.IMGT.BaseURL},
		{"ANTIGEN_HTTP_ADDR", &c.HTTP.Addr},
		{"ANTIGEN_LOG_LEVEL", &c.Logging.Level},
	}
	for _, s := range strs {
		if v, ok := lookup(s.name); ok && v != "" {
			*s.dst = v
		}
	}
	if v, ok := lookup("ANTIGEN_STORAGE_DRIVER"); ok && v != "" {
		c.Storage.Driver = storage.Driver(v)
	}
	if v, ok := lookup("ANTIGEN_S3_PATH_STYLE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ANTIGEN_S3_PATH_STYLE: %w", err)
		}
		c.Storage.S3.PathStyle = b
	}
	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}
	if err := c.RateLimits.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	if c.Search.MinAlignPerc > 100 {
		errs = append(errs, fmt.Errorf("search.min_align_perc must not exceed 100, got %g", c.Search.MinAlignPerc))
	}
	return errors.Join(errs...)
}

// IMGTRateLimit returns the limiter settings of the alignment service.
func (c *Config) IMGTRateLimit() ratelimit.Config {
	return c.RateLimits.For(ServiceIMGT, ratelimit.DefaultConfig())
}
