package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkoziy/antigen/sequencing/internal/database"
	"github.com/mkoziy/antigen/sequencing/internal/ratelimit"
	"github.com/mkoziy/antigen/sequencing/internal/search"
	"github.com/mkoziy/antigen/sequencing/internal/sources/imgt"
	"github.com/mkoziy/antigen/sequencing/internal/storage/core"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "antigen.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: postgres
  dsn: postgres://antigen@localhost/antigen
storage:
  driver: s3
  s3:
    bucket: seqres
    region: eu-west-1
imgt:
  batch_size: 20
  timeout: 90s
search:
  min_align_perc: 80
rate_limits:
  imgt:
    strategy: fixed_delay
    fixed_delay: 3s
http:
  addr: 127.0.0.1:9000
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, database.DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, core.DriverS3, cfg.Storage.Driver)
	assert.Equal(t, "seqres", cfg.Storage.S3.Bucket)
	assert.Equal(t, 20, cfg.IMGT.BatchSize)
	assert.Equal(t, 90*time.Second, cfg.IMGT.Timeout)
	assert.Equal(t, imgt.DefaultBaseURL, cfg.IMGT.BaseURL)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
	assert.Equal(t, int64(256<<20), cfg.HTTP.MaxUploadBytes)
	assert.Equal(t, search.Thresholds{MinAlignPerc: 80, MaxEvalue: search.DefaultMaxEvalue}, cfg.Search)

	rl := cfg.IMGTRateLimit()
	assert.Equal(t, ratelimit.StrategyFixedDelay, rl.Strategy)
	assert.Equal(t, 3*time.Second, rl.FixedDelay)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, database.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, core.DriverFilesystem, cfg.Storage.Driver)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, ratelimit.DefaultConfig(), cfg.IMGTRateLimit())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ANTIGEN_DATABASE_DSN", "file:other.db")
	t.Setenv("ANTIGEN_STORAGE_DRIVER", "memory")
	t.Setenv("ANTIGEN_HTTP_ADDR", ":9999")
	t.Setenv("ANTIGEN_S3_PATH_STYLE", "true")

	cfg, err := Load(writeConfig(t, "database:\n  dsn: file:antigen.db\n"))
	require.NoError(t, err)
	assert.Equal(t, "file:other.db", cfg.Database.DSN)
	assert.Equal(t, core.DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.True(t, cfg.Storage.S3.PathStyle)
}

func TestEnvOverrideRejectsBadBool(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnvOverrides(func(k string) (string, bool) {
		if k == "ANTIGEN_S3_PATH_STYLE" {
			return "sometimes", true
		}
		return "", false
	})
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		substr string
	}{
		{"unknown database driver", "database:\n  driver: mysql\n", "unknown database driver"},
		{"s3 without bucket", "storage:\n  driver: s3\n", "bucket is required"},
		{"bad rate limit", "rate_limits:\n  imgt:\n    strategy: leaky\n", "rate_limits.imgt"},
		{"bad level", "logging:\n  level: loud\n", "logging.level"},
		{"percent above 100", "search:\n  min_align_perc: 120\n", "min_align_perc"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.substr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
