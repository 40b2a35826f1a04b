// Package storage opens the configured blob store and provides helpers
// for the small files the sequencing pipeline keeps.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/mkoziy/antigen/sequencing/internal/storage/core"
	"github.com/mkoziy/antigen/sequencing/internal/storage/fs"
	"github.com/mkoziy/antigen/sequencing/internal/storage/memory"
	"github.com/mkoziy/antigen/sequencing/internal/storage/s3"
)

type (
	Store            = core.Store
	Info             = core.Info
	PutOptions       = core.PutOptions
	SignedURLOptions = core.SignedURLOptions
	Driver           = core.Driver
)

var (
	ErrNotFound    = core.ErrNotFound
	ErrExists      = core.ErrExists
	ErrUnsupported = core.ErrUnsupported
)

// Config selects and configures a driver.
type Config struct {
	Driver Driver    `yaml:"driver"`
	Root   string    `yaml:"root"`
	S3     s3.Config `yaml:"s3"`
}

// Validate checks the driver name and its required settings.
func (c Config) Validate() error {
	switch c.Driver {
	case "", core.DriverFilesystem, core.DriverMemory:
		return nil
	case core.DriverS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required for the s3 driver")
		}
		return nil
	default:
		return fmt.Errorf("unknown storage driver %q", c.Driver)
	}
}

// Open returns the store selected by cfg. The filesystem driver is the
// default.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", core.DriverFilesystem:
		return fs.New(cfg.Root)
	case core.DriverS3:
		return s3.New(ctx, cfg.S3)
	case core.DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// PutBytes stores data under key.
func PutBytes(ctx context.Context, s Store, key string, data []byte, contentType string) (Info, error) {
	return s.Put(ctx, key, bytes.NewReader(data), PutOptions{ContentType: contentType})
}

// ReadAll loads a whole blob into memory.
func ReadAll(ctx context.Context, s Store, key string) ([]byte, error) {
	_, rc, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// DeleteAll removes every key, returning the first failure.
func DeleteAll(ctx context.Context, s Store, keys ...string) error {
	var first error
	for _, k := range keys {
		if _, err := s.Delete(ctx, k); err != nil && first == nil {
			first = fmt.Errorf("delete %s: %w", k, err)
		}
	}
	return first
}
