package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkoziy/antigen/sequencing/internal/storage/core"
)

func TestOpenDrivers(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{Root: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, core.DriverFilesystem, s.Driver())

	s, err = Open(ctx, Config{Driver: core.DriverMemory})
	require.NoError(t, err)
	assert.Equal(t, core.DriverMemory, s.Driver())

	_, err = Open(ctx, Config{Driver: "tape"})
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{}.Validate())
	assert.Error(t, Config{Driver: core.DriverS3}.Validate())
	assert.Error(t, Config{Driver: "tape"}.Validate())
}

func TestHelpers(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Config{Driver: core.DriverMemory})
	require.NoError(t, err)

	_, err = PutBytes(ctx, s, "a", []byte("alpha"), "text/plain")
	require.NoError(t, err)
	_, err = PutBytes(ctx, s, "b", []byte("beta"), "")
	require.NoError(t, err)

	b, err := ReadAll(ctx, s, "a")
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(b))

	_, err = ReadAll(ctx, s, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, DeleteAll(ctx, s, "a", "b", "missing"))
	list, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, list)
}
