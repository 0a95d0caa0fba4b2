package vkez

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer/vkez/driver"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, uint32(64), cfg.Descriptors.SetsPerPool)
	assert.True(t, cfg.Swapchain.VSync)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel())
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
[allocator]
block_size = 1048576
min_alignment = 256

[descriptors]
sets_per_pool = 8

[pipeline_cache]
path = "/var/cache/vkez/pipelines.bin"

[swapchain]
vsync = false
image_count = 2

[log]
level = "debug"
`))
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<20), cfg.Allocator.BlockSize)
	assert.Equal(t, uint64(256), cfg.Allocator.MinAlignment)
	assert.Equal(t, DefaultConfig().Allocator.MaxBlockRetries, cfg.Allocator.MaxBlockRetries, "unset keys keep defaults")
	assert.Equal(t, uint32(8), cfg.Descriptors.SetsPerPool)
	assert.Equal(t, "/var/cache/vkez/pipelines.bin", cfg.PipelineCache.Path)
	assert.False(t, cfg.Swapchain.VSync)
	assert.Equal(t, uint32(2), cfg.Swapchain.ImageCount)
	assert.Equal(t, 256, cfg.Retirement.DrainBatch)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel())
}

func TestParseConfigInvalid(t *testing.T) {
	for name, doc := range map[string]string{
		"small block":       "[allocator]\nblock_size = 4096",
		"odd alignment":     "[allocator]\nmin_alignment = 24",
		"negative retries":  "[allocator]\nmax_block_retries = -1",
		"no sets per pool":  "[descriptors]\nsets_per_pool = 0",
		"no drain batch":    "[retirement]\ndrain_batch = 0",
		"unknown log level": "[log]\nlevel = \"loud\"",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(doc))
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	_, err := ParseConfig([]byte("[allocator\n"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrValidation)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vkez.toml")
	require.NoError(t, os.WriteFile(path, []byte("[swapchain]\nimage_count = 4\n"), 0o644))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), cfg.Swapchain.ImageCount)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { SetLogger(nil) })

	newTestDevice(t)
	assert.Contains(t, buf.String(), "device created")

	SetLogger(nil)
	assert.False(t, Logger().Enabled(t.Context(), slog.LevelError))

	l, err := ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, l)
	_, err = ParseLevel("verbose")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestResultClassification(t *testing.T) {
	assert.Equal(t, driver.Success, ResultOf(nil))
	assert.Equal(t, ErrOutOfDate, ResultOf(errors.Wrap(ErrOutOfDate, "presenting")))
	assert.Equal(t, ErrValidation, ResultOf(errors.New("plain")))

	assert.True(t, IsPresentationError(errors.Wrap(ErrOutOfDate, "x")))
	assert.True(t, IsPresentationError(ErrSurfaceLost))
	assert.False(t, IsPresentationError(ErrDeviceLost))

	for _, err := range []error{ErrValidation, ErrInvalidBinding, ErrInvalidState, ErrInvalidHandle,
		ErrShaderCompileFailed, ErrNoEntryPoint, ErrInvalidShaderModule} {
		assert.True(t, IsValidationError(errors.Wrap(err, "wrapped")), "%v", err)
	}
	assert.False(t, IsValidationError(ErrOutOfDeviceMemory))
	assert.False(t, IsValidationError(nil))

	assert.True(t, IsFatal(errors.Wrap(ErrDeviceLost, "submit")))
	assert.False(t, IsFatal(Timeout))
}
