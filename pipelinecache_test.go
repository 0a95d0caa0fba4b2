package vkez

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer/vkez/driver/drivertest"
)

func cacheConfig(t *testing.T) (Config, string) {
	cfg := DefaultConfig()
	cfg.PipelineCache.Path = filepath.Join(t.TempDir(), "pipelines.bin")
	return cfg, cfg.PipelineCache.Path
}

func TestPipelineCacheLoad(t *testing.T) {
	cfg, path := cacheConfig(t)
	props := drivertest.New().Properties()
	blob := drivertest.CacheHeader(props, []byte("warm"))
	require.NoError(t, os.WriteFile(path, blob, 0o644))

	_, drv := newTestDeviceConfig(t, cfg)
	assert.Equal(t, blob, drv.InitialCache)
}

func TestPipelineCacheDiscardsForeignData(t *testing.T) {
	cfg, path := cacheConfig(t)
	props := *drivertest.New().Properties()
	props.DeviceID++
	require.NoError(t, os.WriteFile(path, drivertest.CacheHeader(&props, []byte("cold")), 0o644))

	_, drv := newTestDeviceConfig(t, cfg)
	assert.Nil(t, drv.InitialCache)
}

func TestPipelineCacheMissingFile(t *testing.T) {
	cfg, _ := cacheConfig(t)
	_, drv := newTestDeviceConfig(t, cfg)
	assert.Nil(t, drv.InitialCache)
}

func TestPipelineCacheSave(t *testing.T) {
	cfg, path := cacheConfig(t)
	d, drv := newTestDeviceConfig(t, cfg)

	require.NoError(t, d.SavePipelineCache())
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, drv.CacheBlob, got)

	drv.CacheBlob = drivertest.CacheHeader(drv.Properties(), []byte("more pipelines"))
	require.NoError(t, d.SavePipelineCache())
	got, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, drv.CacheBlob, got)
}

func TestPipelineCacheDisabled(t *testing.T) {
	d, _ := newTestDevice(t)
	assert.NoError(t, d.SavePipelineCache())
}

func TestValidCacheHeader(t *testing.T) {
	props := drivertest.New().Properties()
	blob := drivertest.CacheHeader(props, nil)
	assert.True(t, validCacheHeader(blob, props))
	assert.False(t, validCacheHeader(blob[:31], props))

	other := *props
	other.VendorID++
	assert.False(t, validCacheHeader(blob, &other))

	other = *props
	other.PipelineCacheUUID[0] ^= 0xff
	assert.False(t, validCacheHeader(blob, &other))

	bad := append([]byte(nil), blob...)
	bad[4] = 2
	assert.False(t, validCacheHeader(bad, props))
}
