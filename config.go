package vkez

import (
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"

	"github.com/celer/vkez/memory"
)

// Config tunes a Device. The zero value is not valid, start from
// DefaultConfig.
type Config struct {
	Allocator     AllocatorConfig     `toml:"allocator"`
	Descriptors   DescriptorConfig    `toml:"descriptors"`
	PipelineCache PipelineCacheConfig `toml:"pipeline_cache"`
	Swapchain     SwapchainConfig     `toml:"swapchain"`
	Retirement    RetirementConfig    `toml:"retirement"`
	Log           LogConfig           `toml:"log"`
}

type AllocatorConfig struct {
	BlockSize       uint64 `toml:"block_size"`
	MinAlignment    uint64 `toml:"min_alignment"`
	MaxBlockRetries int    `toml:"max_block_retries"`
}

type DescriptorConfig struct {
	SetsPerPool uint32 `toml:"sets_per_pool"`
}

type PipelineCacheConfig struct {
	// Path of the persisted pipeline cache. Empty disables persistence.
	Path string `toml:"path"`
}

type SwapchainConfig struct {
	VSync bool `toml:"vsync"`
	// ImageCount of 0 requests one more than the surface minimum.
	ImageCount uint32 `toml:"image_count"`
}

type RetirementConfig struct {
	// DrainBatch bounds how many retired objects one drain examines.
	DrainBatch int `toml:"drain_batch"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		Allocator: AllocatorConfig{
			BlockSize:       memory.DefaultBlockSize,
			MinAlignment:    memory.DefaultMinAlignment,
			MaxBlockRetries: memory.DefaultMaxRetries,
		},
		Descriptors: DescriptorConfig{SetsPerPool: 64},
		Swapchain:   SwapchainConfig{VSync: true},
		Retirement:  RetirementConfig{DrainBatch: 256},
		Log:         LogConfig{Level: "info"},
	}
}

// ParseConfig decodes TOML over the defaults and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parsing config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses the TOML file at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading config %s", path)
	}
	return ParseConfig(data)
}

func isPow2(v uint64) bool { return v != 0 && v&(v-1) == 0 }

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.Allocator.BlockSize < 1<<16:
		return errors.Wrapf(ErrValidation, "allocator.block_size %d is below 64KiB", c.Allocator.BlockSize)
	case !isPow2(c.Allocator.MinAlignment):
		return errors.Wrapf(ErrValidation, "allocator.min_alignment %d is not a power of two", c.Allocator.MinAlignment)
	case c.Allocator.MaxBlockRetries < 0:
		return errors.Wrapf(ErrValidation, "allocator.max_block_retries %d is negative", c.Allocator.MaxBlockRetries)
	case c.Descriptors.SetsPerPool == 0:
		return errors.Wrap(ErrValidation, "descriptors.sets_per_pool must be positive")
	case c.Retirement.DrainBatch <= 0:
		return errors.Wrap(ErrValidation, "retirement.drain_batch must be positive")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// LogLevel returns the parsed Log.Level, Info if invalid.
func (c *Config) LogLevel() slog.Level {
	l, err := ParseLevel(c.Log.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

func (c *Config) allocatorOptions() memory.Options {
	return memory.Options{
		BlockSize:    c.Allocator.BlockSize,
		MinAlignment: c.Allocator.MinAlignment,
		MaxRetries:   c.Allocator.MaxBlockRetries,
		Logger:       Logger(),
	}
}
