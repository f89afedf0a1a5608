// Package config provides the runtime's viper-backed configuration and
// zerolog logger construction.
package config

import (
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config wraps a *viper.Viper with the defaults the generator's components
// need. Values can be overridden by a config file (LoadFromFile) or by the
// environment, following viper's normal precedence.
type Config struct {
	v *viper.Viper
}

// New returns a Config populated with sensible defaults for every component.
func New() *Config {
	v := viper.New()

	// Sampler buffer sizing mirrors original_source/src/Generator.cpp's
	// MAX_BUFFER_SIZE / MAX_BUFFER_SAFETY_MARGIN constants.
	v.SetDefault("sampler.buffer_bytes", 100_000)
	v.SetDefault("sampler.buffer_safety_margin", 500)
	v.SetDefault("sampler.min_blocks_for_parallelism", 100)
	maxWorkers := runtime.NumCPU() - 1
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	v.SetDefault("sampler.max_workers", maxWorkers)
	v.SetDefault("sampler.max_edge_type_length", 64)

	v.SetDefault("ingest.max_line_bytes", 1<<20)

	v.SetDefault("logging.level", "info")

	v.AutomaticEnv()
	return &Config{v: v}
}

// LoadFromFile merges configuration from a file (JSON/YAML/TOML, per viper's
// extension sniffing) on top of the defaults.
func (c *Config) LoadFromFile(path string) error {
	c.v.SetConfigFile(path)
	return c.v.MergeInConfig()
}

func (c *Config) SamplerBufferBytes() int          { return c.v.GetInt("sampler.buffer_bytes") }
func (c *Config) SamplerBufferSafetyMargin() int   { return c.v.GetInt("sampler.buffer_safety_margin") }
func (c *Config) SamplerMinBlocksForParallel() int { return c.v.GetInt("sampler.min_blocks_for_parallelism") }
func (c *Config) SamplerMaxWorkers() int           { return c.v.GetInt("sampler.max_workers") }
func (c *Config) SamplerMaxEdgeTypeLength() int    { return c.v.GetInt("sampler.max_edge_type_length") }
func (c *Config) IngestMaxLineBytes() int          { return c.v.GetInt("ingest.max_line_bytes") }
func (c *Config) LogLevel() string                 { return c.v.GetString("logging.level") }

// Set allows programmatic overrides, mainly useful in tests.
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}

// Logger builds a zerolog.Logger from the configured level, writing to
// stderr with a console writer the way graph-clustering-backend/src2/main.go
// wires up its logger.
func (c *Config) Logger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()
}
