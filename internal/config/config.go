// Package config loads the caskdb YAML configuration.
package config

import (
	"fmt"
	"os"
	"slices"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/0xRadioAc7iv/caskdb/core"
	"github.com/0xRadioAc7iv/caskdb/internal/keydir"
)

// Config is the complete caskdb configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// StorageConfig describes the datastore directory and engine options.
type StorageConfig struct {
	DataDir           string `yaml:"data_dir"`
	CreateDir         bool   `yaml:"create_dir"`
	MaxDatafileSize   int64  `yaml:"max_datafile_size"` // bytes, 0 disables rotation
	Keydir            string `yaml:"keydir"`
	ValueCacheEntries int    `yaml:"value_cache_entries"`
	LockDirectory     bool   `yaml:"lock_directory"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

const (
	DefaultDataDir = "./data"
	DefaultLevel   = "info"
	DefaultFormat  = "console"
)

var (
	levels  = []string{"debug", "info", "warn", "error"}
	formats = []string{"console", "json"}
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir:           DefaultDataDir,
			CreateDir:         true,
			MaxDatafileSize:   core.DefaultMaxDatafileSize,
			Keydir:            keydir.KindMap,
			ValueCacheEntries: core.DefaultValueCacheEntries,
			LockDirectory:     true,
		},
		Logging: LoggingConfig{
			Level:  DefaultLevel,
			Format: DefaultFormat,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// LoadConfig loads configuration from a file. Keys missing from the file keep
// their Default values.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults fills in string settings left blank in the file.
func setDefaults(cfg *Config) {
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = DefaultDataDir
	}
	if cfg.Storage.Keydir == "" {
		cfg.Storage.Keydir = keydir.KindMap
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultFormat
	}
}

// Validate checks the configuration for values the datastore cannot use.
func (c *Config) Validate() error {
	var errs []error

	if c.Storage.MaxDatafileSize < 0 {
		errs = append(errs, fmt.Errorf("storage.max_datafile_size must not be negative, got %d", c.Storage.MaxDatafileSize))
	}
	if size := c.Storage.MaxDatafileSize; size > 0 && size < core.MinimumDatafileSizeMB*core.OneMegabyte {
		errs = append(errs, fmt.Errorf("storage.max_datafile_size must be 0 or at least %d MB, got %d", core.MinimumDatafileSizeMB, size))
	}
	if c.Storage.MaxDatafileSize > core.MaximumDatafileSizeMB*core.OneMegabyte {
		errs = append(errs, fmt.Errorf("storage.max_datafile_size must be at most %d MB", core.MaximumDatafileSizeMB))
	}
	if c.Storage.ValueCacheEntries < 0 {
		errs = append(errs, fmt.Errorf("storage.value_cache_entries must not be negative, got %d", c.Storage.ValueCacheEntries))
	}
	if !slices.Contains(keydir.Kinds, c.Storage.Keydir) {
		errs = append(errs, fmt.Errorf("storage.keydir must be one of %v, got %q", keydir.Kinds, c.Storage.Keydir))
	}
	if !slices.Contains(levels, c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level must be one of %v, got %q", levels, c.Logging.Level))
	}
	if !slices.Contains(formats, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format must be one of %v, got %q", formats, c.Logging.Format))
	}

	return multierr.Combine(errs...)
}

// Options translates the storage section into datastore options.
func (c *Config) Options() []core.Option {
	opts := []core.Option{
		core.WithKeydir(c.Storage.Keydir),
		core.WithMaxDatafileSize(c.Storage.MaxDatafileSize),
		core.WithValueCache(c.Storage.ValueCacheEntries),
	}
	if !c.Storage.LockDirectory {
		opts = append(opts, core.WithoutDirectoryLock())
	}
	return opts
}
