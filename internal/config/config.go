// SPDX-License-Identifier: EPL-2.0

// Package config loads uwloc settings from defaults, an optional YAML file
// and UWLOC_* environment variables, in increasing order of precedence.
package config

import (
	"time"

	"github.com/ik5/uwloc/internal/arraystore"
	"github.com/ik5/uwloc/internal/deployment"
	"github.com/ik5/uwloc/internal/logging"
	"go.uber.org/zap"
)

// Config is the complete set of settings.
type Config struct {
	Deployment DeploymentConfig `yaml:"deployment"`
	Import     ImportConfig     `yaml:"import"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    logging.Config   `yaml:"logging"`
	Server     ServerConfig     `yaml:"server"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Watch      WatchConfig      `yaml:"watch"`
}

// DeploymentConfig shapes new databases. Existing databases keep the values
// they were created with.
type DeploymentConfig struct {
	SampleRate  int   `yaml:"sample_rate"`
	MaxUnits    int64 `yaml:"max_units"`
	MaxHours    int64 `yaml:"max_hours"`
	TileSeconds int64 `yaml:"tile_seconds"`
}

// ImportConfig controls how recordings are conformed.
type ImportConfig struct {
	Resample bool `yaml:"resample"`
}

// StorageConfig tunes the SQLite files behind each array.
type StorageConfig struct {
	BusyTimeout  time.Duration `yaml:"busy_timeout"`
	JournalMode  string        `yaml:"journal_mode"`
	MaxOpenConns int           `yaml:"max_open_conns"`
}

// ServerConfig is used by the serve command.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// MaxSpan bounds the range one samples request may read.
	MaxSpan      time.Duration `yaml:"max_span"`
}

// MetricsConfig is used by every command that imports.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// WatchConfig is used by the watch command.
type WatchConfig struct {
	Settle       time.Duration `yaml:"settle"`
	TidyInterval time.Duration `yaml:"tidy_interval"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	storage := arraystore.DefaultConfig()

	return &Config{
		Deployment: DeploymentConfig{
			SampleRate:  deployment.DefaultSampleRate,
			MaxUnits:    deployment.DefaultMaxUnits,
			MaxHours:    deployment.DefaultMaxHours,
			TileSeconds: deployment.DefaultTileSeconds,
		},
		Storage: StorageConfig{
			BusyTimeout:  storage.BusyTimeout,
			JournalMode:  storage.JournalMode,
			MaxOpenConns: storage.MaxOpenConns,
		},
		Logging: logging.DefaultConfig(),
		Server: ServerConfig{
			Addr:         "127.0.0.1:8090",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
			MaxSpan:      10 * time.Minute,
		},
		Watch: WatchConfig{
			Settle:       5 * time.Second,
			TidyInterval: 10 * time.Minute,
		},
	}
}

// DeploymentFor returns the deployment settings for a database starting at
// start.
func (c *Config) DeploymentFor(start time.Time) deployment.Config {
	return deployment.Config{
		StartDate:   start.UTC(),
		MaxUnits:    c.Deployment.MaxUnits,
		MaxHours:    c.Deployment.MaxHours,
		SampleRate:  c.Deployment.SampleRate,
		TileSeconds: c.Deployment.TileSeconds,
	}
}

// ArrayStore returns the storage engine settings.
func (c *Config) ArrayStore(log *zap.Logger) arraystore.Config {
	return arraystore.Config{
		BusyTimeout:  c.Storage.BusyTimeout,
		JournalMode:  c.Storage.JournalMode,
		MaxOpenConns: c.Storage.MaxOpenConns,
		Logger:       log,
	}
}
