// SPDX-License-Identifier: EPL-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment key, e.g.
// UWLOC_DEPLOYMENT_SAMPLE_RATE.
const EnvPrefix = "UWLOC"

// DefaultFile is read from the working directory when no file is given.
const DefaultFile = "uwloc.yaml"

// Load reads the configuration. An explicit path must exist; without one,
// DefaultFile is used when present.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	v.SetConfigFile(path)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)

		if !missing || explicit {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := unmarshalConfig(v)

	if errs := cfg.Validate(); len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, err := range errs {
			msgs = append(msgs, err.Error())
		}

		return nil, fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	defaults := DefaultConfig()

	// Deployment defaults
	v.SetDefault("deployment.sample_rate", defaults.Deployment.SampleRate)
	v.SetDefault("deployment.max_units", defaults.Deployment.MaxUnits)
	v.SetDefault("deployment.max_hours", defaults.Deployment.MaxHours)
	v.SetDefault("deployment.tile_seconds", defaults.Deployment.TileSeconds)

	v.SetDefault("import.resample", defaults.Import.Resample)

	// Storage defaults
	v.SetDefault("storage.busy_timeout", defaults.Storage.BusyTimeout)
	v.SetDefault("storage.journal_mode", defaults.Storage.JournalMode)
	v.SetDefault("storage.max_open_conns", defaults.Storage.MaxOpenConns)

	// Logging defaults
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("logging.file", defaults.Logging.File)
	v.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", defaults.Logging.MaxAgeDays)
	v.SetDefault("logging.compress", defaults.Logging.Compress)

	v.SetDefault("server.addr", defaults.Server.Addr)
	v.SetDefault("server.read_timeout", defaults.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", defaults.Server.WriteTimeout)
	v.SetDefault("server.max_span", defaults.Server.MaxSpan)

	v.SetDefault("metrics.textfile", defaults.Metrics.Textfile)

	v.SetDefault("watch.settle", defaults.Watch.Settle)
	v.SetDefault("watch.tidy_interval", defaults.Watch.TidyInterval)
}

func unmarshalConfig(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Deployment.SampleRate = v.GetInt("deployment.sample_rate")
	cfg.Deployment.MaxUnits = v.GetInt64("deployment.max_units")
	cfg.Deployment.MaxHours = v.GetInt64("deployment.max_hours")
	cfg.Deployment.TileSeconds = v.GetInt64("deployment.tile_seconds")

	cfg.Import.Resample = v.GetBool("import.resample")

	cfg.Storage.BusyTimeout = v.GetDuration("storage.busy_timeout")
	cfg.Storage.JournalMode = v.GetString("storage.journal_mode")
	cfg.Storage.MaxOpenConns = v.GetInt("storage.max_open_conns")

	cfg.Logging.Level = strings.ToLower(v.GetString("logging.level"))
	cfg.Logging.Format = strings.ToLower(v.GetString("logging.format"))
	cfg.Logging.File = v.GetString("logging.file")
	cfg.Logging.MaxSizeMB = v.GetInt("logging.max_size_mb")
	cfg.Logging.MaxBackups = v.GetInt("logging.max_backups")
	cfg.Logging.MaxAgeDays = v.GetInt("logging.max_age_days")
	cfg.Logging.Compress = v.GetBool("logging.compress")

	cfg.Server.Addr = v.GetString("server.addr")
	cfg.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	cfg.Server.WriteTimeout = v.GetDuration("server.write_timeout")
	cfg.Server.MaxSpan = v.GetDuration("server.max_span")

	cfg.Metrics.Textfile = v.GetString("metrics.textfile")

	cfg.Watch.Settle = v.GetDuration("watch.settle")
	cfg.Watch.TidyInterval = v.GetDuration("watch.tidy_interval")

	return cfg
}
