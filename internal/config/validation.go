// SPDX-License-Identifier: EPL-2.0

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ik5/uwloc/internal/logging"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	positive := []struct {
		field string
		value int64
	}{
		{"deployment.sample_rate", int64(c.Deployment.SampleRate)},
		{"deployment.max_units", c.Deployment.MaxUnits},
		{"deployment.max_hours", c.Deployment.MaxHours},
		{"deployment.tile_seconds", c.Deployment.TileSeconds},
		{"storage.max_open_conns", int64(c.Storage.MaxOpenConns)},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, &ValidationError{
				Field:   p.field,
				Message: fmt.Sprintf("must be positive, got %d", p.value),
			})
		}
	}

	if c.Storage.BusyTimeout < 0 {
		errs = append(errs, &ValidationError{
			Field:   "storage.busy_timeout",
			Message: fmt.Sprintf("must not be negative, got %s", c.Storage.BusyTimeout),
		})
	}

	switch strings.ToUpper(c.Storage.JournalMode) {
	case "WAL", "DELETE", "TRUNCATE", "PERSIST", "MEMORY", "OFF":
	default:
		errs = append(errs, &ValidationError{
			Field:   "storage.journal_mode",
			Message: fmt.Sprintf("unknown journal mode %q", c.Storage.JournalMode),
		})
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("must be one of debug, info, warn, error, got %q", c.Logging.Level),
		})
	}

	if c.Logging.Format != logging.FormatConsole && c.Logging.Format != logging.FormatJSON {
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("must be console or json, got %q", c.Logging.Format),
		})
	}

	if c.Server.Addr == "" {
		errs = append(errs, &ValidationError{
			Field:   "server.addr",
			Message: "address is required",
		})
	}

	if c.Server.MaxSpan < time.Second {
		errs = append(errs, &ValidationError{
			Field:   "server.max_span",
			Message: fmt.Sprintf("must be at least 1s, got %s", c.Server.MaxSpan),
		})
	}

	if c.Watch.Settle <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "watch.settle",
			Message: fmt.Sprintf("must be positive, got %s", c.Watch.Settle),
		})
	}

	if c.Watch.TidyInterval <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "watch.tidy_interval",
			Message: fmt.Sprintf("must be positive, got %s", c.Watch.TidyInterval),
		})
	}

	return errs
}
