// SPDX-License-Identifier: EPL-2.0

package database

import (
	"github.com/ik5/uwloc/audio"
	"github.com/ik5/uwloc/internal/metrics"
	"go.uber.org/zap"
)

const defaultReadConcurrency = 4

// Option configures an opened Database.
type Option func(*Database)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(db *Database) {
		if log != nil {
			db.log = log.Named("database")
		}
	}
}

// WithMetrics records import outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(db *Database) {
		db.metrics = m
	}
}

// WithReaders replaces the recording readers. The default handles WAV.
func WithReaders(readers *audio.Registry) Option {
	return func(db *Database) {
		if readers != nil {
			db.readers = readers
		}
	}
}

// WithResample lets recordings at a foreign sample rate be resampled instead
// of rejected.
func WithResample(allow bool) Option {
	return func(db *Database) {
		db.resample = allow
	}
}

// WithReadConcurrency bounds the number of rows read at once by ExportTable.
func WithReadConcurrency(n int) Option {
	return func(db *Database) {
		if n > 0 {
			db.readConcurrency = n
		}
	}
}
