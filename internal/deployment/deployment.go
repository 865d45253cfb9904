// SPDX-License-Identifier: EPL-2.0

// Package deployment describes the fixed shape of one hydrophone deployment:
// when it started, how many recorders it holds, how long it runs and at which
// sample rate.
package deployment

import (
	"errors"
	"fmt"
	"time"

	"github.com/ik5/uwloc/utils"
)

// Defaults used when a value is not provided.
const (
	DefaultSampleRate  = 192000
	DefaultMaxUnits    = 32
	DefaultMaxHours    = 7
	DefaultTileSeconds = 60
)

var (
	ErrInvalidMaxUnits    = errors.New("max units must be positive")
	ErrInvalidMaxHours    = errors.New("max hours must be positive")
	ErrInvalidSampleRate  = errors.New("sample rate must be positive")
	ErrInvalidTileSeconds = errors.New("tile seconds must be positive")
	ErrMissingStartDate   = errors.New("start date is not set")
)

// Config is immutable once the database is created.
type Config struct {
	StartDate   time.Time
	MaxUnits    int64
	MaxHours    int64
	SampleRate  int
	TileSeconds int64
}

// Default returns a Config with every field but StartDate filled in.
func Default() Config {
	return Config{
		MaxUnits:    DefaultMaxUnits,
		MaxHours:    DefaultMaxHours,
		SampleRate:  DefaultSampleRate,
		TileSeconds: DefaultTileSeconds,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.StartDate.IsZero():
		return ErrMissingStartDate
	case c.MaxUnits <= 0:
		return fmt.Errorf("%w: %d", ErrInvalidMaxUnits, c.MaxUnits)
	case c.MaxHours <= 0:
		return fmt.Errorf("%w: %d", ErrInvalidMaxHours, c.MaxHours)
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: %d", ErrInvalidSampleRate, c.SampleRate)
	case c.TileSeconds <= 0:
		return fmt.Errorf("%w: %d", ErrInvalidTileSeconds, c.TileSeconds)
	}

	return nil
}

// CapacitySamples is the number of columns in every device row.
func (c Config) CapacitySamples() int64 {
	return utils.SamplesForHours(c.MaxHours, c.SampleRate)
}

// TileExtent is the time-axis tile size in samples, never larger than the
// row itself.
func (c Config) TileExtent() int64 {
	extent := utils.SamplesForSeconds(c.TileSeconds, c.SampleRate)
	if capacity := c.CapacitySamples(); extent > capacity {
		extent = capacity
	}

	if extent < 1 {
		extent = 1
	}

	return extent
}

// UTC returns a copy with StartDate normalised to UTC.
func (c Config) UTC() Config {
	c.StartDate = c.StartDate.UTC()
	return c
}
