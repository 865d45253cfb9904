// SPDX-License-Identifier: EPL-2.0

package deployment

import (
	"errors"
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	start := time.Date(2023, 5, 17, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"valid", func(*Config) {}, nil},
		{"no start date", func(c *Config) { c.StartDate = time.Time{} }, ErrMissingStartDate},
		{"zero units", func(c *Config) { c.MaxUnits = 0 }, ErrInvalidMaxUnits},
		{"negative hours", func(c *Config) { c.MaxHours = -1 }, ErrInvalidMaxHours},
		{"zero rate", func(c *Config) { c.SampleRate = 0 }, ErrInvalidSampleRate},
		{"zero tile", func(c *Config) { c.TileSeconds = 0 }, ErrInvalidTileSeconds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			cfg.StartDate = start
			tt.modify(&cfg)

			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestConfig_CapacityAndTiles(t *testing.T) {
	t.Parallel()

	cfg := Config{MaxHours: 1, SampleRate: 100, TileSeconds: 60}
	if got := cfg.CapacitySamples(); got != 360000 {
		t.Errorf("CapacitySamples() = %d, want 360000", got)
	}
	if got := cfg.TileExtent(); got != 6000 {
		t.Errorf("TileExtent() = %d, want 6000", got)
	}

	cfg.TileSeconds = 7200
	if got := cfg.TileExtent(); got != 360000 {
		t.Errorf("TileExtent() clamped = %d, want 360000", got)
	}
}

func TestConfig_Default(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if cfg.SampleRate != 192000 || cfg.MaxUnits != 32 || cfg.MaxHours != 7 || cfg.TileSeconds != 60 {
		t.Errorf("Default() = %+v", cfg)
	}
	if got := cfg.CapacitySamples(); got != 7*3600*192000 {
		t.Errorf("CapacitySamples() = %d", got)
	}
}
