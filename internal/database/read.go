// SPDX-License-Identifier: EPL-2.0

package database

import (
	"cmp"
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"time"

	"github.com/ik5/uwloc/internal/arraystore"
	"github.com/ik5/uwloc/internal/registry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TableRow is one device with its whole sample row.
type TableRow struct {
	DeviceID  string
	RowID     int64
	FirstSeen time.Time
	Samples   []int16
}

// Info summarises a database.
type Info struct {
	Path            string                   `json:"path" yaml:"path"`
	StartDate       time.Time                `json:"start_date" yaml:"start_date"`
	SampleRate      int                      `json:"sample_rate" yaml:"sample_rate"`
	MaxUnits        int64                    `json:"max_units" yaml:"max_units"`
	MaxHours        int64                    `json:"max_hours" yaml:"max_hours"`
	Capacity        int64                    `json:"capacity_samples" yaml:"capacity_samples"`
	TileExtent      int64                    `json:"tile_extent" yaml:"tile_extent"`
	Devices         int64                    `json:"devices" yaml:"devices"`
	SizeBytes       int64                    `json:"size_bytes" yaml:"size_bytes"`
	SampleFragments arraystore.FragmentStats `json:"sample_fragments" yaml:"sample_fragments"`
	DeviceFragments arraystore.FragmentStats `json:"device_fragments" yaml:"device_fragments"`
}

// Devices lists registered device ids, sorted.
func (db *Database) Devices(ctx context.Context) ([]string, error) {
	return db.devices.Devices(ctx)
}

// Entries lists registered devices with their rows, ordered by row.
func (db *Database) Entries(ctx context.Context) ([]registry.Entry, error) {
	entries, err := db.devices.Entries(ctx)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(entries, func(a, b registry.Entry) int { return cmp.Compare(a.RowID, b.RowID) })

	return entries, nil
}

// RowFor returns the row of id.
func (db *Database) RowFor(ctx context.Context, id string) (int64, bool, error) {
	return db.devices.Lookup(ctx, id)
}

// ReadDevice returns the samples of id over [secStart, secEnd) seconds after
// the start date. An unknown device yields an empty slice and a warning.
func (db *Database) ReadDevice(ctx context.Context, id string, secStart, secEnd int64) ([]int16, error) {
	row, ok, err := db.devices.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	if !ok {
		db.log.Warn("unknown device", zap.String("device", id))
		return []int16{}, nil
	}

	return db.samples.ReadSegment(ctx, row, secStart, secEnd)
}

// ReadAll returns every registered row, in row order, over [secStart, secEnd).
func (db *Database) ReadAll(ctx context.Context, secStart, secEnd int64) ([][]int16, error) {
	n, err := db.devices.Count(ctx)
	if err != nil {
		return nil, err
	}

	return db.samples.ReadAll(ctx, secStart, secEnd, n)
}

// ExportTable returns one row per registered device, ordered by row id,
// with the whole sample row loaded.
func (db *Database) ExportTable(ctx context.Context) ([]TableRow, error) {
	entries, err := db.devices.Entries(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]TableRow, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(db.readConcurrency)

	for i, e := range entries {
		g.Go(func() error {
			samples, err := db.samples.ReadRow(gctx, e.RowID)
			if err != nil {
				return fmt.Errorf("read %s: %w", e.DeviceID, err)
			}

			rows[i] = TableRow{
				DeviceID:  e.DeviceID,
				RowID:     e.RowID,
				FirstSeen: e.FirstSeen,
				Samples:   samples,
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	slices.SortFunc(rows, func(a, b TableRow) int { return cmp.Compare(a.RowID, b.RowID) })

	return rows, nil
}

// Info reports the deployment settings, device count, fragment counts and
// size on disk.
func (db *Database) Info(ctx context.Context) (Info, error) {
	cfg := db.Deployment()

	info := Info{
		Path:       db.path,
		StartDate:  cfg.StartDate,
		SampleRate: cfg.SampleRate,
		MaxUnits:   cfg.MaxUnits,
		MaxHours:   cfg.MaxHours,
		Capacity:   db.samples.Capacity(),
		TileExtent: db.samples.TileExtent(),
	}

	var err error

	if info.Devices, err = db.devices.Count(ctx); err != nil {
		return Info{}, err
	}

	if info.SampleFragments, err = db.samples.Fragments(ctx); err != nil {
		return Info{}, err
	}

	if info.DeviceFragments, err = db.devices.Fragments(ctx); err != nil {
		return Info{}, err
	}

	if info.SizeBytes, err = dirSize(db.path); err != nil {
		return Info{}, err
	}

	return info, nil
}

func dirSize(root string) (int64, error) {
	var total int64

	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.Type().IsRegular() {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}

		total += fi.Size()

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("size of %s: %w", root, err)
	}

	return total, nil
}
