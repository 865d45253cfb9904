// SPDX-License-Identifier: EPL-2.0

// Package samplestore places recordings on the time axis of the dense sample
// array and reads them back.
//
// Column c of a row holds the sample taken c/rate seconds after the
// deployment start date. Segments are validated against the start date and
// the row capacity before anything is written.
package samplestore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ik5/uwloc/internal/arraystore"
	"github.com/ik5/uwloc/internal/deployment"
	"github.com/ik5/uwloc/utils"
)

// Array layout and metadata keys.
const (
	DimUnit          = "unit"
	DimTime          = "time"
	AttrSample       = "sample"
	MetaStartDate    = "Start_Date"
	MetaSamplingRate = "Sampling_Rate"
)

// StartDateLayout is ISO-8601 with a numeric offset, so UTC is written as
// +00:00.
const StartDateLayout = "2006-01-02T15:04:05.999999-07:00"

// Segment is a run of samples in one row.
type Segment struct {
	Row    int64
	Offset int64
	Length int64
}

// End is the exclusive end column.
func (s Segment) End() int64 {
	return s.Offset + s.Length
}

// Schema is the dense layout for cfg.
func Schema(cfg deployment.Config) arraystore.DenseSchema {
	return arraystore.DenseSchema{
		Rows: arraystore.Dim{Name: DimUnit, Lo: 0, Hi: cfg.MaxUnits - 1},
		Cols: arraystore.Dim{Name: DimTime, Lo: 0, Hi: cfg.CapacitySamples() - 1, Tile: cfg.TileExtent()},
		Attr: AttrSample,
	}
}

// Create declares the sample array at uri and stores the start date and
// sample rate as metadata.
func Create(ctx context.Context, sc *arraystore.Context, uri string, cfg deployment.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	arr, err := sc.CreateDense(ctx, uri, Schema(cfg))
	if err != nil {
		return err
	}
	defer arr.Close()

	if err := arr.PutMeta(ctx, MetaStartDate, cfg.StartDate.UTC().Format(StartDateLayout)); err != nil {
		return err
	}

	return arr.PutMeta(ctx, MetaSamplingRate, strconv.Itoa(cfg.SampleRate))
}

// Store is an open sample array.
type Store struct {
	arr *arraystore.DenseArray
	cfg deployment.Config
}

// Open loads the sample array at uri with its metadata.
func Open(ctx context.Context, sc *arraystore.Context, uri string) (*Store, error) {
	arr, err := sc.OpenDense(ctx, uri)
	if err != nil {
		return nil, err
	}

	cfg, err := loadDeployment(ctx, arr)
	if err != nil {
		_ = arr.Close()
		return nil, err
	}

	return &Store{arr: arr, cfg: cfg}, nil
}

func loadDeployment(ctx context.Context, arr *arraystore.DenseArray) (deployment.Config, error) {
	raw, err := arr.Meta(ctx, MetaStartDate)
	if err != nil {
		return deployment.Config{}, err
	}

	start, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return deployment.Config{}, fmt.Errorf("parse %s %q: %w", MetaStartDate, raw, err)
	}

	rate, err := arr.MetaInt(ctx, MetaSamplingRate)
	if err != nil {
		return deployment.Config{}, err
	}

	if rate <= 0 {
		return deployment.Config{}, fmt.Errorf("%w: %d", deployment.ErrInvalidSampleRate, rate)
	}

	schema := arr.Schema()

	return deployment.Config{
		StartDate:   start.UTC(),
		MaxUnits:    schema.Rows.Extent(),
		MaxHours:    utils.SecondsForSamples(schema.Cols.Extent(), int(rate)) / 3600,
		SampleRate:  int(rate),
		TileSeconds: utils.SecondsForSamples(schema.Cols.Tile, int(rate)),
	}, nil
}

// Close releases the array.
func (s *Store) Close() error {
	return s.arr.Close()
}

// Deployment returns the configuration the store was created with.
func (s *Store) Deployment() deployment.Config { return s.cfg }

// StartDate is the UTC time of column 0.
func (s *Store) StartDate() time.Time { return s.cfg.StartDate }

// SampleRate in samples per second.
func (s *Store) SampleRate() int { return s.cfg.SampleRate }

// Capacity is the number of columns per row.
func (s *Store) Capacity() int64 { return s.arr.Schema().Cols.Extent() }

// Units is the number of rows.
func (s *Store) Units() int64 { return s.arr.Schema().Rows.Extent() }

// TileExtent is the time-axis tile size in samples.
func (s *Store) TileExtent() int64 { return s.arr.Schema().Cols.Tile }

// Place computes where n samples recorded at ts land, without writing
// anything. Row is left at zero.
func (s *Store) Place(ts time.Time, n int) (Segment, error) {
	if ts.Before(s.cfg.StartDate) {
		return Segment{}, fmt.Errorf("%w: %s < %s", ErrBeforeStartDate,
			ts.UTC().Format(time.RFC3339), s.cfg.StartDate.Format(time.RFC3339))
	}

	seg := Segment{
		Offset: utils.SampleOffset(s.cfg.StartDate, ts, s.cfg.SampleRate),
		Length: int64(n),
	}

	if capacity := s.Capacity(); seg.End() > capacity {
		return Segment{}, &CapacityError{Offset: seg.Offset, Length: seg.Length, Capacity: capacity}
	}

	return seg, nil
}

// WriteSegment places samples recorded at ts in row and writes them as one
// fragment. Nothing is written if validation fails.
func (s *Store) WriteSegment(ctx context.Context, row int64, ts time.Time, samples []int16) (Segment, error) {
	seg, err := s.Place(ts, len(samples))
	if err != nil {
		return Segment{}, err
	}

	if row < 0 || row >= s.Units() {
		return Segment{}, fmt.Errorf("%w: %d not in [0, %d)", ErrRowOutOfRange, row, s.Units())
	}

	seg.Row = row

	if err := s.arr.Write(ctx, row, seg.Offset, samples); err != nil {
		return Segment{}, fmt.Errorf("write row %d at %d: %w", row, seg.Offset, err)
	}

	return seg, nil
}

// columns converts whole seconds [secStart, secEnd) to an inclusive column
// range. ok is false for an empty range.
func (s *Store) columns(secStart, secEnd int64) (lo, hi int64, ok bool, err error) {
	if secStart < 0 || secEnd < secStart {
		return 0, 0, false, fmt.Errorf("%w: [%d, %d)", ErrInvalidRange, secStart, secEnd)
	}

	lo = utils.SamplesForSeconds(secStart, s.cfg.SampleRate)
	end := utils.SamplesForSeconds(secEnd, s.cfg.SampleRate)

	if end > s.Capacity() {
		return 0, 0, false, fmt.Errorf("%w: [%d, %d) s ends past %d samples", ErrInvalidRange, secStart, secEnd, s.Capacity())
	}

	return lo, end - 1, end > lo, nil
}

// ReadSegment returns row over [secStart, secEnd) seconds after the start
// date. Samples never written read as zero.
func (s *Store) ReadSegment(ctx context.Context, row, secStart, secEnd int64) ([]int16, error) {
	if row < 0 || row >= s.Units() {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrRowOutOfRange, row, s.Units())
	}

	lo, hi, ok, err := s.columns(secStart, secEnd)
	if err != nil {
		return nil, err
	}

	if !ok {
		return []int16{}, nil
	}

	data, err := s.arr.Read(ctx, row, row, lo, hi)
	if err != nil {
		return nil, err
	}

	return data[0], nil
}

// ReadAll returns rows [0, rowCount) over [secStart, secEnd).
func (s *Store) ReadAll(ctx context.Context, secStart, secEnd, rowCount int64) ([][]int16, error) {
	if rowCount < 0 || rowCount > s.Units() {
		return nil, fmt.Errorf("%w: %d rows, %d units", ErrRowOutOfRange, rowCount, s.Units())
	}

	lo, hi, ok, err := s.columns(secStart, secEnd)
	if err != nil {
		return nil, err
	}

	if rowCount == 0 {
		return [][]int16{}, nil
	}

	if !ok {
		out := make([][]int16, rowCount)
		for i := range out {
			out[i] = []int16{}
		}

		return out, nil
	}

	return s.arr.Read(ctx, 0, rowCount-1, lo, hi)
}

// ReadRow returns the whole row.
func (s *Store) ReadRow(ctx context.Context, row int64) ([]int16, error) {
	if row < 0 || row >= s.Units() {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrRowOutOfRange, row, s.Units())
	}

	data, err := s.arr.Read(ctx, row, row, 0, s.Capacity()-1)
	if err != nil {
		return nil, err
	}

	return data[0], nil
}

// Tidy consolidates the sample fragments and vacuums the retired ones.
func (s *Store) Tidy(ctx context.Context) error {
	if err := s.arr.Consolidate(ctx); err != nil {
		return fmt.Errorf("consolidate samples: %w", err)
	}

	if err := s.arr.Vacuum(ctx); err != nil {
		return fmt.Errorf("vacuum samples: %w", err)
	}

	return nil
}

// Fragments reports the fragment counts of the sample array.
func (s *Store) Fragments(ctx context.Context) (arraystore.FragmentStats, error) {
	return s.arr.Fragments(ctx)
}
