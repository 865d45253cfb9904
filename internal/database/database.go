// SPDX-License-Identifier: EPL-2.0

// Package database ties the device registry and the sample store of one
// deployment together.
//
// A database is a directory holding two arrays: "samples" (dense, one row per
// device, one column per sample since the start date) and "devices" (sparse,
// device id to row). Every import goes through the same order: the segment is
// validated against the sample array first, then the device gets its row,
// then the samples are written. A recording that fails validation never
// registers its device.
package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ik5/uwloc"
	"github.com/ik5/uwloc/audio"
	"github.com/ik5/uwloc/internal/arraystore"
	"github.com/ik5/uwloc/internal/deployment"
	"github.com/ik5/uwloc/internal/metrics"
	"github.com/ik5/uwloc/internal/registry"
	"github.com/ik5/uwloc/internal/samplestore"
	"go.uber.org/zap"
)

// Array names inside a database directory.
const (
	SamplesArray = "samples"
	DevicesArray = "devices"
)

// Database is an open deployment database. It is meant for a single writer
// process; reads may run concurrently.
type Database struct {
	path    string
	sc      *arraystore.Context
	samples *samplestore.Store
	devices *registry.Registry

	log             *zap.Logger
	metrics         *metrics.Metrics
	readers         *audio.Registry
	resample        bool
	readConcurrency int
}

// Create initialises a database at path. Parts that already exist are kept
// as they are and reported with a warning, so running Create twice is safe
// and never changes the start date or the registered devices.
func Create(ctx context.Context, sc *arraystore.Context, path string, cfg deployment.Config, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}

	log = log.Named("database")

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("deployment: %w", err)
	}

	cfg = cfg.UTC()

	steps := []struct {
		name   string
		create func() error
	}{
		{"group", func() error { return sc.CreateGroup(path) }},
		{SamplesArray, func() error { return samplestore.Create(ctx, sc, filepath.Join(path, SamplesArray), cfg) }},
		{DevicesArray, func() error { return registry.Create(ctx, sc, filepath.Join(path, DevicesArray)) }},
	}

	for _, step := range steps {
		err := step.create()
		switch {
		case errors.Is(err, arraystore.ErrAlreadyExists):
			log.Warn("already exists, keeping it", zap.String("path", path), zap.String("object", step.name))
		case err != nil:
			return fmt.Errorf("create %s: %w", step.name, err)
		}
	}

	log.Info("database ready",
		zap.String("path", path),
		zap.Time("start_date", cfg.StartDate),
		zap.Int64("max_units", cfg.MaxUnits),
		zap.Int64("max_hours", cfg.MaxHours),
		zap.Int("sample_rate", cfg.SampleRate),
	)

	return nil
}

// Exists reports whether path holds a complete database.
func Exists(sc *arraystore.Context, path string) bool {
	return sc.IsGroup(path) &&
		sc.Exists(filepath.Join(path, SamplesArray)) &&
		sc.Exists(filepath.Join(path, DevicesArray))
}

// Open opens the database at path, or fails with ErrNotFound.
func Open(ctx context.Context, sc *arraystore.Context, path string, opts ...Option) (*Database, error) {
	if !Exists(sc, path) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	db := &Database{
		path:            path,
		sc:              sc,
		log:             zap.NewNop(),
		readers:         uwloc.DefaultReaders(),
		readConcurrency: defaultReadConcurrency,
	}

	for _, opt := range opts {
		opt(db)
	}

	samples, err := samplestore.Open(ctx, sc, filepath.Join(path, SamplesArray))
	if err != nil {
		return nil, fmt.Errorf("open samples: %w", err)
	}

	devices, err := registry.Open(ctx, sc, filepath.Join(path, DevicesArray), samples.Units(), db.log)
	if err != nil {
		_ = samples.Close()
		return nil, fmt.Errorf("open devices: %w", err)
	}

	db.samples, db.devices = samples, devices

	if n, err := devices.Count(ctx); err == nil {
		db.metrics.SetDevices(n)
	}

	return db, nil
}

// Close releases both arrays.
func (db *Database) Close() error {
	return errors.Join(db.samples.Close(), db.devices.Close())
}

// Path is the database directory.
func (db *Database) Path() string { return db.path }

// Deployment returns the immutable deployment settings.
func (db *Database) Deployment() deployment.Config { return db.samples.Deployment() }

// Readers returns the recording readers in use.
func (db *Database) Readers() *audio.Registry { return db.readers }

// Tidy consolidates and vacuums both arrays. It can be run any number of
// times.
func (db *Database) Tidy(ctx context.Context) error {
	if err := db.samples.Tidy(ctx); err != nil {
		return err
	}

	if err := db.devices.Tidy(ctx); err != nil {
		return err
	}

	db.log.Debug("tidied", zap.String("path", db.path))

	return nil
}
