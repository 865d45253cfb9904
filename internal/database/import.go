// SPDX-License-Identifier: EPL-2.0

package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ik5/uwloc"
	"github.com/ik5/uwloc/audio"
	"github.com/ik5/uwloc/formats/wav"
	"github.com/ik5/uwloc/internal/registry"
	"github.com/ik5/uwloc/internal/samplestore"
	"github.com/ik5/uwloc/timestamp"
	"go.uber.org/zap"
)

// Result describes one imported file.
type Result struct {
	Path      string
	DeviceID  string
	NewDevice bool
	Segment   samplestore.Segment
}

// Report sums up a directory import.
type Report struct {
	Imported []Result
	Skipped  []string
	Failed   []FileError
}

// ImportRecording validates, registers and writes one decoded recording.
//
// The segment is placed before the device is assigned a row, so a recording
// that starts before the deployment or overruns its capacity leaves both
// arrays untouched.
func (db *Database) ImportRecording(ctx context.Context, rec *uwloc.Recording) (samplestore.Segment, error) {
	seg, _, err := db.importRecording(ctx, rec)
	return seg, err
}

func (db *Database) importRecording(ctx context.Context, rec *uwloc.Recording) (samplestore.Segment, bool, error) {
	if rec.DeviceID == "" {
		return samplestore.Segment{}, false, ErrMissingDeviceID
	}

	if _, err := db.samples.Place(rec.Timestamp, len(rec.Samples)); err != nil {
		return samplestore.Segment{}, false, err
	}

	row, existed, err := db.devices.Assign(ctx, rec.DeviceID, rec.Timestamp)
	if err != nil {
		return samplestore.Segment{}, false, err
	}

	if !existed {
		db.metrics.SetDevices(row + 1)
	}

	seg, err := db.samples.WriteSegment(ctx, row, rec.Timestamp, rec.Samples)
	if err != nil {
		return samplestore.Segment{}, !existed, err
	}

	db.log.Debug("segment written",
		zap.String("device", rec.DeviceID),
		zap.Int64("row", seg.Row),
		zap.Int64("offset", seg.Offset),
		zap.Int64("length", seg.Length),
	)

	return seg, !existed, nil
}

// ImportFile decodes path and imports it. A file without a device tag
// returns ErrMissingDeviceID.
func (db *Database) ImportFile(ctx context.Context, path string) (Result, error) {
	started := time.Now()
	res := Result{Path: path}

	rec, err := uwloc.LoadRecording(path, uwloc.LoadOptions{
		SampleRate:    db.samples.SampleRate(),
		AllowResample: db.resample,
		Readers:       db.readers,
	})
	if err != nil {
		db.metrics.RecordFailure(FailureReason(err))
		return res, fmt.Errorf("load: %w", err)
	}

	res.DeviceID = rec.DeviceID

	res.Segment, res.NewDevice, err = db.importRecording(ctx, rec)
	switch {
	case errors.Is(err, ErrMissingDeviceID):
		db.metrics.RecordSkip()
		return res, err
	case err != nil:
		db.metrics.RecordFailure(FailureReason(err))
		return res, err
	}

	db.metrics.ObserveImport(time.Since(started), len(rec.Samples))

	return res, nil
}

// ImportDir imports every recording under dir in sorted path order, then
// tidies the database once.
//
// A file that fails is logged and listed in Report.Failed; the rest of the
// directory is still imported. Only a failure to walk dir, a cancelled ctx
// or a failed tidy is returned as an error.
func (db *Database) ImportDir(ctx context.Context, dir string) (Report, error) {
	var report Report

	paths, err := Discover(dir, db.readers)
	if err != nil {
		return report, err
	}

	db.log.Info("importing", zap.String("dir", dir), zap.Int("files", len(paths)))

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		res, err := db.ImportFile(ctx, path)
		switch {
		case errors.Is(err, ErrMissingDeviceID):
			db.log.Info("no device id, skipping", zap.String("file", path))
			report.Skipped = append(report.Skipped, path)
		case err != nil:
			db.log.Warn("import failed", zap.String("file", path), zap.Error(err))
			report.Failed = append(report.Failed, FileError{Path: path, Err: err})
		default:
			db.log.Info("imported",
				zap.String("file", path),
				zap.String("device", res.DeviceID),
				zap.Int64("row", res.Segment.Row),
				zap.Bool("new_device", res.NewDevice),
			)
			report.Imported = append(report.Imported, res)
		}
	}

	if err := db.Tidy(ctx); err != nil {
		return report, fmt.Errorf("tidy: %w", err)
	}

	return report, nil
}

// FailureReason classifies an import error for metrics and reports.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, timestamp.ErrMalformedTimestamp), errors.Is(err, timestamp.ErrNoTimestampInComment):
		return "timestamp"
	case errors.Is(err, audio.ErrSampleRateMismatch):
		return "sample_rate"
	case errors.Is(err, samplestore.ErrBeforeStartDate):
		return "before_start"
	case errors.Is(err, samplestore.ErrCapacityExceeded):
		return "capacity"
	case errors.Is(err, registry.ErrUnitsExhausted):
		return "units"
	case errors.Is(err, wav.ErrNotWavFile), errors.Is(err, wav.ErrOnlyPCM16bitSupported),
		errors.Is(err, wav.ErrNoSamples), errors.Is(err, uwloc.ErrUnsupportedFormat),
		errors.Is(err, audio.ErrInvalidChannels), errors.Is(err, audio.ErrInvalidSampleRate):
		return "decode"
	}

	return "storage"
}
