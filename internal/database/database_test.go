// SPDX-License-Identifier: EPL-2.0

package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ik5/uwloc"
	"github.com/ik5/uwloc/audio"
	"github.com/ik5/uwloc/formats/wav"
	"github.com/ik5/uwloc/internal/arraystore"
	"github.com/ik5/uwloc/internal/audiotest"
	"github.com/ik5/uwloc/internal/deployment"
	"github.com/ik5/uwloc/internal/metrics"
	"github.com/ik5/uwloc/internal/registry"
	"github.com/ik5/uwloc/internal/samplestore"
	"github.com/ik5/uwloc/timestamp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rate = 100

var start = time.Date(2023, 5, 17, 10, 0, 0, 0, time.UTC)

func testConfig(units, hours int64) deployment.Config {
	return deployment.Config{
		StartDate:   start,
		MaxUnits:    units,
		MaxHours:    hours,
		SampleRate:  rate,
		TileSeconds: 60,
	}
}

func newTestDB(t *testing.T, cfg deployment.Config, opts ...Option) *Database {
	t.Helper()

	ctx := context.Background()
	sc := arraystore.New(arraystore.Config{})
	path := filepath.Join(t.TempDir(), "deployment.db")

	require.NoError(t, Create(ctx, sc, path, cfg, nil))

	db, err := Open(ctx, sc, path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func recording(id string, at time.Duration, samples []int16) *uwloc.Recording {
	return &uwloc.Recording{
		DeviceID:   id,
		Timestamp:  start.Add(at),
		SampleRate: rate,
		Samples:    samples,
	}
}

func TestCreate_Idempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sc := arraystore.New(arraystore.Config{})
	path := filepath.Join(t.TempDir(), "deployment.db")

	require.NoError(t, Create(ctx, sc, path, testConfig(2, 1), nil))

	db, err := Open(ctx, sc, path)
	require.NoError(t, err)

	_, err = db.ImportRecording(ctx, recording("A", time.Second, audiotest.Ramp(10, 1)))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	later := testConfig(4, 2)
	later.StartDate = start.Add(24 * time.Hour)
	require.NoError(t, Create(ctx, sc, path, later, nil))

	db, err = Open(ctx, sc, path)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, testConfig(2, 1), db.Deployment())

	row, ok, err := db.RowFor(ctx, "A")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, row)

	got, err := db.ReadDevice(ctx, "A", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, audiotest.Ramp(10, 1), got[:10])
}

func TestCreate_RecoversMissingArray(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sc := arraystore.New(arraystore.Config{})
	path := filepath.Join(t.TempDir(), "deployment.db")

	require.NoError(t, sc.CreateGroup(path))
	assert.False(t, Exists(sc, path))

	require.NoError(t, Create(ctx, sc, path, testConfig(1, 1), nil))
	assert.True(t, Exists(sc, path))
}

func TestCreate_InvalidDeployment(t *testing.T) {
	t.Parallel()

	cfg := testConfig(1, 1)
	cfg.StartDate = time.Time{}

	err := Create(context.Background(), arraystore.New(arraystore.Config{}), t.TempDir(), cfg, nil)
	require.ErrorIs(t, err, deployment.ErrMissingStartDate)
}

func TestOpen_NotFound(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), arraystore.New(arraystore.Config{}), filepath.Join(t.TempDir(), "nope"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestImportRecording_RowAssignment(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t, testConfig(4, 1))

	tests := []struct {
		id   string
		at   time.Duration
		want int64
	}{
		{"B", 0, 0},
		{"A", time.Minute, 1},
		{"B", 2 * time.Minute, 0},
		{"C", 0, 2},
	}

	for _, tt := range tests {
		seg, err := db.ImportRecording(ctx, recording(tt.id, tt.at, audiotest.Ramp(50, 1)))
		require.NoError(t, err)
		assert.Equal(t, tt.want, seg.Row, tt.id)
	}

	devices, err := db.Devices(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, devices)
}

func TestImportRecording_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t, testConfig(2, 1))

	samples := audiotest.Ramp(300, 7)
	seg, err := db.ImportRecording(ctx, recording("UNIT", 90*time.Second, samples))
	require.NoError(t, err)
	assert.Equal(t, samplestore.Segment{Row: 0, Offset: 9000, Length: 300}, seg)

	got, err := db.ReadDevice(ctx, "UNIT", 90, 93)
	require.NoError(t, err)
	assert.Equal(t, samples, got)
}

func TestImportRecording_ValidatesBeforeRegistering(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t, testConfig(2, 1))

	_, err := db.ImportRecording(ctx, recording("EARLY", -time.Second, audiotest.Ramp(10, 1)))
	require.ErrorIs(t, err, samplestore.ErrBeforeStartDate)

	_, err = db.ImportRecording(ctx, recording("LONG", 3599*time.Second, audiotest.Ramp(101, 1)))
	require.ErrorIs(t, err, samplestore.ErrCapacityExceeded)

	devices, err := db.Devices(ctx)
	require.NoError(t, err)
	assert.Empty(t, devices)

	_, err = db.ImportRecording(ctx, recording("", 0, audiotest.Ramp(10, 1)))
	require.ErrorIs(t, err, ErrMissingDeviceID)
}

func TestEndToEnd_SingleUnitOneHour(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	db := newTestDB(t, testConfig(1, 1))

	first := audiotest.Ramp(rate*2, 1)
	audiotest.Write(t, dir, "a/0001.WAV", audiotest.Recording{DeviceID: "A", Start: start, Rate: rate, Samples: first})

	tail := audiotest.Ramp(rate*10, 500)
	audiotest.Write(t, dir, "a/0002.wav", audiotest.Recording{
		DeviceID: "A", Start: start.Add(3590 * time.Second), Rate: rate, Samples: tail,
	})
	audiotest.Write(t, dir, "b/0001.wav", audiotest.Recording{DeviceID: "B", Start: start, Rate: rate, Samples: first})

	report, err := db.ImportDir(ctx, dir)
	require.NoError(t, err)
	require.Len(t, report.Imported, 2)
	require.Len(t, report.Failed, 1)
	assert.ErrorIs(t, report.Failed[0], registry.ErrUnitsExhausted)
	assert.Equal(t, filepath.Join(dir, "b/0001.wav"), report.Failed[0].Path)

	got, err := db.ReadDevice(ctx, "A", 0, 2)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	got, err = db.ReadDevice(ctx, "A", 3590, 3600)
	require.NoError(t, err)
	assert.Equal(t, tail, got)

	unknown, err := db.ReadDevice(ctx, "B", 0, 2)
	require.NoError(t, err)
	assert.Empty(t, unknown)

	all, err := db.ReadAll(ctx, 0, 1)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, first[:rate], all[0])
}

func TestImportDir_MixedFiles(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	m := metrics.New()
	db := newTestDB(t, testConfig(2, 1), WithMetrics(m))

	samples := audiotest.Sine(rate, rate*3, 5, 8000)
	audiotest.Write(t, dir, "good.wav", audiotest.Recording{DeviceID: "GOOD", Start: start.Add(time.Minute), Rate: rate, Samples: samples})
	corrupt := audiotest.WriteCorrupt(t, dir, "broken.wav")
	untagged := audiotest.Write(t, dir, "untagged.wav", audiotest.Recording{Rate: rate, Samples: samples})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not audio"), 0o600))

	report, err := db.ImportDir(ctx, dir)
	require.NoError(t, err)

	require.Len(t, report.Imported, 1)
	assert.Equal(t, "GOOD", report.Imported[0].DeviceID)
	assert.True(t, report.Imported[0].NewDevice)
	assert.Equal(t, []string{untagged}, report.Skipped)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, corrupt, report.Failed[0].Path)
	assert.Equal(t, "decode", FailureReason(report.Failed[0]))

	got, err := db.ReadDevice(ctx, "GOOD", 60, 63)
	require.NoError(t, err)
	assert.Equal(t, samples, got)

	info, err := db.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.SampleFragments.Live)

	expected := `
# HELP uwloc_import_failures_total Recordings that could not be imported, by reason.
# TYPE uwloc_import_failures_total counter
uwloc_import_failures_total{reason="decode"} 1
# HELP uwloc_import_recordings_total Recordings written to the sample store.
# TYPE uwloc_import_recordings_total counter
uwloc_import_recordings_total 1
# HELP uwloc_import_skipped_total Recordings skipped because they carry no device id.
# TYPE uwloc_import_skipped_total counter
uwloc_import_skipped_total 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"uwloc_import_failures_total", "uwloc_import_recordings_total", "uwloc_import_skipped_total"))
}

func TestImportDir_OversizedInfoEntry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	db := newTestDB(t, testConfig(2, 1))

	samples := audiotest.Ramp(2*rate, 1)
	audiotest.Write(t, dir, "a/good.wav", audiotest.Recording{DeviceID: "GOOD", Start: start, Rate: rate, Samples: samples})
	bad := audiotest.Write(t, dir, "b/bad.wav", audiotest.Recording{DeviceID: "BAD", Start: start, Rate: rate, Samples: samples})
	audiotest.SetChunkSize(t, bad, "ICMT", 0xF0000000)

	report, err := db.ImportDir(ctx, dir)
	require.NoError(t, err)

	require.Len(t, report.Imported, 1)
	assert.Equal(t, "GOOD", report.Imported[0].DeviceID)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, bad, report.Failed[0].Path)
	assert.ErrorIs(t, report.Failed[0].Err, wav.ErrNotWavFile)
	assert.Equal(t, "decode", FailureReason(report.Failed[0]))

	_, ok, err := db.RowFor(ctx, "BAD")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestImportDir_Cancelled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	db := newTestDB(t, testConfig(1, 1))
	audiotest.Write(t, dir, "a.wav", audiotest.Recording{DeviceID: "A", Start: start, Rate: rate, Samples: audiotest.Ramp(10, 1)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := db.ImportDir(ctx, dir)
	require.ErrorIs(t, err, context.Canceled)
}

func TestImportDir_MissingDir(t *testing.T) {
	t.Parallel()

	db := newTestDB(t, testConfig(1, 1))

	_, err := db.ImportDir(context.Background(), filepath.Join(t.TempDir(), "absent"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestImportFile_SampleRateMismatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	path := audiotest.Write(t, dir, "fast.wav", audiotest.Recording{
		DeviceID: "FAST", Start: start, Rate: rate * 2, Samples: audiotest.Ramp(rate*2, 1),
	})

	strict := newTestDB(t, testConfig(1, 1))
	_, err := strict.ImportFile(ctx, path)
	require.ErrorIs(t, err, audio.ErrSampleRateMismatch)

	devices, err := strict.Devices(ctx)
	require.NoError(t, err)
	assert.Empty(t, devices)

	lenient := newTestDB(t, testConfig(1, 1), WithResample(true))
	res, err := lenient.ImportFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, int64(rate), res.Segment.Length)
}

func TestExportTable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t, testConfig(3, 1), WithReadConcurrency(2))

	for i, id := range []string{"Z", "A", "M"} {
		_, err := db.ImportRecording(ctx, recording(id, time.Duration(i)*time.Second, audiotest.Ramp(5, int16(10*i+1))))
		require.NoError(t, err)
	}

	rows, err := db.ExportTable(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	for i, id := range []string{"Z", "A", "M"} {
		assert.Equal(t, id, rows[i].DeviceID)
		assert.Equal(t, int64(i), rows[i].RowID)
		assert.Equal(t, start.Add(time.Duration(i)*time.Second), rows[i].FirstSeen)
		require.Len(t, rows[i].Samples, 3600*rate)
		assert.Equal(t, audiotest.Ramp(5, int16(10*i+1)), rows[i].Samples[i*rate:i*rate+5])
	}
}

func TestInfo(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t, testConfig(2, 1))

	_, err := db.ImportRecording(ctx, recording("A", 0, audiotest.Ramp(5, 1)))
	require.NoError(t, err)

	info, err := db.Info(ctx)
	require.NoError(t, err)

	assert.Equal(t, start, info.StartDate)
	assert.Equal(t, rate, info.SampleRate)
	assert.Equal(t, int64(2), info.MaxUnits)
	assert.Equal(t, int64(1), info.MaxHours)
	assert.Equal(t, int64(3600*rate), info.Capacity)
	assert.Equal(t, int64(60*rate), info.TileExtent)
	assert.Equal(t, int64(1), info.Devices)
	assert.Positive(t, info.SizeBytes)

	require.NoError(t, db.Tidy(ctx))
	require.NoError(t, db.Tidy(ctx))
}

func TestFindStartDate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	readers := uwloc.DefaultReaders()

	_, err := FindStartDate(dir, readers, nil)
	require.ErrorIs(t, err, ErrNoRecordings)

	audiotest.WriteCorrupt(t, dir, "broken.wav")
	audiotest.Write(t, dir, "x/late.wav", audiotest.Recording{DeviceID: "A", Start: start.Add(time.Hour), Rate: rate, Samples: audiotest.Ramp(5, 1)})
	audiotest.Write(t, dir, "y/early.wav", audiotest.Recording{
		DeviceID: "B", Start: start.In(time.FixedZone("UTC-4", -4*3600)), Rate: rate, Samples: audiotest.Ramp(5, 1),
	})

	got, err := FindStartDate(dir, readers, nil)
	require.NoError(t, err)
	assert.Equal(t, start, got)
}

// tagsOnly records which read path FindStartDate takes.
type tagsOnly struct {
	wav.Reader
	tags, clips *int
}

func (r tagsOnly) ReadTags(rs io.ReadSeeker) (*audio.Clip, error) {
	*r.tags++
	return r.Reader.ReadTags(rs)
}

func (r tagsOnly) ReadClip(rs io.ReadSeeker) (*audio.Clip, error) {
	*r.clips++
	return r.Reader.ReadClip(rs)
}

func TestFindStartDate_ReadsTagsOnly(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	audiotest.Write(t, dir, "a.wav", audiotest.Recording{DeviceID: "A", Start: start.Add(time.Minute), Rate: rate, Samples: audiotest.Ramp(rate, 1)})
	audiotest.Write(t, dir, "b.wav", audiotest.Recording{DeviceID: "B", Start: start, Rate: rate, Samples: audiotest.Ramp(rate, 1)})

	var tags, clips int
	readers := audio.NewRegistry()
	readers.Register("wav", tagsOnly{tags: &tags, clips: &clips})

	got, err := FindStartDate(dir, readers, nil)
	require.NoError(t, err)
	assert.Equal(t, start, got)
	assert.Equal(t, 2, tags)
	assert.Zero(t, clips)
}

func TestFailureReason(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{timestamp.ErrMalformedTimestamp, "timestamp"},
		{audio.ErrSampleRateMismatch, "sample_rate"},
		{samplestore.ErrBeforeStartDate, "before_start"},
		{&samplestore.CapacityError{Offset: 1, Length: 2, Capacity: 2}, "capacity"},
		{registry.ErrUnitsExhausted, "units"},
		{uwloc.ErrUnsupportedFormat, "decode"},
		{errors.New("disk I/O error"), "storage"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, FailureReason(fmt.Errorf("wrapped: %w", tt.err)))
		})
	}
}
