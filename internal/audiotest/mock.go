// SPDX-License-Identifier: EPL-2.0

// Package audiotest generates recorder-like WAV files for tests.
package audiotest

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ik5/uwloc/formats/wav"
)

// Recording describes a fixture file.
type Recording struct {
	DeviceID string
	Start    time.Time
	Rate     int
	// Channels defaults to 1.
	Channels int
	// Samples are interleaved when Channels > 1.
	Samples []int16
}

// Sine generates n samples of a sine wave at freq Hz with the given amplitude
// in PCM units.
func Sine(rate, n int, freq, amplitude float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		t := float64(i) / float64(rate)
		out[i] = int16(amplitude * math.Sin(2*math.Pi*freq*t))
	}
	return out
}

// Ramp generates n samples counting up from first, wrapping within int16.
// Every sample is distinct from its neighbours and never all zero, which
// makes misplaced writes easy to spot.
func Ramp(n int, first int16) []int16 {
	out := make([]int16, n)
	v := first
	for i := range out {
		if v == 0 {
			v++
		}
		out[i] = v
		v++
	}
	return out
}

// Write stores rec as a tagged WAV named name under dir and returns its path.
// Intermediate directories are created.
func Write(tb testing.TB, dir, name string, rec Recording) string {
	tb.Helper()

	channels := rec.Channels
	if channels == 0 {
		channels = 1
	}

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		tb.Fatalf("audiotest: %v", err)
	}

	tags := wav.Tags{DeviceID: rec.DeviceID, RecordedAt: rec.Start}
	if err := wav.WriteTaggedFile(path, rec.Rate, channels, rec.Samples, tags); err != nil {
		tb.Fatalf("audiotest: writing %s: %v", path, err)
	}

	return path
}

// WriteCorrupt stores a file with a WAV extension and a broken RIFF header.
func WriteCorrupt(tb testing.TB, dir, name string) string {
	tb.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		tb.Fatalf("audiotest: %v", err)
	}

	if err := os.WriteFile(path, []byte("RIFX\x10\x00\x00\x00WAVEfmt garbage that is not a header"), 0o644); err != nil {
		tb.Fatalf("audiotest: %v", err)
	}

	return path
}

// SetChunkSize overwrites the size field of the first chunk or INFO entry
// named id in the file at path, leaving the rest of the file intact.
func SetChunkSize(tb testing.TB, path, id string, size uint32) {
	tb.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		tb.Fatalf("audiotest: %v", err)
	}

	i := bytes.Index(data, []byte(id))
	if i < 0 || i+8 > len(data) {
		tb.Fatalf("audiotest: no %s chunk in %s", id, path)
	}
	binary.LittleEndian.PutUint32(data[i+4:], size)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		tb.Fatalf("audiotest: %v", err)
	}
}
