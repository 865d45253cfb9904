// SPDX-License-Identifier: EPL-2.0

package uwloc

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ik5/uwloc/audio"
	"github.com/ik5/uwloc/formats/wav"
	"github.com/ik5/uwloc/timestamp"
)

// ErrUnsupportedFormat is returned for files no reader is registered for.
var ErrUnsupportedFormat = errors.New("unsupported recording format")

// Recording is a decoded file ready to be placed in the sample store.
type Recording struct {
	Path     string
	DeviceID string
	// Timestamp is the UTC start of the recording.
	Timestamp time.Time
	// SampleRate of Samples, always the rate asked for in LoadOptions.
	SampleRate int
	// Samples is mono 16-bit PCM.
	Samples []int16

	SourceRate     int
	SourceChannels int
}

// Seconds returns the recording length in whole seconds.
func (r *Recording) Seconds() int {
	if r.SampleRate <= 0 {
		return 0
	}
	return len(r.Samples) / r.SampleRate
}

// LoadOptions controls how LoadRecording conforms a file.
type LoadOptions struct {
	// SampleRate is the deployment rate samples are delivered at.
	SampleRate int
	// AllowResample resamples files recorded at another rate instead of
	// rejecting them.
	AllowResample bool
	// Readers defaults to DefaultReaders().
	Readers *audio.Registry
}

// DefaultReaders returns a registry with every built-in format.
func DefaultReaders() *audio.Registry {
	reg := audio.NewRegistry()
	reg.Register("wav", wav.Reader{})

	return reg
}

// LoadRecording decodes path, parses its timestamp and conforms its samples
// to mono at opts.SampleRate.
//
// A file without a device tag is returned with an empty DeviceID, no samples
// and a nil error: that is a skip signal, not a failure.
func LoadRecording(path string, opts LoadOptions) (*Recording, error) {
	readers := opts.Readers
	if readers == nil {
		readers = DefaultReaders()
	}

	cr, ok := readers.ForPath(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	clip, err := cr.ReadClip(f)
	if err != nil {
		return nil, err
	}

	rec := &Recording{
		Path:           path,
		DeviceID:       clip.DeviceID,
		SampleRate:     opts.SampleRate,
		SourceRate:     clip.SampleRate,
		SourceChannels: clip.Channels,
	}
	if rec.DeviceID == "" {
		return rec, nil
	}

	rec.Timestamp, err = timestamp.Parse(clip.RecordedAt)
	if err != nil {
		return nil, err
	}

	rec.Samples, err = audio.Conform(clip, opts.SampleRate, opts.AllowResample)
	if err != nil {
		return nil, err
	}

	return rec, nil
}
