// SPDX-License-Identifier: EPL-2.0

package wav

import (
	"fmt"
	"io"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"
	"github.com/ik5/uwloc/timestamp"
)

// Tags are the INFO fields a recorder writes.
type Tags struct {
	DeviceID string
	// Comment is written verbatim when set; otherwise it is generated from
	// RecordedAt in the recorder's own wording.
	Comment    string
	RecordedAt time.Time
}

func (t Tags) metadata() *gowav.Metadata {
	if t.DeviceID == "" && t.Comment == "" {
		return nil
	}

	comment := t.Comment
	md := &gowav.Metadata{}
	if t.DeviceID != "" {
		md.Artist = padTag(DevicePrefix + " " + t.DeviceID)
		if comment == "" {
			comment = RecorderComment(t.DeviceID, t.RecordedAt)
		}
	}
	md.Comments = padTag(comment)

	return md
}

// padTag extends s so that s plus the encoder's NUL terminator has an even
// length. The encoder writes no pad byte after odd sized INFO entries while
// the decoder skips one.
func padTag(s string) string {
	if s == "" || len(s)%2 == 1 {
		return s
	}
	return s + "\x00"
}

// RecorderComment renders the comment line a recorder stores for a file
// started at ts. The zone is written as "(UTC)" or "(UTC+H)".
func RecorderComment(deviceID string, ts time.Time) string {
	_, offset := ts.Zone()

	zone := "UTC"
	if h := offset / 3600; h != 0 {
		zone = fmt.Sprintf("UTC%+d", h)
	}

	return fmt.Sprintf("Recorded at %s (%s) by %s %s at medium gain.",
		ts.Format(timestamp.Layout), zone, DevicePrefix, deviceID)
}

// WriteTagged writes interleaved 16-bit PCM with INFO tags to ws.
func WriteTagged(ws io.WriteSeeker, sampleRate, channels int, samples []int16, tags Tags) error {
	if sampleRate <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSampleRate, sampleRate)
	}

	enc := gowav.NewEncoder(ws, sampleRate, 16, channels, pcmFormat)
	enc.Metadata = tags.metadata()

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	buf := &goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encoding PCM: %w", err)
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("closing encoder: %w", err)
	}

	return nil
}

// WriteTaggedFile creates path and writes a tagged WAV into it.
func WriteTaggedFile(path string, sampleRate, channels int, samples []int16, tags Tags) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := WriteTagged(f, sampleRate, channels, samples, tags); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}
