// SPDX-License-Identifier: EPL-2.0

package wav

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	goaudio "github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"
	"github.com/ik5/uwloc/audio"
	"github.com/ik5/uwloc/timestamp"
)

// DevicePrefix is the vendor word recorders put in front of their serial in
// the INFO artist tag, e.g. "AudioMoth 24F3190361DA539A".
const DevicePrefix = "AudioMoth"

const pcmFormat = 1

// Reader decodes PCM 16-bit WAV recordings together with the device serial
// (INFO IART) and the recording timestamp (INFO ICMT).
type Reader struct{}

var (
	_ audio.ClipReader = Reader{}
	_ audio.TagReader  = Reader{}
)

// ReadClip decodes r. A file without an artist tag yields a clip with an empty
// DeviceID and no error; callers treat that as "no identifiable device".
func (Reader) ReadClip(r io.ReadSeeker) (*audio.Clip, error) {
	clip, err := Reader{}.ReadTags(r)
	if err != nil {
		return nil, err
	}

	if clip.DeviceID == "" {
		return clip, nil
	}

	samples, err := readPCM(r)
	if err != nil {
		return nil, err
	}
	clip.Samples = samples

	return clip, nil
}

// ReadTags returns the format, device and raw timestamp of r without
// decoding any PCM.
func (Reader) ReadTags(r io.ReadSeeker) (*audio.Clip, error) {
	dec, err := decoderAt(r)
	if err != nil {
		return nil, err
	}

	if !dec.IsValidFile() {
		if err := dec.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotWavFile, err)
		}
		return nil, ErrNotWavFile
	}
	if dec.WavAudioFormat != pcmFormat || dec.BitDepth != 16 {
		return nil, fmt.Errorf("%w: format %d, %d bits", ErrOnlyPCM16bitSupported, dec.WavAudioFormat, dec.BitDepth)
	}

	if err := checkChunks(r); err != nil {
		return nil, err
	}

	clip := &audio.Clip{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
	}

	if err := readTags(r, clip); err != nil {
		return nil, err
	}

	return clip, nil
}

// ReadFile opens path and decodes it with ReadClip.
func ReadFile(path string) (*audio.Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Reader{}.ReadClip(f)
}

// DeviceFromArtist strips the vendor prefix from an artist tag.
func DeviceFromArtist(artist string) string {
	return strings.TrimSpace(strings.ReplaceAll(cleanTag(artist), DevicePrefix, ""))
}

func decoderAt(r io.ReadSeeker) (*gowav.Decoder, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek: %w", err)
	}
	return gowav.NewDecoder(r), nil
}

func readTags(r io.ReadSeeker, clip *audio.Clip) error {
	dec, err := decoderAt(r)
	if err != nil {
		return err
	}

	dec.ReadMetadata()
	if err := dec.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading metadata: %w", err)
	}

	md := dec.Metadata
	if md == nil {
		return nil
	}

	clip.DeviceID = DeviceFromArtist(md.Artist)
	if clip.DeviceID == "" {
		return nil
	}

	raw, err := timestamp.FromComment(cleanTag(md.Comments))
	if err != nil {
		return fmt.Errorf("device %s: %w", clip.DeviceID, err)
	}
	clip.RecordedAt = raw

	return nil
}

func readPCM(r io.ReadSeeker) ([]int16, error) {
	dec, err := decoderAt(r)
	if err != nil {
		return nil, err
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("reading PCM: %w", err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, ErrNoSamples
	}

	return toInt16(buf), nil
}

func toInt16(buf *goaudio.IntBuffer) []int16 {
	out := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = int16(v)
	}
	return out
}

// INFO strings are NUL padded to an even length.
func cleanTag(s string) string {
	return strings.TrimSpace(strings.TrimRight(s, "\x00"))
}
