// SPDX-License-Identifier: EPL-2.0

package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"
	"github.com/ik5/uwloc/timestamp"
)

const testDevice = "24F3190361DA539A"

func tempWAV(t *testing.T, rate, channels int, samples []int16, tags Tags) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "rec.WAV")
	if err := WriteTaggedFile(path, rate, channels, samples, tags); err != nil {
		t.Fatalf("WriteTaggedFile() error = %v", err)
	}
	return path
}

func TestReadFile_RoundTrip(t *testing.T) {
	t.Parallel()

	samples := []int16{0, 1000, -1000, 32767, -32768, 42}
	ts := time.Date(2023, 5, 17, 10, 32, 0, 0, time.FixedZone("UTC-4", -4*3600))

	path := tempWAV(t, 8000, 1, samples, Tags{DeviceID: testDevice, RecordedAt: ts})

	clip, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	if clip.DeviceID != testDevice {
		t.Errorf("DeviceID = %q, want %q", clip.DeviceID, testDevice)
	}
	if clip.RecordedAt != "10:32:00 17/05/2023 (UTC-4)" {
		t.Errorf("RecordedAt = %q", clip.RecordedAt)
	}
	if clip.SampleRate != 8000 || clip.Channels != 1 {
		t.Errorf("format = %d Hz x %d, want 8000 Hz x 1", clip.SampleRate, clip.Channels)
	}
	if !slices.Equal(clip.Samples, samples) {
		t.Errorf("Samples = %v, want %v", clip.Samples, samples)
	}

	parsed, err := timestamp.Parse(clip.RecordedAt)
	if err != nil {
		t.Fatalf("timestamp.Parse() error = %v", err)
	}
	if !parsed.Equal(ts) {
		t.Errorf("parsed timestamp = %v, want %v", parsed, ts)
	}
}

func TestWriteTagged_EntryLengths(t *testing.T) {
	t.Parallel()

	ts := time.Date(2023, 5, 17, 10, 32, 0, 0, time.UTC)

	// Each id gives the artist and comment entries a different parity.
	for _, id := range []string{testDevice, "ABC", "AB", "7"} {
		t.Run(id, func(t *testing.T) {
			t.Parallel()

			path := tempWAV(t, 8000, 1, []int16{1, 2, 3}, Tags{DeviceID: id, RecordedAt: ts})

			f, err := os.Open(path)
			if err != nil {
				t.Fatal(err)
			}
			defer f.Close()

			dec := gowav.NewDecoder(f)
			dec.ReadMetadata()
			if dec.Metadata == nil {
				t.Fatalf("no INFO metadata, err = %v", dec.Err())
			}
			if got, want := dec.Metadata.Artist, DevicePrefix+" "+id; got != want {
				t.Errorf("Artist = %q, want %q", got, want)
			}
			if got, want := dec.Metadata.Comments, RecorderComment(id, ts); got != want {
				t.Errorf("Comments = %q, want %q", got, want)
			}

			clip, err := ReadFile(path)
			if err != nil {
				t.Fatalf("ReadFile() error = %v", err)
			}
			if clip.DeviceID != id || clip.RecordedAt != "10:32:00 17/05/2023 (UTC)" {
				t.Errorf("clip = %q at %q", clip.DeviceID, clip.RecordedAt)
			}
		})
	}
}

func TestReadTags_SkipsSamples(t *testing.T) {
	t.Parallel()

	ts := time.Date(2023, 5, 17, 10, 32, 0, 0, time.UTC)
	path := tempWAV(t, 8000, 1, []int16{1, 2, 3, 4}, Tags{DeviceID: testDevice, RecordedAt: ts})

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	clip, err := Reader{}.ReadTags(f)
	if err != nil {
		t.Fatalf("ReadTags() error = %v", err)
	}
	if clip.DeviceID != testDevice || clip.RecordedAt != "10:32:00 17/05/2023 (UTC)" {
		t.Errorf("clip = %q at %q", clip.DeviceID, clip.RecordedAt)
	}
	if clip.SampleRate != 8000 || clip.Channels != 1 {
		t.Errorf("format = %d Hz x %d", clip.SampleRate, clip.Channels)
	}
	if clip.Samples != nil {
		t.Errorf("Samples = %v, want nil", clip.Samples)
	}
}

// patchChunkSize overwrites the size field of the first chunk named id.
func patchChunkSize(t *testing.T, path, id string, size uint32) {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	i := bytes.Index(data, []byte(id))
	if i < 0 {
		t.Fatalf("%s chunk not found", id)
	}
	binary.LittleEndian.PutUint32(data[i+4:], size)

	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestReadFile_OversizedChunks(t *testing.T) {
	t.Parallel()

	ts := time.Date(2023, 5, 17, 10, 32, 0, 0, time.UTC)

	tests := []struct {
		name string
		id   string
		size uint32
	}{
		{"comment entry", "ICMT", 0xF0000000},
		{"artist entry past list", "IART", 4096},
		{"list chunk", "LIST", 0x7FFFFFF0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := tempWAV(t, 8000, 1, []int16{1, 2, 3, 4}, Tags{DeviceID: testDevice, RecordedAt: ts})
			patchChunkSize(t, path, tt.id, tt.size)

			if _, err := ReadFile(path); !errors.Is(err, ErrNotWavFile) {
				t.Errorf("ReadFile() error = %v, want ErrNotWavFile", err)
			}
		})
	}
}

func TestReadFile_Stereo(t *testing.T) {
	t.Parallel()

	samples := []int16{1, 2, 3, 4, 5, 6}
	path := tempWAV(t, 48000, 2, samples, Tags{DeviceID: "UNIT2", RecordedAt: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)})

	clip, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if clip.Channels != 2 || clip.Frames() != 3 {
		t.Errorf("channels = %d, frames = %d, want 2 and 3", clip.Channels, clip.Frames())
	}
}

func TestReadFile_MissingArtist(t *testing.T) {
	t.Parallel()

	path := tempWAV(t, 8000, 1, []int16{1, 2, 3}, Tags{})

	clip, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v, want nil for untagged file", err)
	}
	if clip.DeviceID != "" {
		t.Errorf("DeviceID = %q, want empty", clip.DeviceID)
	}
}

func TestReadFile_CommentWithoutTimestamp(t *testing.T) {
	t.Parallel()

	path := tempWAV(t, 8000, 1, []int16{1, 2, 3}, Tags{DeviceID: testDevice, Comment: "field test"})

	_, err := ReadFile(path)
	if !errors.Is(err, timestamp.ErrNoTimestampInComment) {
		t.Errorf("ReadFile() error = %v, want ErrNoTimestampInComment", err)
	}
}

func TestReadClip_StreamedFileHasNoDevice(t *testing.T) {
	t.Parallel()

	buf := new(bytes.Buffer)
	if err := WriteWAV16(buf, 8000, []int16{5, 6, 7, 8}); err != nil {
		t.Fatalf("WriteWAV16() error = %v", err)
	}

	clip, err := Reader{}.ReadClip(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadClip() error = %v", err)
	}
	if clip.DeviceID != "" || clip.SampleRate != 8000 {
		t.Errorf("clip = %+v", clip)
	}
}

func TestReadClip_NotWAV(t *testing.T) {
	t.Parallel()

	for _, data := range [][]byte{
		[]byte("NOT A WAV FILE DATA, JUST TEXT THAT IS LONG ENOUGH TO LOOK LIKE A HEADER"),
		[]byte("RIFF\x00"),
		{},
	} {
		if _, err := (Reader{}).ReadClip(bytes.NewReader(data)); !errors.Is(err, ErrNotWavFile) {
			t.Errorf("ReadClip(%q) error = %v, want ErrNotWavFile", data, err)
		}
	}
}

func TestReadClip_Rejects8Bit(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "8bit.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}

	enc := gowav.NewEncoder(f, 8000, 8, 1, 1)
	buf := &goaudio.IntBuffer{
		Data:           []int{10, 20, 30, 40},
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: 8000},
		SourceBitDepth: 8,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	if _, err := ReadFile(path); !errors.Is(err, ErrOnlyPCM16bitSupported) {
		t.Errorf("ReadFile() error = %v, want ErrOnlyPCM16bitSupported", err)
	}
}

func TestReadFile_Missing(t *testing.T) {
	t.Parallel()

	if _, err := ReadFile(filepath.Join(t.TempDir(), "absent.wav")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ReadFile() error = %v, want os.ErrNotExist", err)
	}
}

func TestDeviceFromArtist(t *testing.T) {
	t.Parallel()

	tests := []struct {
		artist string
		want   string
	}{
		{"AudioMoth 24F3190361DA539A", "24F3190361DA539A"},
		{"AudioMoth 24F3190361DA539A\x00", "24F3190361DA539A"},
		{"  AudioMoth   ABC  ", "ABC"},
		{"AudioMoth", ""},
		{"", ""},
		{"HydroMoth-7", "HydroMoth-7"},
	}

	for _, tt := range tests {
		if got := DeviceFromArtist(tt.artist); got != tt.want {
			t.Errorf("DeviceFromArtist(%q) = %q, want %q", tt.artist, got, tt.want)
		}
	}
}

func TestRecorderComment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ts   time.Time
		want string
	}{
		{
			ts:   time.Date(2023, 4, 25, 15, 9, 20, 0, time.UTC),
			want: "Recorded at 15:09:20 25/04/2023 (UTC) by AudioMoth X1 at medium gain.",
		},
		{
			ts:   time.Date(2023, 4, 25, 15, 9, 20, 0, time.FixedZone("", 3*3600)),
			want: "Recorded at 15:09:20 25/04/2023 (UTC+3) by AudioMoth X1 at medium gain.",
		},
	}

	for _, tt := range tests {
		if got := RecorderComment("X1", tt.ts); got != tt.want {
			t.Errorf("RecorderComment() = %q, want %q", got, tt.want)
		}
	}
}
