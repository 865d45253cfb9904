// SPDX-License-Identifier: EPL-2.0

// Package wav reads and writes the WAV files produced by acoustic field
// recorders.
//
// It uses the github.com/go-audio library for RIFF parsing and for the
// LIST/INFO metadata chunk, where recorders keep their identity:
//
//	IART  "AudioMoth 24F3190361DA539A"
//	ICMT  "Recorded at 15:09:20 25/04/2023 (UTC) by AudioMoth 24F3190361DA539A ..."
//
// # Reading
//
// Reader implements audio.ClipReader:
//
//	clip, err := wav.ReadFile("/data/unit7/20230425_150920.WAV")
//	// clip.DeviceID   == "24F3190361DA539A"
//	// clip.RecordedAt == "15:09:20 25/04/2023 (UTC)"
//
// Reader also implements audio.TagReader; ReadTags stops after the INFO
// chunk, which is all a start date scan needs.
//
// Chunk sizes are checked against the file before any chunk is decoded, so a
// corrupted LIST header is reported as ErrNotWavFile.
//
// Only PCM 16-bit is accepted. A file without an artist tag decodes to a
// clip with an empty DeviceID and no samples; the caller decides to skip it.
//
// # Writing
//
// WriteWAV16 streams a mono file to any io.Writer and is used to hand out
// slices of the sample store. WriteTagged goes through the go-audio encoder
// and adds the INFO tags a recorder would, which is what test fixtures and
// per-device exports need.
//
// # Errors
//
//   - ErrNotWavFile: the input is not a RIFF/WAVE file or a chunk overruns it
//   - ErrOnlyPCM16bitSupported: compressed, float or non 16-bit data
//   - ErrNoSamples: a tagged file without a data chunk
package wav
