// SPDX-License-Identifier: EPL-2.0

// Package audio holds the format-independent side of recording ingestion.
//
// This package contains:
//   - Clip, one decoded recording with its device tags
//   - ClipReader, implemented by each container format (see formats/wav)
//   - TagReader, the optional tags-only read path of a ClipReader
//   - Registry, mapping file extensions to readers
//   - MixToMono, Resample and Conform, which bring a clip to the single
//     channel, fixed rate layout of the sample store
//
// # Registry
//
// Readers are registered by extension and looked up case-insensitively, so
// "REC_001.WAV" and "rec_001.wav" resolve to the same reader:
//
//	reg := audio.NewRegistry()
//	reg.Register("wav", wav.Reader{})
//	cr, ok := reg.ForPath("/data/unit7/20230517_103200.WAV")
//
// # Conforming
//
// The sample store keeps one channel per device at one deployment-wide rate.
// Conform averages interleaved channels and refuses a foreign sample rate
// unless resampling was asked for:
//
//	mono, err := audio.Conform(clip, 192000, false)
//	if errors.Is(err, audio.ErrSampleRateMismatch) {
//	    // recorder configured with another rate
//	}
//
// Resampling uses Catmull-Rom interpolation with a one-pole low-pass filter
// when downsampling. It is good enough to line up a stray recording with the
// rest of a deployment, not a mastering-grade converter.
package audio
