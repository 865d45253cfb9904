// SPDX-License-Identifier: EPL-2.0

package wav

import "errors"

var (
	ErrNotWavFile            = errors.New("not a WAV file")
	ErrOnlyPCM16bitSupported = errors.New("only PCM 16-bit supported")
	ErrNoSamples             = errors.New("WAV file holds no samples")
	ErrInvalidSampleRate     = errors.New("sample rate must be positive")
)
