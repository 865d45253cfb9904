// SPDX-License-Identifier: EPL-2.0

package audio

import "errors"

var (
	ErrInvalidChannels    = errors.New("channel count must be positive and divide the sample count")
	ErrInvalidSampleRate  = errors.New("sample rate must be positive")
	ErrSampleRateMismatch = errors.New("clip sample rate differs from deployment sample rate")
)
