// SPDX-License-Identifier: EPL-2.0

package audio

import "fmt"

// Conform returns the clip as mono PCM at rate.
//
// Multi-channel clips are averaged to mono. A clip recorded at a different
// rate fails with ErrSampleRateMismatch unless allowResample is set, in which
// case it is resampled.
func Conform(c *Clip, rate int, allowResample bool) ([]int16, error) {
	if rate <= 0 || c.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: clip %d Hz, target %d Hz", ErrInvalidSampleRate, c.SampleRate, rate)
	}

	mono, err := MixToMono(c.Samples, c.Channels)
	if err != nil {
		return nil, err
	}

	if c.SampleRate == rate {
		return mono, nil
	}

	if !allowResample {
		return nil, fmt.Errorf("%w: clip %d Hz, deployment %d Hz", ErrSampleRateMismatch, c.SampleRate, rate)
	}

	return Resample(mono, c.SampleRate, rate)
}
