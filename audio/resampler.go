// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"fmt"

	"github.com/ik5/uwloc/utils"
)

// Resample converts mono PCM from srcRate to dstRate using Catmull-Rom
// interpolation. When downsampling, a one-pole low-pass filter runs ahead of
// the interpolator to tame aliasing.
func Resample(mono []int16, srcRate, dstRate int) ([]int16, error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("%w: %d -> %d", ErrInvalidSampleRate, srcRate, dstRate)
	}

	if srcRate == dstRate || len(mono) == 0 {
		out := make([]int16, len(mono))
		copy(out, mono)
		return out, nil
	}

	src := make([]float32, len(mono))
	for i, s := range mono {
		src[i] = float32(s)
	}

	if srcRate > dstRate {
		lowPass(src, 0.5)
	}

	// srcRate / dstRate source samples per output sample
	ratio := float64(srcRate) / float64(dstRate)
	n := int(int64(len(mono)) * int64(dstRate) / int64(srcRate))
	out := make([]int16, n)

	last := len(src) - 1
	at := func(i int) float32 {
		if i < 0 {
			return src[0]
		}
		if i > last {
			return src[last]
		}
		return src[i]
	}

	for i := range n {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))

		v := utils.CatmullRom(at(idx-1), at(idx), at(idx+1), at(idx+2), frac)
		out[i] = utils.RoundToInt16(v)
	}

	return out, nil
}

// lowPass runs y[n] = alpha*x[n] + (1-alpha)*y[n-1] in place, seeded with the
// first sample to avoid a warm-up transient.
func lowPass(x []float32, alpha float32) {
	if len(x) == 0 {
		return
	}

	state := x[0]
	for i, v := range x {
		state = alpha*v + (1-alpha)*state
		x[i] = state
	}
}
