// SPDX-License-Identifier: EPL-2.0

package utils

import "time"

const secondsPerHour = 3600

// SamplesForSeconds returns the number of samples that sec seconds span at rate.
func SamplesForSeconds(sec int64, rate int) int64 {
	return sec * int64(rate)
}

// SamplesForHours returns the number of samples that hrs hours span at rate.
func SamplesForHours(hrs int64, rate int) int64 {
	return SamplesForSeconds(hrs*secondsPerHour, rate)
}

// SampleOffset returns round((ts - start) * rate) in samples.
//
// The whole-second part and the sub-second part are scaled separately so the
// product cannot overflow int64 for any deployment that fits in the array
// domain. A ts before start yields a negative offset; callers are expected to
// reject it.
func SampleOffset(start, ts time.Time, rate int) int64 {
	d := ts.Sub(start)
	neg := d < 0
	if neg {
		d = -d
	}

	secs := int64(d / time.Second)
	rem := int64(d % time.Second)

	// half-up rounding of the fractional sample
	frac := (rem*int64(rate) + int64(time.Second)/2) / int64(time.Second)
	off := secs*int64(rate) + frac

	if neg {
		return -off
	}
	return off
}

// SecondsForSamples is the inverse of SamplesForSeconds, truncating partial seconds.
func SecondsForSamples(n int64, rate int) int64 {
	if rate <= 0 {
		return 0
	}
	return n / int64(rate)
}
