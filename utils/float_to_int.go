package utils

import "math"

// RoundToInt16 rounds x to the nearest int16, saturating at the type bounds.
// x is expressed in PCM units, not in [-1, 1].
func RoundToInt16(x float32) int16 {
	if x >= math.MaxInt16 {
		return math.MaxInt16
	}
	if x <= math.MinInt16 {
		return math.MinInt16
	}

	return int16(math.Round(float64(x)))
}
