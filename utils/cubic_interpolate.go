// SPDX-License-Identifier: EPL-2.0

package utils

// CatmullRom interpolates between p1 and p2 using the neighbours p0 and p3.
// t is the fractional position between p1 (t=0) and p2 (t=1).
func CatmullRom(p0, p1, p2, p3, t float32) float32 {
	a := -0.5*p0 + 1.5*p1 - 1.5*p2 + 0.5*p3
	b := p0 - 2.5*p1 + 2*p2 - 0.5*p3
	c := -0.5*p0 + 0.5*p2

	return ((a*t+b)*t+c)*t + p1
}
