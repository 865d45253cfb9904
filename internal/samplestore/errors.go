// SPDX-License-Identifier: EPL-2.0

package samplestore

import (
	"errors"
	"fmt"
)

var (
	ErrBeforeStartDate  = errors.New("timestamp is before the deployment start date")
	ErrCapacityExceeded = errors.New("segment exceeds deployment capacity")
	ErrRowOutOfRange    = errors.New("row outside the deployment units")
	ErrInvalidRange     = errors.New("invalid time range")
)

// CapacityError reports a segment that does not fit in a row.
type CapacityError struct {
	Offset   int64
	Length   int64
	Capacity int64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: offset %d + length %d > capacity %d",
		ErrCapacityExceeded, e.Offset, e.Length, e.Capacity)
}

func (e *CapacityError) Unwrap() error {
	return ErrCapacityExceeded
}
