// SPDX-License-Identifier: EPL-2.0

package registry

import "errors"

var (
	// ErrInvariantViolation means a device would end up with two rows, or a
	// row with two devices.
	ErrInvariantViolation = errors.New("device registry invariant violated")

	// ErrUnitsExhausted means every row of the deployment is taken.
	ErrUnitsExhausted = errors.New("no free device rows left")
)
