// SPDX-License-Identifier: EPL-2.0

package timestamp

import "errors"

var (
	// ErrMalformedTimestamp is returned for strings that do not follow the
	// device layout or carry no usable UTC offset.
	ErrMalformedTimestamp = errors.New("malformed timestamp")

	// ErrNoTimestampInComment is returned when a comment has no
	// "Recorded at ... by" section.
	ErrNoTimestampInComment = errors.New("no timestamp in comment")
)
