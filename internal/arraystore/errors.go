// SPDX-License-Identifier: EPL-2.0

package arraystore

import "errors"

var (
	ErrAlreadyExists = errors.New("object already exists")
	ErrNotFound      = errors.New("object not found")
	ErrOutOfBounds   = errors.New("coordinates outside the array domain")
	ErrKindMismatch  = errors.New("array kind mismatch")
	ErrInvalidSchema = errors.New("invalid array schema")
	ErrInvalidCell   = errors.New("invalid cell")
)
