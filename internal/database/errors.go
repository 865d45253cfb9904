// SPDX-License-Identifier: EPL-2.0

package database

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingDeviceID is not a failure: it tells the caller the recording
	// has no device tag and was skipped, the same way fs.SkipDir tells a walk
	// to skip a directory.
	ErrMissingDeviceID = errors.New("recording has no device id")

	// ErrNotFound means the path does not hold an initialised database.
	ErrNotFound = errors.New("database not found")

	// ErrNoRecordings means a directory holds no readable recording.
	ErrNoRecordings = errors.New("no readable recordings")
)

// FileError ties an import failure to its file.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e FileError) Unwrap() error {
	return e.Err
}
