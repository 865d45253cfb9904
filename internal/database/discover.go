// SPDX-License-Identifier: EPL-2.0

package database

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/ik5/uwloc/audio"
	"github.com/ik5/uwloc/timestamp"
	"go.uber.org/zap"
)

// Discover lists every regular file under dir that one of readers handles,
// in sorted path order.
func Discover(dir string, readers *audio.Registry) ([]string, error) {
	var paths []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.Type().IsRegular() {
			return nil
		}

		if _, ok := readers.ForPath(path); ok {
			paths = append(paths, path)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}

	slices.Sort(paths)

	return paths, nil
}

// FindStartDate returns the earliest recording time found under dir.
// Unreadable and untagged files are logged and ignored.
func FindStartDate(dir string, readers *audio.Registry, log *zap.Logger) (time.Time, error) {
	if log == nil {
		log = zap.NewNop()
	}

	paths, err := Discover(dir, readers)
	if err != nil {
		return time.Time{}, err
	}

	var earliest time.Time

	for _, path := range paths {
		ts, ok, err := recordedAt(path, readers)
		if err != nil {
			log.Warn("cannot read recording time", zap.String("file", path), zap.Error(err))
			continue
		}

		if ok && (earliest.IsZero() || ts.Before(earliest)) {
			earliest = ts
		}
	}

	if earliest.IsZero() {
		return time.Time{}, fmt.Errorf("%w under %s", ErrNoRecordings, dir)
	}

	return earliest.UTC(), nil
}

func recordedAt(path string, readers *audio.Registry) (time.Time, bool, error) {
	cr, ok := readers.ForPath(path)
	if !ok {
		return time.Time{}, false, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, false, err
	}
	defer f.Close()

	var clip *audio.Clip
	if tr, ok := cr.(audio.TagReader); ok {
		clip, err = tr.ReadTags(f)
	} else {
		clip, err = cr.ReadClip(f)
	}
	if err != nil {
		return time.Time{}, false, err
	}

	if clip.DeviceID == "" {
		return time.Time{}, false, nil
	}

	ts, err := timestamp.Parse(clip.RecordedAt)
	if err != nil {
		return time.Time{}, false, err
	}

	return ts, true, nil
}
