// SPDX-License-Identifier: EPL-2.0

package arraystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

const (
	groupMarker = "__uwloc_group.json"
	arrayFile   = "__array.db"
	groupFormat = "uwloc-group"
)

type groupInfo struct {
	Format  string    `json:"format"`
	Version int       `json:"version"`
	Created time.Time `json:"created"`
}

// CreateGroup makes path a group. ErrAlreadyExists is returned when it
// already is one.
func (c *Context) CreateGroup(path string) error {
	if c.IsGroup(path) {
		return fmt.Errorf("group %s: %w", path, ErrAlreadyExists)
	}

	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("create group dir: %w", err)
	}

	body, err := json.MarshalIndent(groupInfo{
		Format:  groupFormat,
		Version: 1,
		Created: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode group marker: %w", err)
	}

	if err := os.WriteFile(filepath.Join(path, groupMarker), body, 0o640); err != nil {
		return fmt.Errorf("write group marker: %w", err)
	}

	c.log.Debug("group created", zap.String("path", path))

	return nil
}

// IsGroup reports whether path holds a readable group marker.
func (c *Context) IsGroup(path string) bool {
	body, err := os.ReadFile(filepath.Join(path, groupMarker))
	if err != nil {
		return false
	}

	var info groupInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return false
	}

	return info.Format == groupFormat
}

// Exists reports whether uri holds an array.
func (c *Context) Exists(uri string) bool {
	st, err := os.Stat(filepath.Join(uri, arrayFile))
	if err != nil {
		return false
	}

	return st.Mode().IsRegular()
}

func (c *Context) removeArray(uri string) {
	if err := os.RemoveAll(uri); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.log.Warn("cannot remove partial array", zap.String("uri", uri), zap.Error(err))
	}
}
