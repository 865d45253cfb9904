// SPDX-License-Identifier: EPL-2.0

package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_Console(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	log, closeFn, err := New(DefaultConfig(), &buf)
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("imported", zap.String("file", "a.wav"))
	require.NoError(t, closeFn())

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "uwloc")
	assert.Contains(t, out, `"file": "a.wav"`)
}

func TestNew_JSONAndFile(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	cfg := DefaultConfig()
	cfg.Level = "debug"
	cfg.Format = FormatJSON
	cfg.File = filepath.Join(t.TempDir(), "logs", "uwloc.log")

	log, closeFn, err := New(cfg, &buf)
	require.NoError(t, err)

	log.Named("database").Debug("tidied", zap.String("path", "/data/db"))
	require.NoError(t, closeFn())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "uwloc.database", entry["logger"])
	assert.Equal(t, "tidied", entry["message"])

	body, err := os.ReadFile(cfg.File)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `"path":"/data/db"`))
}

func TestNew_Invalid(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Level = "loud"
	_, _, err := New(cfg, &bytes.Buffer{})
	require.Error(t, err)

	cfg = DefaultConfig()
	cfg.Format = "xml"
	_, _, err = New(cfg, &bytes.Buffer{})
	require.Error(t, err)
}
