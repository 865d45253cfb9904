// SPDX-License-Identifier: EPL-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 192000, cfg.Deployment.SampleRate)
	assert.Equal(t, int64(32), cfg.Deployment.MaxUnits)
	assert.Equal(t, int64(7), cfg.Deployment.MaxHours)
	assert.Equal(t, int64(60), cfg.Deployment.TileSeconds)
	assert.False(t, cfg.Import.Resample)
	assert.Equal(t, "WAL", cfg.Storage.JournalMode)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 10*time.Minute, cfg.Server.MaxSpan)
	assert.Empty(t, cfg.Validate())
}

func TestLoad_NoFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uwloc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
deployment:
  sample_rate: 48000
  max_units: 4
import:
  resample: true
storage:
  busy_timeout: 2s
logging:
  level: DEBUG
  format: json
server:
  max_span: 90s
watch:
  settle: 500ms
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 48000, cfg.Deployment.SampleRate)
	assert.Equal(t, int64(4), cfg.Deployment.MaxUnits)
	assert.Equal(t, int64(7), cfg.Deployment.MaxHours)
	assert.True(t, cfg.Import.Resample)
	assert.Equal(t, 2*time.Second, cfg.Storage.BusyTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 500*time.Millisecond, cfg.Watch.Settle)
	assert.Equal(t, 90*time.Second, cfg.Server.MaxSpan)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uwloc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("deployment:\n  max_hours: 3\n"), 0o600))

	t.Setenv("UWLOC_DEPLOYMENT_MAX_HOURS", "12")
	t.Setenv("UWLOC_SERVER_ADDR", ":9999")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(12), cfg.Deployment.MaxHours)
	assert.Equal(t, ":9999", cfg.Server.Addr)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uwloc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("deployment:\n  max_units: 0\nstorage:\n  journal_mode: fancy\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deployment.max_units")
	assert.Contains(t, err.Error(), "storage.journal_mode")
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Deployment.SampleRate = 0
	cfg.Logging.Format = "xml"
	cfg.Server.Addr = ""
	cfg.Server.MaxSpan = 500 * time.Millisecond
	cfg.Watch.TidyInterval = 0

	errs := cfg.Validate()
	require.Len(t, errs, 5)

	fields := make([]string, 0, len(errs))
	for _, err := range errs {
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		fields = append(fields, ve.Field)
	}

	assert.Equal(t, []string{"deployment.sample_rate", "logging.format", "server.addr", "server.max_span", "watch.tidy_interval"}, fields)
}

func TestDeploymentFor(t *testing.T) {
	cfg := DefaultConfig()
	start := time.Date(2023, 5, 17, 6, 32, 0, 0, time.FixedZone("UTC-4", -4*3600))

	d := cfg.DeploymentFor(start)
	assert.Equal(t, time.UTC, d.StartDate.Location())
	assert.True(t, d.StartDate.Equal(start))
	require.NoError(t, d.Validate())
}
