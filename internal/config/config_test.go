package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("FAIMS2MZML_CONFIG", filepath.Join(t.TempDir(), "absent.toml"))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeoutMinutes, cfg.TimeoutMinutes)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.HistoryEnabled)
}

func TestLoadConfigFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "faims2mzml.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
[convert]
timeout_minutes = 30
renumber_scans = true

[logging]
level = "debug"

[history]
enabled = true
`), 0644))

	t.Setenv("FAIMS2MZML_CONFIG", configPath)
	t.Setenv("FAIMS2MZML_TIMEOUT_MINUTES", "45")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	// Environment overrides the file.
	assert.Equal(t, 45, cfg.TimeoutMinutes)
	assert.True(t, cfg.RenumberScans)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigHistoryDefaults(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "faims2mzml.toml")

	// A config file without a [history] section keeps history enabled.
	require.NoError(t, os.WriteFile(configPath, []byte(`
[logging]
level = "warn"
`), 0644))
	t.Setenv("FAIMS2MZML_CONFIG", configPath)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.HistoryEnabled)

	// An explicit enabled = false still turns it off.
	require.NoError(t, os.WriteFile(configPath, []byte(`
[history]
enabled = false
`), 0644))

	cfg, err = LoadConfig()
	require.NoError(t, err)
	assert.False(t, cfg.HistoryEnabled)
}

func TestValidate(t *testing.T) {
	cfg := &Config{InputPath: "sample.raw", TimeoutMinutes: 10}
	assert.NoError(t, cfg.Validate())

	cfg = &Config{}
	assert.Error(t, cfg.Validate())

	cfg = &Config{InputPath: "sample.raw", ScanStart: 100, ScanEnd: 50}
	assert.Error(t, cfg.Validate())

	cfg = &Config{InputPath: "sample.raw", RecurseDepth: -1}
	assert.Error(t, cfg.Validate())
}

func TestResolveHistoryDBPath(t *testing.T) {
	cfg := &Config{HistoryDBPath: "/tmp/custom.sqlite3"}
	assert.Equal(t, "/tmp/custom.sqlite3", cfg.ResolveHistoryDBPath())

	cfg = &Config{OutputDir: "/data/out"}
	assert.Equal(t, filepath.Join("/data/out", "faims2mzml_history.sqlite3"), cfg.ResolveHistoryDBPath())

	cfg = &Config{}
	assert.Equal(t, filepath.Join(".", "faims2mzml_history.sqlite3"), cfg.ResolveHistoryDBPath())
}
