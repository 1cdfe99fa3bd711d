package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenMissing(t *testing.T) {
	dataDir := t.TempDir()

	cfg, err := Load(filepath.Join(dataDir, "missing.yaml"), dataDir)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:5556", cfg.Listen)
	assert.Equal(t, 2*time.Minute, cfg.Broker.RequestTimeout)
	assert.Equal(t, 50, cfg.Broker.HistoryLimit)
	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Len(t, cfg.Channels, 6)
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: 127.0.0.1:9000
directory:
  url: http://apps.local/directory.json
broker:
  request_timeout: 30s
  history_limit: 5
channels:
  - id: red
    name: Red
bindings:
  - pattern: "http://localhost:3000/**"
    app: Chart
`), 0o644))

	t.Setenv("DESKBUS_BROKER_HISTORY_LIMIT", "7")
	t.Setenv("DESKBUS_DIRECTORY_URL", "http://override.local/apps.json")

	cfg, err := Load(path, dir)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, 30*time.Second, cfg.Broker.RequestTimeout)
	assert.Equal(t, 7, cfg.Broker.HistoryLimit)
	assert.Equal(t, "http://override.local/apps.json", cfg.Directory.URL)
	assert.Equal(t, 5*time.Second, cfg.Broker.SweepInterval, "unset values keep defaults")
	require.Len(t, cfg.Channels, 1)
	assert.Equal(t, "red", cfg.Channels[0].ID)
	assert.Equal(t, []Binding{{Pattern: "http://localhost:3000/**", App: "Chart"}}, cfg.Bindings)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("broker:\n  request_timeout: 10ms\n"), 0o644))

	_, err := Load(path, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request_timeout")
}

func TestLoad_RequiresDataDir(t *testing.T) {
	_, err := Load("", "")
	require.Error(t, err)
}

func TestSystemChannel(t *testing.T) {
	cfg := DefaultConfig()

	ch, ok := cfg.SystemChannel("green")
	assert.True(t, ok)
	assert.Equal(t, "Green", ch.Name)

	_, ok = cfg.SystemChannel("nope")
	assert.False(t, ok)
}
