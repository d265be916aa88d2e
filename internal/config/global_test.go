package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
node:
  id: node-1
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "node-1", cfg.Node.ID)
	assert.Equal(t, "/var/run/engine.sock", cfg.Control.Socket)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9191", cfg.Metrics.Listen)
	assert.Equal(t, 30, cfg.Session.IdleTimeoutMinutes)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
node:
  id: node-2
metrics:
  enabled: false
  listen: ":9999"
store:
  driver: sqlite
  dsn: "file:other.db"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9999", cfg.Metrics.Listen)
	assert.Equal(t, "file:other.db", cfg.Store.DSN)
}

func TestLoadRejectsClusterEnabledWithNoNodes(t *testing.T) {
	path := writeConfig(t, `
cluster:
  enabled: true
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadAcceptsClusterEnabledWithNodes(t *testing.T) {
	path := writeConfig(t, `
cluster:
  enabled: true
  nodes:
    - node-a
    - node-b
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Cluster.Enabled)
	assert.Equal(t, []string{"node-a", "node-b"}, cfg.Cluster.Nodes)
}

func TestLoadClampsNonPositiveSessionDurations(t *testing.T) {
	path := writeConfig(t, `
session:
  idle_timeout_minutes: -5
  cleanup_interval_minutes: 0
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Session.IdleTimeoutMinutes)
	assert.Equal(t, 5, cfg.Session.CleanupIntervalMins)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}
