package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8460", cfg.Server.Listen)
	assert.Equal(t, "Key", cfg.Server.DefaultKeyColumn)
	assert.Empty(t, cfg.Server.Secret, "default deployment is open")
	assert.Equal(t, 30*time.Second, cfg.Client.PollInterval)
	assert.Equal(t, 15*time.Second, cfg.Client.CallTimeout)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
server:
  listen: ":9000"
  secret: s3cret
  sources:
    - sheet: holdings
      path: /data/holdings.csv
      keyColumn: Ticker
client:
  serverUrl: http://sync.internal:9000
  pollInterval: 10s
  views:
    - id: dash-holdings
      sheet: holdings
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":9000", cfg.Server.Listen)
	assert.Equal(t, "s3cret", cfg.Server.Secret)
	require.Len(t, cfg.Server.Sources, 1)
	assert.Equal(t, "Ticker", cfg.Server.Sources[0].KeyColumn)
	assert.Equal(t, 10*time.Second, cfg.Client.PollInterval)
	require.Len(t, cfg.Client.Views, 1)
	assert.Equal(t, "dash-holdings", cfg.Client.Views[0].ID)

	// Untouched sections keep their defaults.
	assert.Equal(t, "./data", cfg.Server.DataDir)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GRIDSYNC_SECRET", "env-secret")
	t.Setenv("GRIDSYNC_TOKEN", "env-token")
	t.Setenv("GRIDSYNC_SHARED_CACHE_DSN", "postgres://cache")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  secret: file-secret\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.Server.Secret, "environment wins over the file")
	assert.Equal(t, "env-token", cfg.Client.Token)
	assert.Equal(t, "postgres://cache", cfg.Client.SharedCacheDSN)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
