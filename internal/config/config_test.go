package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
upstream:
  base_url: http://alerts.internal:8000
  max_retries: 2
session:
  store: memory
refresh:
  interval: 10s
`), 0o600))

	cfg, err := Load("test", path)
	require.NoError(t, err)

	assert.Equal(t, "http://alerts.internal:8000", cfg.Upstream.BaseURL)
	assert.Equal(t, "/api/v1", cfg.Upstream.APIPrefix)
	assert.Equal(t, 2, cfg.Upstream.MaxRetries)
	assert.Equal(t, "memory", cfg.Session.Store)
	assert.Equal(t, "auth_token", cfg.Session.TokenKey)
	assert.Equal(t, 10*time.Second, cfg.Refresh.IntervalDuration())
	assert.Equal(t, 30*time.Second, cfg.Upstream.TimeoutDuration())
	assert.Same(t, cfg, Get())
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte("upstream:\n  base_url: http://from-file\n"), 0o600))
	t.Setenv("APP_UPSTREAM_BASE_URL", "http://from-env")

	cfg, err := Load("test", path)
	require.NoError(t, err)
	assert.Equal(t, "http://from-env", cfg.Upstream.BaseURL)
}

func TestLoadRejectsUnknownStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session:\n  store: cookie\n"), 0o600))

	_, err := Load("test", path)
	assert.Error(t, err)
}

func TestRefreshIntervalFallback(t *testing.T) {
	assert.Equal(t, 30*time.Second, RefreshConfig{Interval: "nonsense"}.IntervalDuration())
	assert.Equal(t, time.Duration(0), RefreshConfig{Interval: "0"}.IntervalDuration())
}
