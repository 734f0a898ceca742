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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
listen: "0.0.0.0:3997"
allow:
  - "127.0.0.1/32"
  - "10.0.0.0/8"
logging:
  level: debug
metrics:
  enabled: true
  listen: "127.0.0.1:9997"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:3997", cfg.Listen)
	assert.Equal(t, []string{"127.0.0.1/32", "10.0.0.0/8"}, cfg.Allow)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadRejectsEmptyAllowList(t *testing.T) {
	path := writeConfig(t, `
listen: "0.0.0.0:3997"
allow: []
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsInvalidLogLevel(t *testing.T) {
	path := writeConfig(t, `
listen: "0.0.0.0:3997"
allow: ["127.0.0.1/32"]
logging:
  level: verbose
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMetricsWithoutListen(t *testing.T) {
	path := writeConfig(t, `
listen: "0.0.0.0:3997"
allow: ["127.0.0.1/32"]
metrics:
  enabled: true
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestDefaultLogLevel(t *testing.T) {
	path := writeConfig(t, `
listen: "0.0.0.0:3997"
allow: ["127.0.0.1/32"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
}
