package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "idxstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, "idxstore.db", cfg.Path)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, int64(1<<30), cfg.Quota)
	assert.Equal(t, "idxstore", cfg.Keyring.Service)
	assert.Equal(t, "records", cfg.Keyring.User)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Log.Pretty)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
backend: memory
timeout: 5s
quota: 1024
keyring:
  service: directory
log:
  level: debug
  pretty: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, int64(1024), cfg.Quota)
	assert.Equal(t, "directory", cfg.Keyring.Service)
	assert.Equal(t, "records", cfg.Keyring.User)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Pretty)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("IDXSTORE_BACKEND", "memory")
	t.Setenv("IDXSTORE_KEYRING_USER", "ops")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.Equal(t, "ops", cfg.Keyring.User)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"backend", "backend: redis\n", "unknown backend"},
		{"sqlite path", "path: \"\"\n", "path is required"},
		{"timeout", "timeout: -1s\n", "timeout"},
		{"quota", "quota: 0\n", "quota"},
		{"log level", "log:\n  level: loud\n", "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
