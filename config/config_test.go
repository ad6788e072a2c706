package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettings(t *testing.T) {
	settings := DefaultSettings()
	assert.Equal(t, []string{"server", "client"}, settings.ActiveModules)
	assert.Equal(t, "header", settings.APIKeyType)
	assert.Equal(t, "body_json", settings.SendParamsType)
	assert.Equal(t, "memory", settings.SessionBackend)
	assert.Empty(t, settings.BackendGatewayToken)
	assert.False(t, settings.MaintenanceMode)
}

func TestLoadSettings(t *testing.T) {
	t.Run("Missing file keeps defaults", func(t *testing.T) {
		settings, err := LoadSettings(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "header", settings.APIKeyType)
	})

	t.Run("YAML file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "settings.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
backend_gateway_token: file-token
performance_tracing: true
log_max_rows: 5000
active_modules:
  - server
`), 0o644))

		settings, err := LoadSettings(path)
		require.NoError(t, err)
		assert.Equal(t, "file-token", settings.BackendGatewayToken)
		assert.True(t, settings.PerformanceTracing)
		assert.Equal(t, int64(5000), settings.LogMaxRows)
		assert.True(t, settings.ModuleActive("server"))
		assert.False(t, settings.ModuleActive("client"))
	})

	t.Run("Unparsable file falls back to defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "settings.yaml")
		require.NoError(t, os.WriteFile(path, []byte("{{not yaml"), 0o644))

		settings, err := LoadSettings(path)
		require.NoError(t, err)
		assert.Equal(t, "header", settings.APIKeyType)
		assert.Empty(t, settings.BackendGatewayToken)
	})

	t.Run("Environment overrides the file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "settings.yaml")
		require.NoError(t, os.WriteFile(path, []byte("backend_gateway_token: file-token\n"), 0o644))

		t.Setenv("BACKEND_GATEWAY_TOKEN", "env-token")
		t.Setenv("TRACK_ERROR_RESULT", "true")
		t.Setenv("LOG_MAX_TIME", "86400")
		t.Setenv("SESSION_BACKEND", "redis")

		settings, err := LoadSettings(path)
		require.NoError(t, err)
		assert.Equal(t, "env-token", settings.BackendGatewayToken)
		assert.True(t, settings.TrackErrorResult)
		assert.Equal(t, int64(86400), settings.LogMaxTime)
		assert.Equal(t, "redis", settings.SessionBackend)
	})

	t.Run("Invalid environment values are ignored", func(t *testing.T) {
		t.Setenv("TRACK_ERROR_RESULT", "definitely")
		t.Setenv("LOG_MAX_ROWS", "lots")

		settings, err := LoadSettings(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.False(t, settings.TrackErrorResult)
		assert.Zero(t, settings.LogMaxRows)
	})
}

func TestModuleActive(t *testing.T) {
	settings := &Settings{ActiveModules: []string{"server"}}
	assert.True(t, settings.ModuleActive("server"))
	assert.False(t, settings.ModuleActive("client"))
	assert.False(t, (&Settings{}).ModuleActive("server"))
}
