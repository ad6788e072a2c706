package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Settings is the immutable configuration snapshot for the gateway. It is
// built once at startup and handed to the access gate, dispatcher, audit
// logger and REST client; nothing re-reads configuration mid-request.
type Settings struct {
	// ActiveModules lists the enabled halves of the module ("server",
	// "client").
	ActiveModules []string `yaml:"active_modules"`

	// BackendGatewayToken guards the gateway surface. An empty token means
	// the gateway rejects every call with a configuration error.
	BackendGatewayToken string `yaml:"backend_gateway_token"`

	// PerformanceTracing enables audit logging of successful calls.
	PerformanceTracing bool `yaml:"performance_tracing"`

	// TrackErrorResult enables audit logging of failed call results even
	// when tracing is off.
	TrackErrorResult bool `yaml:"track_error_result"`

	// Log retention limits for the periodic sweep. Zero disables the
	// corresponding limit.
	LogMaxTime int64 `yaml:"log_max_time"` // seconds
	LogMaxRows int64 `yaml:"log_max_rows"`

	// Outbound REST client settings.
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	APIKeyType     string `yaml:"api_key_type"`     // get | header | basic
	SendParamsType string `yaml:"send_params_type"` // get | body_json
	SkipSSL        bool   `yaml:"skip_ssl"`
	ProxyServer    string `yaml:"proxy_server"`

	// Session handling.
	SessionSecret  string `yaml:"session_secret"`
	SessionBackend string `yaml:"session_backend"` // memory | redis
	RedisAddr      string `yaml:"redis_addr"`
	RedisUsername  string `yaml:"redis_username"`
	RedisPassword  string `yaml:"redis_password"`
	RedisDB        int    `yaml:"redis_db"`

	// MaintenanceMode makes isAlive report the service as unavailable.
	MaintenanceMode bool `yaml:"maintenance_mode"`
}

// DefaultSettings returns the built-in configuration values.
func DefaultSettings() *Settings {
	return &Settings{
		ActiveModules:  []string{"server", "client"},
		APIKeyType:     "header",
		SendParamsType: "body_json",
		SessionBackend: "memory",
	}
}

// LoadSettings builds the configuration snapshot: defaults, overridden by an
// optional YAML settings file, overridden by environment variables. A missing
// settings file is not an error; an unreadable or unparsable one is reported
// and the defaults are kept.
func LoadSettings(configPath string) (*Settings, error) {
	settings := DefaultSettings()

	if configPath == "" {
		configPath = GetEnvOrDefault("SETTINGS_PATH", "config/settings.yaml")
	}

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
		// Defaults plus environment only.
	case err != nil:
		return nil, fmt.Errorf("failed to read settings file %s: %w", configPath, err)
	default:
		if err := yaml.Unmarshal(data, settings); err != nil {
			slog.Warn("Failed to parse settings file, using defaults", "path", configPath, "error", err)
			settings = DefaultSettings()
		}
	}

	applyEnvOverrides(settings)
	return settings, nil
}

// applyEnvOverrides layers environment variables over the loaded settings.
func applyEnvOverrides(s *Settings) {
	if v := os.Getenv("BACKEND_GATEWAY_TOKEN"); v != "" {
		s.BackendGatewayToken = v
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		s.BaseURL = v
	}
	if v := os.Getenv("API_KEY"); v != "" {
		s.APIKey = v
	}
	if v := os.Getenv("API_KEY_TYPE"); v != "" {
		s.APIKeyType = v
	}
	if v := os.Getenv("SEND_PARAMS_TYPE"); v != "" {
		s.SendParamsType = v
	}
	if v := os.Getenv("PROXY_SERVER"); v != "" {
		s.ProxyServer = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		s.SessionSecret = v
	}
	if v := os.Getenv("SESSION_BACKEND"); v != "" {
		s.SessionBackend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		s.RedisAddr = v
	}
	if v := os.Getenv("REDIS_USERNAME"); v != "" {
		s.RedisUsername = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		s.RedisPassword = v
	}

	if v, ok := envBool("PERFORMANCE_TRACING"); ok {
		s.PerformanceTracing = v
	}
	if v, ok := envBool("TRACK_ERROR_RESULT"); ok {
		s.TrackErrorResult = v
	}
	if v, ok := envBool("SKIP_SSL"); ok {
		s.SkipSSL = v
	}
	if v, ok := envBool("MAINTENANCE_MODE"); ok {
		s.MaintenanceMode = v
	}

	if v, ok := envInt64("LOG_MAX_TIME"); ok {
		s.LogMaxTime = v
	}
	if v, ok := envInt64("LOG_MAX_ROWS"); ok {
		s.LogMaxRows = v
	}
	if v, ok := envInt64("REDIS_DB"); ok {
		s.RedisDB = int(v)
	}
}

// ModuleActive reports whether the named module half is enabled.
func (s *Settings) ModuleActive(name string) bool {
	for _, m := range s.ActiveModules {
		if m == name {
			return true
		}
	}
	return false
}

// GetEnvOrDefault returns the environment variable value or a default
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envBool(key string) (bool, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		slog.Warn("Invalid boolean environment variable", "key", key, "value", raw)
		return false, false
	}
	return v, true
}

func envInt64(key string) (int64, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		slog.Warn("Invalid numeric environment variable", "key", key, "value", raw)
		return 0, false
	}
	return v, true
}
