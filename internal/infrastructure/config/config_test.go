package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

const validConfig = `
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
home_assistant:
  base_url: "http://ha.local:8123"
  token: "long-lived-token"
dispatcher:
  max_attempts: 3
  retry_base: 1
scheduler:
  tick_interval: 2
  workers: 4
api:
  host: "0.0.0.0"
  port: 8080
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`

func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := Load(writeTestConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}

	if cfg.HomeAssistant.BaseURL != "http://ha.local:8123" {
		t.Errorf("HomeAssistant.BaseURL = %q, want %q", cfg.HomeAssistant.BaseURL, "http://ha.local:8123")
	}

	if cfg.SimulationMode() {
		t.Error("SimulationMode() = true with token configured, want false")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_Defaults(t *testing.T) {
	// Minimal config: everything except the required secret comes from defaults.
	content := `
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`
	cfg, err := Load(writeTestConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Dispatcher.MaxAttempts != 3 {
		t.Errorf("Dispatcher.MaxAttempts = %d, want 3", cfg.Dispatcher.MaxAttempts)
	}
	if cfg.Dispatcher.GetScheduledTimeout() != 5*time.Minute {
		t.Errorf("GetScheduledTimeout() = %v, want 5m", cfg.Dispatcher.GetScheduledTimeout())
	}
	if cfg.MQTT.Reconnect.RetryInterval != 5 {
		t.Errorf("MQTT.Reconnect.RetryInterval = %d, want 5", cfg.MQTT.Reconnect.RetryInterval)
	}
	if cfg.Scheduler.Workers != 4 {
		t.Errorf("Scheduler.Workers = %d, want 4", cfg.Scheduler.Workers)
	}
}

func TestLoad_SimulationModeWithoutToken(t *testing.T) {
	content := `
home_assistant:
  base_url: "http://ha.local:8123"
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`
	cfg, err := Load(writeTestConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.SimulationMode() {
		t.Error("SimulationMode() = false without token, want true")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HOMEHUB_MQTT_HOST", "broker.example.com")
	t.Setenv("HOMEHUB_HA_TOKEN", "env-token")
	t.Setenv("HOMEHUB_JWT_SECRET", "env-secret-key-that-is-long-enough!!")

	content := `
mqtt:
  broker:
    host: "localhost"
`
	cfg, err := Load(writeTestConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "broker.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want env override", cfg.MQTT.Broker.Host)
	}
	if cfg.HomeAssistant.Token != "env-token" {
		t.Errorf("HomeAssistant.Token = %q, want env override", cfg.HomeAssistant.Token)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing jwt secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "" },
			wantErr: "security.jwt.secret is required",
		},
		{
			name:    "short jwt secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantErr: "at least 32 characters",
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "zero max attempts",
			mutate:  func(c *Config) { c.Dispatcher.MaxAttempts = 0 },
			wantErr: "dispatcher.max_attempts",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Scheduler.Workers = 0 },
			wantErr: "scheduler.workers",
		},
		{
			name:    "bad api port",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: "api.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Security.JWT.Secret = "test-secret-key-at-least-32-chars!"
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}
