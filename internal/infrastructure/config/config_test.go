package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
dish:
  target: "10.0.0.1:9200"
  timeout_seconds: 5
bridge:
  service_prefix: "com.example.gps.starlink"
  refresh_interval_seconds: 30
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
  topic_prefix: "dish"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Dish.Target != "10.0.0.1:9200" {
		t.Errorf("Dish.Target = %q, want %q", cfg.Dish.Target, "10.0.0.1:9200")
	}
	if cfg.DishTimeout() != 5*time.Second {
		t.Errorf("DishTimeout() = %v, want 5s", cfg.DishTimeout())
	}
	if cfg.RefreshInterval() != 30*time.Second {
		t.Errorf("RefreshInterval() = %v, want 30s", cfg.RefreshInterval())
	}
	if cfg.Bridge.ServicePrefix != "com.example.gps.starlink" {
		t.Errorf("Bridge.ServicePrefix = %q", cfg.Bridge.ServicePrefix)
	}
	if cfg.MQTT.TopicPrefix != "dish" {
		t.Errorf("MQTT.TopicPrefix = %q, want %q", cfg.MQTT.TopicPrefix, "dish")
	}

	// Values absent from the file keep their defaults.
	if cfg.Bridge.ProductID != 45108 {
		t.Errorf("Bridge.ProductID = %d, want 45108", cfg.Bridge.ProductID)
	}
	if cfg.Settings.DefaultCustomName != "Starlink" {
		t.Errorf("Settings.DefaultCustomName = %q, want %q", cfg.Settings.DefaultCustomName, "Starlink")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
dish:
  target: ""
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error for empty dish.target, got nil")
	}
	if !strings.Contains(err.Error(), "dish.target") {
		t.Errorf("error %q does not name dish.target", err)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	content := `
dish:
  target: "10.0.0.1:9200"
`
	t.Setenv("STARLINK_DISH_TARGET", "192.168.1.50:9200")

	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Dish.Target != "192.168.1.50:9200" {
		t.Errorf("Dish.Target = %q, want env override", cfg.Dish.Target)
	}
}

func TestLoad_InvalidEnvValue(t *testing.T) {
	t.Setenv("STARLINK_MQTT_BROKER_PORT", "not-a-number")

	_, err := Load(writeConfig(t, "dish:\n  target: \"10.0.0.1:9200\"\n"))
	if err == nil {
		t.Error("Load() expected error for non-numeric port override, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing dish target",
			mutate:  func(c *Config) { c.Dish.Target = "" },
			wantErr: true,
		},
		{
			name:    "zero dish timeout",
			mutate:  func(c *Config) { c.Dish.TimeoutSeconds = 0 },
			wantErr: true,
		},
		{
			name:    "missing service prefix",
			mutate:  func(c *Config) { c.Bridge.ServicePrefix = "" },
			wantErr: true,
		},
		{
			name:    "zero refresh interval",
			mutate:  func(c *Config) { c.Bridge.RefreshIntervalSeconds = 0 },
			wantErr: true,
		},
		{
			name:    "negative republish interval",
			mutate:  func(c *Config) { c.Bridge.RepublishIntervalSeconds = -1 },
			wantErr: true,
		},
		{
			name:    "missing default custom name",
			mutate:  func(c *Config) { c.Settings.DefaultCustomName = "" },
			wantErr: true,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "wildcard topic prefix",
			mutate:  func(c *Config) { c.MQTT.TopicPrefix = "starlink/#" },
			wantErr: true,
		},
		{
			name: "invalid api port when enabled",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.Port = 70000
			},
			wantErr: true,
		},
		{
			name:    "invalid api port ignored when disabled",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: false,
		},
		{
			name: "influxdb enabled without url",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.Bucket = "starlink"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_CollectsAllErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.Dish.Target = ""
	cfg.Database.Path = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error, got nil")
	}
	for _, want := range []string{"dish.target", "database.path"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestAPIConfig_GetTimeouts(t *testing.T) {
	cfg := APIConfig{
		Timeouts: APITimeoutConfig{
			Read:  30,
			Write: 45,
			Idle:  60,
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("STARLINK_DATABASE_PATH", "/custom/path.db")
	t.Setenv("STARLINK_MQTT_BROKER_HOST", "mqtt.example.com")
	t.Setenv("STARLINK_MQTT_AUTH_USERNAME", "testuser")
	t.Setenv("STARLINK_MQTT_AUTH_PASSWORD", "testpass")
	t.Setenv("STARLINK_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("STARLINK_BRIDGE_REFRESH_INTERVAL_SECONDS", "15")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Bridge.RefreshIntervalSeconds != 15 {
		t.Errorf("Bridge.RefreshIntervalSeconds = %d, want 15", cfg.Bridge.RefreshIntervalSeconds)
	}

	// Unset variables leave values alone.
	if cfg.Dish.Target != "192.168.100.1:9200" {
		t.Errorf("Dish.Target = %q, want default", cfg.Dish.Target)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Dish.Target == "" {
		t.Error("default config should have non-empty Dish.Target")
	}
	if cfg.DishTimeout() != 10*time.Second {
		t.Errorf("default DishTimeout() = %v, want 10s", cfg.DishTimeout())
	}
	if cfg.RefreshInterval() != 60*time.Second {
		t.Errorf("default RefreshInterval() = %v, want 60s", cfg.RefreshInterval())
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("default MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Enabled {
		t.Error("default config should not enable the API")
	}
}
