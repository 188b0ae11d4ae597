package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment variable override.
const EnvPrefix = "STARLINK"

// Config is the root configuration structure for the Starlink bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Dish     DishConfig     `yaml:"dish" envconfig:"DISH"`
	Bridge   BridgeConfig   `yaml:"bridge" envconfig:"BRIDGE"`
	Settings SettingsConfig `yaml:"settings" envconfig:"SETTINGS"`
	Database DatabaseConfig `yaml:"database" envconfig:"DATABASE"`
	MQTT     MQTTConfig     `yaml:"mqtt" envconfig:"MQTT"`
	API      APIConfig      `yaml:"api" envconfig:"API"`
	InfluxDB InfluxDBConfig `yaml:"influxdb" envconfig:"INFLUXDB"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
}

// DishConfig contains the gRPC endpoint of the dish.
type DishConfig struct {
	Target         string `yaml:"target" envconfig:"TARGET"`
	TimeoutSeconds int    `yaml:"timeout_seconds" envconfig:"TIMEOUT_SECONDS"`
}

// BridgeConfig describes how the dish is presented on the monitoring bus.
type BridgeConfig struct {
	// ServicePrefix is the namespace prefix; the short id is appended to it.
	ServicePrefix string `yaml:"service_prefix" envconfig:"SERVICE_PREFIX"`

	ProcessName    string `yaml:"process_name" envconfig:"PROCESS_NAME"`
	Connection     string `yaml:"connection" envconfig:"CONNECTION"`
	DeviceInstance int    `yaml:"device_instance" envconfig:"DEVICE_INSTANCE"`
	ProductID      int    `yaml:"product_id" envconfig:"PRODUCT_ID"`
	ProductName    string `yaml:"product_name" envconfig:"PRODUCT_NAME"`

	// VersionFile holds the process version. Build info is used when it is missing.
	VersionFile string `yaml:"version_file" envconfig:"VERSION_FILE"`

	RefreshIntervalSeconds   int `yaml:"refresh_interval_seconds" envconfig:"REFRESH_INTERVAL_SECONDS"`
	HealthIntervalSeconds    int `yaml:"health_interval_seconds" envconfig:"HEALTH_INTERVAL_SECONDS"`
	RepublishIntervalSeconds int `yaml:"republish_interval_seconds" envconfig:"REPUBLISH_INTERVAL_SECONDS"`
}

// SettingsConfig contains defaults for persisted user settings.
type SettingsConfig struct {
	DefaultCustomName string `yaml:"default_custom_name" envconfig:"DEFAULT_CUSTOM_NAME"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path" envconfig:"PATH"`
	WALMode     bool   `yaml:"wal_mode" envconfig:"WAL_MODE"`
	BusyTimeout int    `yaml:"busy_timeout" envconfig:"BUSY_TIMEOUT"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker      MQTTBrokerConfig    `yaml:"broker" envconfig:"BROKER"`
	Auth        MQTTAuthConfig      `yaml:"auth" envconfig:"AUTH"`
	QoS         int                 `yaml:"qos" envconfig:"QOS"`
	TopicPrefix string              `yaml:"topic_prefix" envconfig:"TOPIC_PREFIX"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect" envconfig:"RECONNECT"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host" envconfig:"HOST"`
	Port     int    `yaml:"port" envconfig:"PORT"`
	TLS      bool   `yaml:"tls" envconfig:"TLS"`
	ClientID string `yaml:"client_id" envconfig:"CLIENT_ID"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username" envconfig:"USERNAME"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay" envconfig:"INITIAL_DELAY"`
	MaxDelay     int `yaml:"max_delay" envconfig:"MAX_DELAY"`
	MaxAttempts  int `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS"`
}

// APIConfig contains the optional status API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled" envconfig:"ENABLED"`
	Host     string           `yaml:"host" envconfig:"HOST"`
	Port     int              `yaml:"port" envconfig:"PORT"`
	Timeouts APITimeoutConfig `yaml:"timeouts" envconfig:"TIMEOUTS"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read" envconfig:"READ"`
	Write int `yaml:"write" envconfig:"WRITE"`
	Idle  int `yaml:"idle" envconfig:"IDLE"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled" envconfig:"ENABLED"`
	URL           string `yaml:"url" envconfig:"URL"`
	Token         string `yaml:"token" envconfig:"TOKEN"`
	Org           string `yaml:"org" envconfig:"ORG"`
	Bucket        string `yaml:"bucket" envconfig:"BUCKET"`
	BatchSize     int    `yaml:"batch_size" envconfig:"BATCH_SIZE"`
	FlushInterval int    `yaml:"flush_interval" envconfig:"FLUSH_INTERVAL"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`
	Format string `yaml:"format" envconfig:"FORMAT"`
	Output string `yaml:"output" envconfig:"OUTPUT"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: STARLINK_SECTION_KEY
// For example: STARLINK_DISH_TARGET, STARLINK_MQTT_BROKER_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration, as used when no file is given.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Dish: DishConfig{
			Target:         "192.168.100.1:9200",
			TimeoutSeconds: 10,
		},
		Bridge: BridgeConfig{
			ServicePrefix:            "com.victronenergy.gps.starlink",
			ProcessName:              "dbus-starlink",
			Connection:               "gRPC",
			DeviceInstance:           1,
			ProductID:                45108,
			ProductName:              "Starlink",
			VersionFile:              "/data/dbus-starlink/version",
			RefreshIntervalSeconds:   60,
			HealthIntervalSeconds:    30,
			RepublishIntervalSeconds: 600,
		},
		Settings: SettingsConfig{
			DefaultCustomName: "Starlink",
		},
		Database: DatabaseConfig{
			Path:        "./data/starlink.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "starlink-bridge",
			},
			QoS:         1,
			TopicPrefix: "starlink",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8081,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		InfluxDB: InfluxDBConfig{
			Enabled:       false,
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Only variables that are set replace the file values.
func applyEnvOverrides(cfg *Config) error {
	return envconfig.Process(EnvPrefix, cfg)
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Dish.Target == "" {
		errs = append(errs, "dish.target is required")
	}
	if c.Dish.TimeoutSeconds < 1 {
		errs = append(errs, "dish.timeout_seconds must be at least 1")
	}

	if c.Bridge.ServicePrefix == "" {
		errs = append(errs, "bridge.service_prefix is required")
	}
	if c.Bridge.RefreshIntervalSeconds < 1 {
		errs = append(errs, "bridge.refresh_interval_seconds must be at least 1")
	}
	if c.Bridge.HealthIntervalSeconds < 1 {
		errs = append(errs, "bridge.health_interval_seconds must be at least 1")
	}
	if c.Bridge.RepublishIntervalSeconds < 0 {
		errs = append(errs, "bridge.republish_interval_seconds must not be negative")
	}

	if c.Settings.DefaultCustomName == "" {
		errs = append(errs, "settings.default_custom_name is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required")
	}
	if strings.ContainsAny(c.MQTT.TopicPrefix, "+#") {
		errs = append(errs, "mqtt.topic_prefix must not contain wildcards")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DishTimeout returns the per-call dish timeout as a Duration.
func (c *Config) DishTimeout() time.Duration {
	return time.Duration(c.Dish.TimeoutSeconds) * time.Second
}

// RefreshInterval returns the telemetry refresh interval as a Duration.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Bridge.RefreshIntervalSeconds) * time.Second
}

// HealthInterval returns the health report interval as a Duration.
func (c *Config) HealthInterval() time.Duration {
	return time.Duration(c.Bridge.HealthIntervalSeconds) * time.Second
}

// RepublishInterval returns how long an unchanged attribute stays unpublished.
func (c *Config) RepublishInterval() time.Duration {
	return time.Duration(c.Bridge.RepublishIntervalSeconds) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (a APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(a.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (a APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(a.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (a APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(a.Timeouts.Idle) * time.Second
}
