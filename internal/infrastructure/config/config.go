package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when neither --config nor GREEBRIDGE_CONFIG is set.
const DefaultPath = "config.yaml"

// envConfigPath names the environment variable holding the config path.
const envConfigPath = "GREEBRIDGE_CONFIG"

const redacted = "********"

// Config is the root configuration structure for the Gree bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT            MQTTConfig      `yaml:"mqtt"`
	Discovery       DiscoveryConfig `yaml:"discovery"`
	PollingInterval int             `yaml:"polling_interval"`
	Gree            GreeConfig      `yaml:"gree"`
	Devices         []DeviceConfig  `yaml:"devices"`
	Logging         LoggingConfig   `yaml:"logging"`
	InfluxDB        InfluxDBConfig  `yaml:"influxdb"`
	Database        DatabaseConfig  `yaml:"database"`
	API             APIConfig       `yaml:"api"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker          MQTTBrokerConfig    `yaml:"broker"`
	Auth            MQTTAuthConfig      `yaml:"auth"`
	QoS             int                 `yaml:"qos"`
	Reconnect       MQTTReconnectConfig `yaml:"reconnect"`
	DiscoveryPrefix string              `yaml:"discovery_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// DiscoveryConfig controls the startup LAN broadcast.
type DiscoveryConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Timeout          int    `yaml:"timeout"`
	BroadcastAddress string `yaml:"broadcast_address"`
	Port             int    `yaml:"port"`
}

// GreeConfig contains protocol timing and concurrency settings.
type GreeConfig struct {
	BindTimeout     int `yaml:"bind_timeout"`
	ExchangeTimeout int `yaml:"exchange_timeout"`
	Workers         int `yaml:"workers"`
	CommandQueue    int `yaml:"command_queue"`
}

// DeviceConfig is a statically configured air conditioner.
type DeviceConfig struct {
	ID   string `yaml:"id,omitempty"`
	Name string `yaml:"name,omitempty"`
	IP   string `yaml:"ip"`
	Port int    `yaml:"port,omitempty"`
	MAC  string `yaml:"mac,omitempty"`
	Key  string `yaml:"key,omitempty"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// DatabaseConfig contains SQLite settings for the state history log.
type DatabaseConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	WALMode       bool   `yaml:"wal_mode"`
	BusyTimeout   int    `yaml:"busy_timeout"`
	RetentionDays int    `yaml:"retention_days"`
}

// APIConfig contains the status HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GREEBRIDGE_SECTION_KEY
// For example: GREEBRIDGE_MQTT_HOST, GREEBRIDGE_POLLING_INTERVAL
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// ResolvePath picks the config file: the flag value, then
// GREEBRIDGE_CONFIG, then DefaultPath.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv(envConfigPath); v != "" {
		return v
	}
	return DefaultPath
}

// WriteDefault writes the default configuration as YAML. An existing file
// is never overwritten.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("encoding default config: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing config file: %w", err)
	}
	return f.Close()
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "greebridge",
			},
			QoS: 0,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
			DiscoveryPrefix: "homeassistant",
		},
		Discovery: DiscoveryConfig{
			Enabled:          true,
			Timeout:          10,
			BroadcastAddress: "255.255.255.255",
			Port:             7000,
		},
		PollingInterval: 30,
		Gree: GreeConfig{
			BindTimeout:     10,
			ExchangeTimeout: 5,
			Workers:         4,
			CommandQueue:    32,
		},
		Devices: []DeviceConfig{},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Org:           "greebridge",
			Bucket:        "climate",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Database: DatabaseConfig{
			Path:          "./data/greebridge.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 30,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GREEBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("GREEBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v, ok := envInt("GREEBRIDGE_MQTT_PORT"); ok {
		cfg.MQTT.Broker.Port = v
	}
	if v := os.Getenv("GREEBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GREEBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("GREEBRIDGE_MQTT_DISCOVERY_PREFIX"); v != "" {
		cfg.MQTT.DiscoveryPrefix = v
	}

	// Polling
	if v, ok := envInt("GREEBRIDGE_POLLING_INTERVAL"); ok {
		cfg.PollingInterval = v
	}

	// Logging
	if v := os.Getenv("GREEBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// InfluxDB
	if v := os.Getenv("GREEBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Database
	if v := os.Getenv("GREEBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v, ok := envInt("GREEBRIDGE_API_PORT"); ok {
		cfg.API.Port = v
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []error

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, errors.New("mqtt.broker.host is required"))
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, errors.New("mqtt.broker.port must be between 1 and 65535"))
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, errors.New("mqtt.qos must be 0, 1, or 2"))
	}
	if strings.ContainsAny(c.MQTT.DiscoveryPrefix, "+#") {
		errs = append(errs, errors.New("mqtt.discovery_prefix must not contain wildcards"))
	}

	// Timing validation
	if c.PollingInterval < 1 {
		errs = append(errs, errors.New("polling_interval must be at least 1 second"))
	}
	if c.Discovery.Enabled && c.Discovery.Timeout < 1 {
		errs = append(errs, errors.New("discovery.timeout must be at least 1 second"))
	}

	// Device validation
	for i, d := range c.Devices {
		if d.IP == "" {
			errs = append(errs, fmt.Errorf("devices[%d].ip is required", i))
		}
		if d.Port < 0 || d.Port > 65535 {
			errs = append(errs, fmt.Errorf("devices[%d].port must be between 1 and 65535", i))
		}
	}

	// Optional outputs
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, errors.New("influxdb.url is required when influxdb is enabled"))
	}
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required when database is enabled"))
	}
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, errors.New("api.port must be between 1 and 65535"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %w", errors.Join(errs...))
	}

	return nil
}

// GetPollingInterval returns the polling interval as a Duration.
func (c *Config) GetPollingInterval() time.Duration {
	return time.Duration(c.PollingInterval) * time.Second
}

// GetDiscoveryTimeout returns the discovery window as a Duration.
func (c *Config) GetDiscoveryTimeout() time.Duration {
	return time.Duration(c.Discovery.Timeout) * time.Second
}

// GetBindTimeout returns the bind timeout as a Duration.
func (c *Config) GetBindTimeout() time.Duration {
	return time.Duration(c.Gree.BindTimeout) * time.Second
}

// GetExchangeTimeout returns the exchange timeout as a Duration.
func (c *Config) GetExchangeTimeout() time.Duration {
	return time.Duration(c.Gree.ExchangeTimeout) * time.Second
}

// GetRetention returns how long state history is kept. Zero keeps it forever.
func (c *Config) GetRetention() time.Duration {
	return time.Duration(c.Database.RetentionDays) * 24 * time.Hour
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// Redacted returns a copy with credentials and device keys masked.
func (c *Config) Redacted() Config {
	out := *c
	if out.MQTT.Auth.Password != "" {
		out.MQTT.Auth.Password = redacted
	}
	if out.InfluxDB.Token != "" {
		out.InfluxDB.Token = redacted
	}
	out.Devices = make([]DeviceConfig, len(c.Devices))
	for i, d := range c.Devices {
		if d.Key != "" {
			d.Key = redacted
		}
		out.Devices[i] = d
	}
	return out
}

// String renders the redacted configuration as YAML.
func (c *Config) String() string {
	r := c.Redacted()
	data, err := yaml.Marshal(&r)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}
