package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// minTokenSecretLength is the shortest accepted HS256 signing secret.
const minTokenSecretLength = 32

// Config is the root configuration structure for a Gray Logic device process.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Snapshot   SnapshotConfig   `yaml:"snapshot"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Status     StatusConfig     `yaml:"status"`
	Logging    LoggingConfig    `yaml:"logging"`
	Simulation SimulationConfig `yaml:"simulation"`
}

// DeviceConfig identifies the device to the IoT platform.
//
// Exactly one credential must be configured: either Secret, or a PKCS#12
// keystore (Keystore.Path plus Keystore.Password).
type DeviceConfig struct {
	// ServerURI is the platform access address,
	// e.g. "ssl://iot-mqtts.example.com:8883".
	ServerURI string `yaml:"server_uri"`

	// DeviceID is the identifier issued by the platform at registration.
	DeviceID string `yaml:"device_id"`

	// Secret is the device password for shared-secret authentication.
	Secret string `yaml:"secret"`

	// Keystore configures certificate authentication.
	Keystore KeystoreConfig `yaml:"keystore"`
}

// KeystoreConfig points at a PKCS#12 bundle holding the device certificate and key.
type KeystoreConfig struct {
	Path     string `yaml:"path"`
	Password string `yaml:"password"`
}

// MQTTConfig contains platform session settings.
type MQTTConfig struct {
	QoS            int                 `yaml:"qos"`
	ConnectTimeout int                 `yaml:"connect_timeout"`
	KeepAlive      int                 `yaml:"keep_alive"`
	CleanSession   bool                `yaml:"clean_session"`
	TLS            MQTTTLSConfig       `yaml:"tls"`
	Reconnect      MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTTLSConfig contains trust settings for ssl:// server URIs.
type MQTTTLSConfig struct {
	// CAFile is a PEM bundle used to verify the platform. Empty uses system roots.
	CAFile string `yaml:"ca_file"`

	// InsecureSkipVerify disables server verification. Development only.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
//
// Reconnect backoff starts at one second and doubles up to MaxDelay.
type MQTTReconnectConfig struct {
	MaxDelay int `yaml:"max_delay"`
	// MaxAttempts is the number of consecutive failed reconnects after which
	// the session is declared failed. 0 means retry forever.
	MaxAttempts int `yaml:"max_attempts"`
}

// SnapshotConfig contains settings for the persistent reported-value baseline.
type SnapshotConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for report history.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// StatusConfig contains the local HTTP status server settings.
type StatusConfig struct {
	Enabled   bool                  `yaml:"enabled"`
	Host      string                `yaml:"host"`
	Port      int                   `yaml:"port"`
	Timeouts  StatusTimeoutConfig   `yaml:"timeouts"`
	WebSocket StatusWebSocketConfig `yaml:"websocket"`

	// TokenSecret signs HS256 bearer tokens for the report and command
	// endpoints. Empty leaves them open, which is only safe on loopback.
	TokenSecret string `yaml:"token_secret"`
}

// StatusTimeoutConfig contains HTTP timeout settings (seconds).
type StatusTimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// StatusWebSocketConfig contains settings for the live report stream.
type StatusWebSocketConfig struct {
	PingInterval   int `yaml:"ping_interval"` // seconds
	PongTimeout    int `yaml:"pong_timeout"`  // seconds
	MaxMessageSize int `yaml:"max_message_size"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SimulationConfig drives the example device application.
type SimulationConfig struct {
	// Interval is the number of seconds between sensor polls.
	Interval int `yaml:"interval"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_DEVICE_SECTION_KEY
// For example: GRAYLOGIC_DEVICE_SECRET, GRAYLOGIC_DEVICE_SERVER_URI
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

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

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			QoS:            1,
			ConnectTimeout: 10,
			KeepAlive:      120,
			CleanSession:   true,
			Reconnect: MQTTReconnectConfig{
				MaxDelay:    60,
				MaxAttempts: 0,
			},
		},
		Snapshot: SnapshotConfig{
			Path:        "./data/snapshots.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Status: StatusConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: StatusTimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
			WebSocket: StatusWebSocketConfig{
				PingInterval:   30,
				PongTimeout:    10,
				MaxMessageSize: 8192,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Simulation: SimulationConfig{
			Interval: 10,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Device identity
	if v := os.Getenv("GRAYLOGIC_DEVICE_SERVER_URI"); v != "" {
		cfg.Device.ServerURI = v
	}
	if v := os.Getenv("GRAYLOGIC_DEVICE_ID"); v != "" {
		cfg.Device.DeviceID = v
	}
	// Secrets belong in the environment, not the file.
	if v := os.Getenv("GRAYLOGIC_DEVICE_SECRET"); v != "" {
		cfg.Device.Secret = v
	}
	if v := os.Getenv("GRAYLOGIC_DEVICE_KEYSTORE_PASSWORD"); v != "" {
		cfg.Device.Keystore.Password = v
	}

	// Snapshot store
	if v := os.Getenv("GRAYLOGIC_DEVICE_SNAPSHOT_PATH"); v != "" {
		cfg.Snapshot.Path = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_DEVICE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Status server
	if v := os.Getenv("GRAYLOGIC_DEVICE_STATUS_TOKEN_SECRET"); v != "" {
		cfg.Status.TokenSecret = v
	}
}

// Validate checks the configuration for errors.
//
// All problems are collected and reported together.
func (c *Config) Validate() error {
	var errs []string

	// Device validation
	if c.Device.ServerURI == "" {
		errs = append(errs, "device.server_uri is required")
	} else if u, err := url.Parse(c.Device.ServerURI); err != nil || u.Host == "" {
		errs = append(errs, "device.server_uri must be a URI such as ssl://host:8883")
	}
	if c.Device.DeviceID == "" {
		errs = append(errs, "device.device_id is required")
	}
	hasSecret := c.Device.Secret != ""
	hasKeystore := c.Device.Keystore.Path != ""
	switch {
	case hasSecret && hasKeystore:
		errs = append(errs, "device.secret and device.keystore are mutually exclusive")
	case !hasSecret && !hasKeystore:
		errs = append(errs, "device.secret or device.keystore.path is required (set GRAYLOGIC_DEVICE_SECRET environment variable)")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Reconnect.MaxAttempts < 0 {
		errs = append(errs, "mqtt.reconnect.max_attempts must not be negative")
	}

	// Snapshot validation
	if c.Snapshot.Enabled && c.Snapshot.Path == "" {
		errs = append(errs, "snapshot.path is required when snapshot is enabled")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// Status server validation
	if c.Status.Enabled && (c.Status.Port < 1 || c.Status.Port > 65535) {
		errs = append(errs, "status.port must be between 1 and 65535")
	}
	if c.Status.TokenSecret != "" && len(c.Status.TokenSecret) < minTokenSecretLength {
		errs = append(errs, fmt.Sprintf("status.token_secret must be at least %d characters", minTokenSecretLength))
	}
	if c.Status.Enabled && (c.Status.WebSocket.PingInterval < 1 || c.Status.WebSocket.PongTimeout < 1) {
		errs = append(errs, "status.websocket ping_interval and pong_timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetConnectTimeout returns the MQTT connect timeout as a Duration.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.MQTT.ConnectTimeout) * time.Second
}

// GetSimulationInterval returns the sensor poll interval as a Duration.
func (c *Config) GetSimulationInterval() time.Duration {
	return time.Duration(c.Simulation.Interval) * time.Second
}
