package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "device.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
device:
  server_uri: "ssl://iot-mqtts.example.com:8883"
  device_id: "smoke-detector-01"
  secret: "device-secret"
mqtt:
  qos: 1
  reconnect:
    max_delay: 30
    max_attempts: 5
snapshot:
  enabled: true
  path: "/tmp/snapshots.db"
status:
  enabled: true
  port: 9090
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Device.DeviceID != "smoke-detector-01" {
		t.Errorf("Device.DeviceID = %q, want %q", cfg.Device.DeviceID, "smoke-detector-01")
	}
	if cfg.Device.ServerURI != "ssl://iot-mqtts.example.com:8883" {
		t.Errorf("Device.ServerURI = %q, want %q", cfg.Device.ServerURI, "ssl://iot-mqtts.example.com:8883")
	}
	if cfg.MQTT.Reconnect.MaxAttempts != 5 {
		t.Errorf("MQTT.Reconnect.MaxAttempts = %d, want 5", cfg.MQTT.Reconnect.MaxAttempts)
	}
	if cfg.Status.Port != 9090 {
		t.Errorf("Status.Port = %d, want 9090", cfg.Status.Port)
	}
	// Defaults survive when the file omits a key.
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/device.yaml")
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
device:
  server_uri: "ssl://iot-mqtts.example.com:8883"
  device_id: ""
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Error("Load() expected validation error for empty device_id, got nil")
	}
}

func TestLoad_SecretFromEnvironment(t *testing.T) {
	content := `
device:
  server_uri: "ssl://iot-mqtts.example.com:8883"
  device_id: "smoke-detector-01"
`
	t.Setenv("GRAYLOGIC_DEVICE_SECRET", "from-env")

	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Device.Secret != "from-env" {
		t.Errorf("Device.Secret = %q, want %q", cfg.Device.Secret, "from-env")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Device = DeviceConfig{
			ServerURI: "ssl://iot-mqtts.example.com:8883",
			DeviceID:  "dev-1",
			Secret:    "secret",
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "missing server uri",
			mutate:  func(c *Config) { c.Device.ServerURI = "" },
			wantErr: "device.server_uri is required",
		},
		{
			name:    "server uri without host",
			mutate:  func(c *Config) { c.Device.ServerURI = "not a uri" },
			wantErr: "device.server_uri must be a URI",
		},
		{
			name:    "missing device id",
			mutate:  func(c *Config) { c.Device.DeviceID = "" },
			wantErr: "device.device_id is required",
		},
		{
			name:    "no credential",
			mutate:  func(c *Config) { c.Device.Secret = "" },
			wantErr: "device.secret or device.keystore.path is required",
		},
		{
			name: "both credentials",
			mutate: func(c *Config) {
				c.Device.Keystore = KeystoreConfig{Path: "/etc/device.p12", Password: "pw"}
			},
			wantErr: "mutually exclusive",
		},
		{
			name: "keystore only",
			mutate: func(c *Config) {
				c.Device.Secret = ""
				c.Device.Keystore = KeystoreConfig{Path: "/etc/device.p12", Password: "pw"}
			},
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos must be 0, 1, or 2",
		},
		{
			name:    "negative max attempts",
			mutate:  func(c *Config) { c.MQTT.Reconnect.MaxAttempts = -1 },
			wantErr: "max_attempts",
		},
		{
			name: "snapshot enabled without path",
			mutate: func(c *Config) {
				c.Snapshot.Enabled = true
				c.Snapshot.Path = ""
			},
			wantErr: "snapshot.path is required",
		},
		{
			name:    "influxdb enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: "influxdb.url is required",
		},
		{
			name:    "short token secret",
			mutate:  func(c *Config) { c.Status.TokenSecret = "short" },
			wantErr: "status.token_secret must be at least 32",
		},
		{
			name: "websocket ping disabled",
			mutate: func(c *Config) {
				c.Status.Enabled = true
				c.Status.WebSocket.PingInterval = 0
			},
			wantErr: "status.websocket",
		},
		{
			name: "status port out of range",
			mutate: func(c *Config) {
				c.Status.Enabled = true
				c.Status.Port = 70000
			},
			wantErr: "status.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.MQTT.QoS = 5

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil, want error")
	}
	for _, want := range []string{"device.server_uri", "device.device_id", "mqtt.qos"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error = %v, want containing %q", err, want)
		}
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("GRAYLOGIC_DEVICE_SERVER_URI", "ssl://override.example.com:8883")
	t.Setenv("GRAYLOGIC_DEVICE_ID", "override-id")
	t.Setenv("GRAYLOGIC_DEVICE_SECRET", "override-secret")
	t.Setenv("GRAYLOGIC_DEVICE_KEYSTORE_PASSWORD", "override-pw")
	t.Setenv("GRAYLOGIC_DEVICE_SNAPSHOT_PATH", "/custom/snapshots.db")
	t.Setenv("GRAYLOGIC_DEVICE_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GRAYLOGIC_DEVICE_STATUS_TOKEN_SECRET", "0123456789abcdef0123456789abcdef")

	applyEnvOverrides(cfg)

	if cfg.Device.ServerURI != "ssl://override.example.com:8883" {
		t.Errorf("Device.ServerURI = %q, want %q", cfg.Device.ServerURI, "ssl://override.example.com:8883")
	}
	if cfg.Device.DeviceID != "override-id" {
		t.Errorf("Device.DeviceID = %q, want %q", cfg.Device.DeviceID, "override-id")
	}
	if cfg.Device.Secret != "override-secret" {
		t.Errorf("Device.Secret = %q, want %q", cfg.Device.Secret, "override-secret")
	}
	if cfg.Device.Keystore.Password != "override-pw" {
		t.Errorf("Device.Keystore.Password = %q, want %q", cfg.Device.Keystore.Password, "override-pw")
	}
	if cfg.Snapshot.Path != "/custom/snapshots.db" {
		t.Errorf("Snapshot.Path = %q, want %q", cfg.Snapshot.Path, "/custom/snapshots.db")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Status.TokenSecret != "0123456789abcdef0123456789abcdef" {
		t.Errorf("Status.TokenSecret = %q", cfg.Status.TokenSecret)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.MQTT.QoS != 1 {
		t.Errorf("defaultConfig MQTT.QoS = %d, want 1", cfg.MQTT.QoS)
	}
	if !cfg.MQTT.CleanSession {
		t.Error("defaultConfig MQTT.CleanSession = false, want true")
	}
	if cfg.Snapshot.Path == "" {
		t.Error("defaultConfig should have non-empty Snapshot.Path")
	}
	if got := cfg.GetConnectTimeout().Seconds(); got != 10 {
		t.Errorf("GetConnectTimeout() = %v, want 10", got)
	}
	if cfg.Status.WebSocket.PingInterval != 30 {
		t.Errorf("defaultConfig Status.WebSocket.PingInterval = %d, want 30", cfg.Status.WebSocket.PingInterval)
	}
	if got := cfg.GetSimulationInterval().Seconds(); got != 10 {
		t.Errorf("GetSimulationInterval() = %v, want 10", got)
	}
}
