package iotdevice

import (
	"time"
)

// Option configures a Device.
type Option func(*Device)

// WithLogger sets the logger used by the device, its router, and the
// default MQTT transport.
func WithLogger(logger Logger) Option {
	return func(d *Device) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithSnapshotStore persists reported-value baselines.
func WithSnapshotStore(store SnapshotStore) Option {
	return func(d *Device) {
		d.store = store
	}
}

// WithReportObserver receives every successful report. Repeated options
// add observers, notified in order.
func WithReportObserver(observer ReportObserver) Option {
	return func(d *Device) {
		if observer != nil {
			d.observers = append(d.observers, observer)
		}
	}
}

// WithMetrics records SDK activity.
func WithMetrics(metrics Metrics) Option {
	return func(d *Device) {
		if metrics != nil {
			d.metrics = metrics
		}
	}
}

// ClientConfig is the raw session configuration for the default MQTT transport.
//
// Exactly one of Secret or Keystore must be set.
type ClientConfig struct {
	ServerURI string
	DeviceID  string

	// Secret selects shared-secret authentication.
	Secret string

	// Keystore and KeystorePassword select certificate authentication
	// with a PKCS#12 bundle.
	Keystore         []byte
	KeystorePassword string

	// QoS for reports and responses. Defaults to 1 via New.
	QoS byte

	// CAFile is a PEM bundle used to verify the platform.
	CAFile             string
	InsecureSkipVerify bool

	ConnectTimeout time.Duration
	KeepAlive      time.Duration
	CleanSession   bool

	// ReconnectMaxDelay caps the reconnect backoff, which starts at one
	// second and doubles per attempt.
	ReconnectMaxDelay time.Duration
	// MaxReconnectAttempts moves the device to StateFailed after this many
	// consecutive failed reconnects. 0 retries forever.
	MaxReconnectAttempts int
}

// DefaultClientConfig returns a configuration with the SDK defaults.
func DefaultClientConfig(serverURI, deviceID string) ClientConfig {
	return ClientConfig{
		ServerURI:             serverURI,
		DeviceID:              deviceID,
		QoS:                   1,
		ConnectTimeout:        10 * time.Second,
		KeepAlive:             120 * time.Second,
		CleanSession:          true,
		ReconnectMaxDelay:     60 * time.Second,
	}
}

// identity derives the device identity from the configuration.
func (c ClientConfig) identity() Identity {
	cred := SharedSecret(c.Secret)
	if len(c.Keystore) > 0 {
		cred = Certificate(c.Keystore, c.KeystorePassword)
	}
	return Identity{ServerURI: c.ServerURI, DeviceID: c.DeviceID, Credential: cred}
}

// New creates a device that authenticates with a shared secret over MQTT.
func New(serverURI, deviceID, secret string, opts ...Option) *Device {
	cfg := DefaultClientConfig(serverURI, deviceID)
	cfg.Secret = secret
	return NewFromConfig(cfg, opts...)
}

// NewWithCertificate creates a device that authenticates with a PKCS#12
// client certificate over MQTT.
func NewWithCertificate(serverURI, deviceID string, keystore []byte, password string, opts ...Option) *Device {
	cfg := DefaultClientConfig(serverURI, deviceID)
	cfg.Keystore = keystore
	cfg.KeystorePassword = password
	return NewFromConfig(cfg, opts...)
}

// NewFromConfig creates a device on the default MQTT transport.
// Configuration problems surface from Init.
func NewFromConfig(cfg ClientConfig, opts ...Option) *Device {
	transport := NewMQTTTransport(cfg)
	d := NewWithTransport(cfg.identity(), transport, opts...)
	transport.SetLogger(d.logger)
	return d
}
