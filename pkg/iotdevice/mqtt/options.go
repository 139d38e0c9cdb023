package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/url"
	"os"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 120 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Options configures a platform session for one device.
//
// Exactly one of Secret or Certificate must be set.
type Options struct {
	// ServerURI is the platform access address, e.g. "ssl://host:8883".
	ServerURI string

	// DeviceID is the platform device identifier. It is also the MQTT username.
	DeviceID string

	// Secret enables shared-secret authentication (HMAC-signed password).
	Secret string

	// Certificate enables X.509 client authentication.
	Certificate *tls.Certificate

	// CAFile is a PEM bundle used to verify the platform. Empty uses system roots.
	CAFile string

	// InsecureSkipVerify disables server verification. Development only.
	InsecureSkipVerify bool

	QoS            byte
	ConnectTimeout time.Duration
	KeepAlive      time.Duration
	CleanSession   bool

	// ReconnectMaxDelay caps paho's reconnect backoff, which starts at one
	// second and doubles per attempt. The starting delay is fixed by paho.
	ReconnectMaxDelay time.Duration

	// MaxReconnectAttempts is the number of consecutive failed reconnects
	// after which the session is abandoned. 0 retries forever.
	MaxReconnectAttempts int
}

// validate checks the options needed to open a session.
func (o Options) validate() error {
	if o.ServerURI == "" {
		return fmt.Errorf("%w: server URI is required", ErrInvalidOptions)
	}
	if o.DeviceID == "" {
		return fmt.Errorf("%w: device ID is required", ErrInvalidOptions)
	}
	if (o.Secret == "") == (o.Certificate == nil) {
		return fmt.Errorf("%w: exactly one of secret or certificate is required", ErrInvalidOptions)
	}
	if o.QoS > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}

func (o Options) connectTimeout() time.Duration {
	if o.ConnectTimeout > 0 {
		return o.ConnectTimeout
	}
	return defaultConnectTimeout
}

// buildClientOptions creates paho MQTT options for a device session.
//
// This configures:
//   - Server URI and platform client ID
//   - Signed password (shared secret) or client certificate
//   - Auto-reconnect with exponential backoff
//   - TLS configuration for ssl:// and tls:// URIs
//   - Clean session mode
//
// The initial connect is not retried by paho; Connect surfaces its failure.
func buildClientOptions(o Options, now time.Time) (*pahomqtt.ClientOptions, error) {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(o.ServerURI)

	applyCredentials(opts, o, now)

	opts.SetCleanSession(o.CleanSession)
	opts.SetOrderMatters(false)

	// Auto-reconnect with exponential backoff
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	if o.ReconnectMaxDelay > 0 {
		opts.SetMaxReconnectInterval(o.ReconnectMaxDelay)
	}

	opts.SetConnectTimeout(o.connectTimeout())

	keepAlive := o.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	opts.SetKeepAlive(keepAlive)

	if isTLSURI(o.ServerURI) {
		tlsConfig, err := buildTLSConfig(o)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	return opts, nil
}

// applyCredentials sets client ID, username, and password for the session.
// It is called again before each reconnect so the signed password stays fresh.
func applyCredentials(opts *pahomqtt.ClientOptions, o Options, now time.Time) {
	ts := SignTimestamp(now)
	opts.SetClientID(ClientID(o.DeviceID, ts))
	opts.SetUsername(o.DeviceID)
	if o.Secret != "" {
		opts.SetPassword(SignPassword(o.Secret, ts))
	}
}

// isTLSURI reports whether the server URI requires a TLS transport.
func isTLSURI(serverURI string) bool {
	u, err := url.Parse(serverURI)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "ssl", "tls", "mqtts", "tcps", "wss":
		return true
	}
	return false
}

// buildTLSConfig assembles trust roots and the optional client certificate.
func buildTLSConfig(o Options) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tlsMinVersion,
		InsecureSkipVerify: o.InsecureSkipVerify, //nolint:gosec // opt-in for development brokers
	}

	if o.CAFile != "" {
		pem, err := os.ReadFile(o.CAFile)
		if err != nil {
			return nil, fmt.Errorf("%w: reading CA file: %w", ErrInvalidOptions, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("%w: no certificates in CA file %s", ErrInvalidOptions, o.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	if o.Certificate != nil {
		tlsConfig.Certificates = []tls.Certificate{*o.Certificate}
	}

	return tlsConfig, nil
}
