package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// newPahoClient constructs the underlying paho client. Tests replace it.
var newPahoClient = pahomqtt.NewClient

// Client is one device's MQTT session with the IoT platform.
//
// It owns the paho connection, publishes on the device's $oc topics and
// replays request subscriptions after every reconnect. Methods are safe
// for concurrent use.
type Client struct {
	client  pahomqtt.Client
	options Options
	topics  Topics

	// subscriptions tracks active subscriptions for re-subscription on reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	// connected tracks current connection state.
	connected bool
	// reconnectAttempts counts reconnects since the last successful connect.
	reconnectAttempts int
	abandoned         bool
	connMu            sync.RWMutex

	// Callbacks for connection events (optional).
	onConnect    func()
	onDisconnect func(err error)
	onFatal      func(err error)
	callbackMu   sync.RWMutex

	// logger for error/panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger is satisfied by *slog.Logger and *logging.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler receives one inbound message. It runs on paho's delivery
// goroutine and should return quickly; a returned error is logged only.
type MessageHandler func(topic string, payload []byte) error

// Connect opens a platform session for the device described by o.
//
// The first connection is attempted once, bounded by ctx and
// o.ConnectTimeout; retrying it is the caller's decision. After that paho
// reconnects with backoff and the session re-signs its credentials on
// every attempt. Errors wrap ErrInvalidOptions or ErrConnectionFailed.
func Connect(ctx context.Context, o Options) (*Client, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}

	opts, err := buildClientOptions(o, time.Now())
	if err != nil {
		return nil, err
	}

	c := newClient(o)

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	opts.SetReconnectingHandler(func(_ pahomqtt.Client, po *pahomqtt.ClientOptions) {
		c.handleReconnecting(po)
	})

	c.client = newPahoClient(opts)
	if err := c.waitToken(ctx, c.client.Connect(), o.connectTimeout()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// paho runs the OnConnect handler asynchronously; mark the session up
	// here so IsConnected is true as soon as Connect returns.
	c.setConnected(true)

	return c, nil
}

func newClient(o Options) *Client {
	return &Client{
		options:       o,
		topics:        Topics{DeviceID: o.DeviceID},
		subscriptions: make(map[string]subscription),
	}
}

// waitToken waits for a paho token, the context, or the timeout, whichever comes first.
func (c *Client) waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
}

// sessionHooks is a snapshot of the connection callbacks.
type sessionHooks struct {
	onConnect    func()
	onDisconnect func(error)
	onFatal      func(error)
}

func (c *Client) hooks() sessionHooks {
	c.callbackMu.RLock()
	defer c.callbackMu.RUnlock()
	return sessionHooks{onConnect: c.onConnect, onDisconnect: c.onDisconnect, onFatal: c.onFatal}
}

func (c *Client) setConnected(up bool) {
	c.connMu.Lock()
	c.connected = up
	if up {
		c.reconnectAttempts = 0
	}
	c.connMu.Unlock()
}

// handleConnect runs on every successful (re)connect. Tracked request
// subscriptions are replayed before the OnConnect hook fires, so the hook
// may report properties knowing commands will be received.
func (c *Client) handleConnect() {
	c.setConnected(true)
	c.restoreSubscriptions()

	if fn := c.hooks().onConnect; fn != nil {
		fn()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.setConnected(false)

	if logger := c.getLogger(); logger != nil {
		logger.Warn("platform connection lost", "device_id", c.options.DeviceID, "error", err)
	}
	if fn := c.hooks().onDisconnect; fn != nil {
		fn(err)
	}
}

// handleReconnecting is called by paho before every reconnect attempt.
//
// It re-signs the credentials, whose timestamp would otherwise go stale,
// and abandons the session once MaxReconnectAttempts consecutive attempts
// have failed.
func (c *Client) handleReconnecting(po *pahomqtt.ClientOptions) {
	c.connMu.Lock()
	c.reconnectAttempts++
	attempts := c.reconnectAttempts
	exhausted := c.options.MaxReconnectAttempts > 0 && attempts > c.options.MaxReconnectAttempts && !c.abandoned
	if exhausted {
		c.abandoned = true
	}
	c.connMu.Unlock()

	if exhausted {
		// Disconnect must not run on paho's reconnect goroutine.
		go c.abandon(attempts - 1)
		return
	}

	if po != nil {
		applyCredentials(po, c.options, time.Now())
	}
	if logger := c.getLogger(); logger != nil {
		logger.Info("reconnecting to platform", "device_id", c.options.DeviceID, "attempt", attempts)
	}
}

func (c *Client) abandon(failed int) {
	if c.client != nil {
		c.client.Disconnect(0)
	}
	c.setConnected(false)

	err := fmt.Errorf("%w: %d consecutive attempts failed", ErrReconnectExhausted, failed)
	if logger := c.getLogger(); logger != nil {
		logger.Error("platform session abandoned", "device_id", c.options.DeviceID, "error", err)
	}
	if fn := c.hooks().onFatal; fn != nil {
		fn(err)
	}
}

// restoreSubscriptions replays tracked subscriptions on a fresh session.
// It runs on paho's connect goroutine, so acknowledgements are awaited
// elsewhere and failures are only logged.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	subs := make([]subscription, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		subs = append(subs, sub)
	}
	c.subMu.RUnlock()

	for _, sub := range subs {
		token := c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
		go func(topic string) {
			if err := c.settle(token); err != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Warn("restoring subscription failed", "topic", topic, "error", err)
				}
			}
		}(sub.topic)
	}
}

// Close gracefully disconnects from the platform.
//
// Pending publishes get a quiesce period before the connection is dropped.
// Connection already closed is not an error.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.connMu.Lock()
	c.abandoned = true
	c.connMu.Unlock()

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.setConnected(false)
	return nil
}

// HealthCheck verifies the platform connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// DeviceID returns the device this session belongs to.
func (c *Client) DeviceID() string {
	return c.options.DeviceID
}

// Topics returns the topic builder for this device.
func (c *Client) Topics() Topics {
	return c.topics
}

// SetOnConnect sets a callback to be invoked when connection is established.
// This is called on initial connect and on every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback to be invoked when connection is lost.
// The error parameter describes why the connection was lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetOnFatal sets a callback invoked once when reconnection is abandoned.
// The error wraps ErrReconnectExhausted.
func (c *Client) SetOnFatal(callback func(err error)) {
	c.callbackMu.Lock()
	c.onFatal = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in handlers are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
