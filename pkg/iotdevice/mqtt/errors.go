package mqtt

import "errors"

// Session errors. Callers match them with errors.Is; the returned error
// usually wraps one of these together with the topic or the paho cause.
var (
	// Connection lifecycle.
	ErrInvalidOptions     = errors.New("mqtt: invalid options")
	ErrConnectionFailed   = errors.New("mqtt: connection failed")
	ErrNotConnected       = errors.New("mqtt: client not connected")
	ErrReconnectExhausted = errors.New("mqtt: reconnect attempts exhausted")
	ErrTimeout            = errors.New("mqtt: operation timed out")

	// Topic operations.
	ErrInvalidTopic      = errors.New("mqtt: topic cannot be empty")
	ErrInvalidQoS        = errors.New("mqtt: qos must be 0, 1 or 2")
	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidMessage marks a platform request whose JSON body could not be decoded.
	ErrInvalidMessage = errors.New("mqtt: invalid platform message")
)
