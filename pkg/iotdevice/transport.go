package iotdevice

import "context"

// Transport is the platform session used by a Device.
//
// The Device calls SubscribeCommands before Connect; implementations must
// start delivering requests once connected.
type Transport interface {
	// Connect opens the session. It is called once per Device.
	Connect(ctx context.Context, identity Identity) error

	// Report sends one service's changed properties.
	Report(ctx context.Context, changes ServiceChanges) error

	// SubscribeCommands registers the handler for inbound platform requests.
	// The handler returns exactly one AckResult per envelope.
	SubscribeCommands(handler CommandHandler) error

	// Close ends the session.
	Close() error
}

// FatalErrorNotifier is implemented by transports that can lose their
// session permanently after Connect succeeded. The Device moves to Failed
// when the callback fires.
type FatalErrorNotifier interface {
	SetOnFatal(func(err error))
}

// CommandHandler answers one inbound platform request.
type CommandHandler func(ctx context.Context, env CommandEnvelope) AckResult
