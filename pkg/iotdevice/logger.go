package iotdevice

import "log/slog"

// Logger receives the SDK's diagnostic output. *slog.Logger satisfies it,
// as does the logging package's Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// discardLogger is used until WithLogger supplies a real one.
var discardLogger Logger = slog.New(slog.DiscardHandler)
