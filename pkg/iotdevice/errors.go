package iotdevice

import (
	"errors"
	"fmt"
)

// Domain errors for the iotdevice package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, iotdevice.ErrNotConnected) {
//	    // call Init first
//	}
var (
	// ErrDuplicateService is returned when registering a service ID twice.
	ErrDuplicateService = errors.New("iotdevice: service already registered")

	// ErrServiceNotFound is returned when a service ID is not registered.
	ErrServiceNotFound = errors.New("iotdevice: service not found")

	// ErrInvalidService is returned for an empty service ID or nil service.
	ErrInvalidService = errors.New("iotdevice: invalid service")

	// ErrPropertyRead is matched by every PropertyReadError.
	ErrPropertyRead = errors.New("iotdevice: property read failed")

	// ErrUnknownProperty is returned for a property the service does not declare.
	ErrUnknownProperty = errors.New("iotdevice: unknown property")

	// ErrNonFiniteValue is returned for a NaN or infinite property value,
	// which cannot be encoded in a report.
	ErrNonFiniteValue = errors.New("iotdevice: non-finite property value")

	// ErrPropertyNotWritable is returned when writing a read-only property.
	ErrPropertyNotWritable = errors.New("iotdevice: property not writable")

	// ErrCommandNotFound is returned for a command the service does not declare.
	ErrCommandNotFound = errors.New("iotdevice: command not found")

	// ErrHandlerPanic is returned when service code panics while handling a request.
	ErrHandlerPanic = errors.New("iotdevice: service handler panicked")

	// ErrNotConnected is returned when reporting outside the Connected state.
	ErrNotConnected = errors.New("iotdevice: device not connected")

	// ErrInvalidState is returned for a lifecycle call the current state does not allow.
	ErrInvalidState = errors.New("iotdevice: invalid lifecycle state")

	// ErrReport is matched by every ReportError.
	ErrReport = errors.New("iotdevice: report failed")

	// ErrConnect is matched by every ConnectError.
	ErrConnect = errors.New("iotdevice: connect failed")

	// ErrInvalidIdentity is returned when the device identity is incomplete.
	ErrInvalidIdentity = errors.New("iotdevice: invalid identity")
)

// PropertyReadError reports one property that could not be read.
// Detection continues for the remaining properties.
type PropertyReadError struct {
	ServiceID string
	Property  string
	Err       error
}

func (e *PropertyReadError) Error() string {
	return fmt.Sprintf("iotdevice: reading %s.%s: %v", e.ServiceID, e.Property, e.Err)
}

// Unwrap exposes both ErrPropertyRead and the underlying cause to errors.Is.
func (e *PropertyReadError) Unwrap() []error {
	return []error{ErrPropertyRead, e.Err}
}

// ReportError reports a transport failure while reporting one service.
// The service's baseline is left unchanged.
type ReportError struct {
	ServiceID string
	Err       error
}

func (e *ReportError) Error() string {
	return fmt.Sprintf("iotdevice: reporting %s: %v", e.ServiceID, e.Err)
}

// Unwrap exposes both ErrReport and the underlying cause to errors.Is.
func (e *ReportError) Unwrap() []error {
	return []error{ErrReport, e.Err}
}

// ConnectError reports a failed Init.
type ConnectError struct {
	ServerURI string
	DeviceID  string
	Err       error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("iotdevice: connecting %s to %s: %v", e.DeviceID, e.ServerURI, e.Err)
}

// Unwrap exposes both ErrConnect and the underlying cause to errors.Is.
func (e *ConnectError) Unwrap() []error {
	return []error{ErrConnect, e.Err}
}
