package iotdevice

import "context"

// Service is the capability contract of one device service.
//
// Implementations describe their properties and commands explicitly;
// the SDK never inspects service values by reflection.
//
// ReadProperty and WriteProperty for one service are never called
// concurrently by the SDK, but may run concurrently with application code.
type Service interface {
	// PropertyNames lists the properties the service currently declares.
	PropertyNames() []string

	// ReadProperty returns the current value of a declared property.
	ReadProperty(name string) (any, error)

	// WriteProperty applies a platform write. Read-only properties
	// return ErrPropertyNotWritable.
	WriteProperty(name string, value any) error

	// CommandNames lists the commands the service accepts.
	CommandNames() []string

	// InvokeCommand executes a declared command and returns its response parameters.
	InvokeCommand(ctx context.Context, name string, paras map[string]any) (map[string]any, error)
}

// declares reports whether name is in names.
func declares(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
