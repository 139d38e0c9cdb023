package iotdevice

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// CommandKind classifies an inbound platform request.
type CommandKind string

const (
	// KindCommand invokes a service command.
	KindCommand CommandKind = "command"
	// KindPropertySet writes service properties.
	KindPropertySet CommandKind = "property_set"
	// KindPropertyGet reads service properties.
	KindPropertyGet CommandKind = "property_get"
)

// Result codes carried in AckResult.
const (
	ResultSuccess = 0
	ResultFailure = 1
)

// CommandEnvelope is one inbound platform request.
type CommandEnvelope struct {
	Kind      CommandKind
	RequestID string

	// ServiceID targets the service. For KindPropertyGet an empty
	// ServiceID selects every service.
	ServiceID string

	// Name is the command name. Unused for property requests.
	Name string

	// Payload holds command parameters, or property name → value for writes.
	Payload map[string]any
}

// AckResult is the single outcome of one CommandEnvelope.
type AckResult struct {
	ResultCode int
	ResultDesc string

	// Payload holds command response parameters.
	Payload map[string]any

	// Services holds values read by a KindPropertyGet request.
	Services []ServiceChanges

	// Err is the failure cause, nil on success.
	Err error
}

// OK reports whether the request succeeded.
func (a AckResult) OK() bool {
	return a.ResultCode == ResultSuccess
}

func successAck() AckResult {
	return AckResult{ResultCode: ResultSuccess, ResultDesc: "success"}
}

func failureAck(err error) AckResult {
	return AckResult{ResultCode: ResultFailure, ResultDesc: err.Error(), Err: err}
}

// reportFunc reports the named properties of one service.
type reportFunc func(ctx context.Context, e *serviceEntry, names []string) error

// Router dispatches platform requests to registered services.
//
// Every envelope yields exactly one AckResult. Unknown services,
// application errors, and panics in service code become failure acks.
type Router struct {
	registry *Registry
	report   reportFunc
	logger   Logger
	metrics  Metrics
}

// newRouter creates a router. report may be nil, in which case written
// properties are not reported back.
func newRouter(registry *Registry, report reportFunc, logger Logger, metrics Metrics) *Router {
	return &Router{
		registry: registry,
		report:   report,
		logger:   logger,
		metrics:  metrics,
	}
}

// Handle dispatches one envelope. It implements CommandHandler.
func (r *Router) Handle(ctx context.Context, env CommandEnvelope) (ack AckResult) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("service handler panic recovered",
				"request_id", env.RequestID,
				"service_id", env.ServiceID,
				"kind", string(env.Kind),
				"panic", p)
			ack = failureAck(fmt.Errorf("%w: %v", ErrHandlerPanic, p))
		}
		r.metrics.CommandHandled(string(env.Kind), env.ServiceID, ack.ResultCode)
	}()

	r.logger.Info("received platform request",
		"request_id", env.RequestID,
		"service_id", env.ServiceID,
		"kind", string(env.Kind),
		"name", env.Name)

	if env.Kind == KindPropertyGet && env.ServiceID == "" {
		return r.getAll()
	}

	e, ok := r.registry.entry(env.ServiceID)
	if !ok {
		r.logger.Warn("request for unknown service",
			"request_id", env.RequestID,
			"service_id", env.ServiceID)
		return failureAck(fmt.Errorf("%w: %s", ErrServiceNotFound, env.ServiceID))
	}

	switch env.Kind {
	case KindCommand:
		return r.invoke(ctx, e, env)
	case KindPropertySet:
		return r.set(ctx, e, env)
	case KindPropertyGet:
		return r.get(e)
	default:
		return failureAck(fmt.Errorf("%w: unsupported request kind %q", ErrCommandNotFound, env.Kind))
	}
}

// invoke runs a service command.
func (r *Router) invoke(ctx context.Context, e *serviceEntry, env CommandEnvelope) AckResult {
	if !declares(e.svc.CommandNames(), env.Name) {
		return failureAck(fmt.Errorf("%w: %s.%s", ErrCommandNotFound, e.id, env.Name))
	}

	payload, err := e.svc.InvokeCommand(ctx, env.Name, env.Payload)
	if err != nil {
		r.logger.Warn("command failed",
			"request_id", env.RequestID,
			"service_id", e.id,
			"command", env.Name,
			"error", err)
		ack := failureAck(err)
		ack.Payload = payload
		return ack
	}

	ack := successAck()
	ack.Payload = payload
	return ack
}

// set applies property writes under the entry lock, then reports the
// written properties so the platform sees the new values.
func (r *Router) set(ctx context.Context, e *serviceEntry, env CommandEnvelope) AckResult {
	names := make([]string, 0, len(env.Payload))
	for name := range env.Payload {
		names = append(names, name)
	}
	sort.Strings(names)

	written, errs := r.write(e, names, env.Payload)

	if len(written) > 0 && r.report != nil {
		if err := r.report(ctx, e, written); err != nil {
			// The write itself succeeded; the next report pass retries.
			r.logger.Warn("reporting written properties failed",
				"request_id", env.RequestID,
				"service_id", e.id,
				"error", err)
		}
	}

	if len(errs) > 0 {
		return failureAck(errors.Join(errs...))
	}
	return successAck()
}

func (r *Router) write(e *serviceEntry, names []string, values map[string]any) ([]string, []error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	declared := e.svc.PropertyNames()
	var written []string
	var errs []error

	for _, name := range names {
		if !declares(declared, name) {
			errs = append(errs, fmt.Errorf("%w: %s.%s", ErrUnknownProperty, e.id, name))
			continue
		}
		if err := e.svc.WriteProperty(name, values[name]); err != nil {
			errs = append(errs, fmt.Errorf("writing %s.%s: %w", e.id, name, err))
			continue
		}
		written = append(written, name)
	}
	return written, errs
}

// get reads every declared property of one service.
func (r *Router) get(e *serviceEntry) AckResult {
	props, errs := readAll(e)
	ack := successAck()
	if len(errs) > 0 {
		ack = failureAck(errors.Join(errs...))
	}
	ack.Services = []ServiceChanges{{ServiceID: e.id, Properties: props}}
	return ack
}

// getAll reads every service in registration order.
func (r *Router) getAll() AckResult {
	var services []ServiceChanges
	var errs []error
	for _, e := range r.registry.all() {
		props, perrs := readAll(e)
		services = append(services, ServiceChanges{ServiceID: e.id, Properties: props})
		errs = append(errs, perrs...)
	}

	ack := successAck()
	if len(errs) > 0 {
		ack = failureAck(errors.Join(errs...))
	}
	ack.Services = services
	return ack
}

// readAll reads the current value of every declared property under the entry lock.
func readAll(e *serviceEntry) (map[string]any, []error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	props := make(map[string]any)
	var errs []error
	for _, name := range e.svc.PropertyNames() {
		value, err := e.read(name)
		if err != nil {
			errs = append(errs, &PropertyReadError{ServiceID: e.id, Property: name, Err: err})
			continue
		}
		props[name] = deepCopyValue(value)
	}
	return props, errs
}
