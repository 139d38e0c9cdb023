package iotdevice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a Device.
type State int

const (
	// StateUninitialized is the state before Init.
	StateUninitialized State = iota
	// StateConnecting is held while Init opens the transport session.
	StateConnecting
	// StateConnected allows reporting.
	StateConnected
	// StateClosed is terminal; Close was called.
	StateClosed
	// StateFailed means Init failed or the session was lost for good.
	// Only Close is allowed.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Device is the application's entry point: it owns the service registry,
// holds the transport session, and reports property changes.
//
// Services may be added in any state. Reporting requires StateConnected.
//
// All public methods are thread-safe.
type Device struct {
	identity  Identity
	transport Transport
	registry  *Registry
	router    *Router

	stateMu sync.Mutex
	state   State

	logger    Logger
	store     SnapshotStore
	observers []ReportObserver
	metrics   Metrics
}

// NewWithTransport creates a device that uses the given transport.
// The identity is validated by Init, not here.
func NewWithTransport(identity Identity, transport Transport, opts ...Option) *Device {
	d := &Device{
		identity:  identity,
		transport: transport,
		registry:  NewRegistry(),
		state:     StateUninitialized,
		logger:    discardLogger,
		metrics:   noopMetrics{},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.router = newRouter(d.registry, d.reportWritten, d.logger, d.metrics)
	return d
}

// =============================================================================
// Lifecycle
// =============================================================================

// Init validates the identity and opens the transport session.
//
// Valid only from StateUninitialized; otherwise ErrInvalidState. On
// failure the device moves to StateFailed and a *ConnectError is returned.
// Init does not retry.
func (d *Device) Init(ctx context.Context) error {
	if err := d.transition(StateUninitialized, StateConnecting); err != nil {
		return err
	}

	fail := func(err error) error {
		d.setState(StateFailed)
		cerr := &ConnectError{ServerURI: d.identity.ServerURI, DeviceID: d.identity.DeviceID, Err: err}
		d.logger.Error("device init failed", "device_id", d.identity.DeviceID, "error", err)
		return cerr
	}

	if err := d.identity.Validate(); err != nil {
		return fail(err)
	}

	if n, ok := d.transport.(FatalErrorNotifier); ok {
		n.SetOnFatal(d.handleFatal)
	}

	if err := d.transport.SubscribeCommands(d.router.Handle); err != nil {
		return fail(err)
	}

	if err := d.transport.Connect(ctx, d.identity); err != nil {
		return fail(err)
	}

	d.setState(StateConnected)
	d.logger.Info("device connected",
		"device_id", d.identity.DeviceID,
		"server_uri", d.identity.ServerURI,
		"credential", d.identity.Credential.Kind().String(),
		"services", d.registry.Len())
	return nil
}

// Close releases the transport session.
//
// From StateConnected or StateFailed it moves to StateClosed and closes the
// transport once. From StateClosed it is a no-op. Before Init completes it
// returns ErrInvalidState.
func (d *Device) Close() error {
	d.stateMu.Lock()
	switch d.state {
	case StateClosed:
		d.stateMu.Unlock()
		return nil
	case StateConnected, StateFailed:
		d.state = StateClosed
		d.stateMu.Unlock()
	default:
		state := d.state
		d.stateMu.Unlock()
		return fmt.Errorf("%w: close from %s", ErrInvalidState, state)
	}

	d.metrics.StateChanged(StateClosed.String())
	d.logger.Info("device closed", "device_id", d.identity.DeviceID)

	if err := d.transport.Close(); err != nil {
		return fmt.Errorf("closing transport: %w", err)
	}
	return nil
}

// State returns the current lifecycle state.
func (d *Device) State() State {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return d.state
}

// transition atomically moves from one state to another.
func (d *Device) transition(from, to State) error {
	d.stateMu.Lock()
	if d.state != from {
		state := d.state
		d.stateMu.Unlock()
		return fmt.Errorf("%w: %s required, device is %s", ErrInvalidState, from, state)
	}
	d.state = to
	d.stateMu.Unlock()

	d.metrics.StateChanged(to.String())
	return nil
}

func (d *Device) setState(s State) {
	d.stateMu.Lock()
	d.state = s
	d.stateMu.Unlock()
	d.metrics.StateChanged(s.String())
}

// handleFatal moves a connected device to StateFailed.
func (d *Device) handleFatal(err error) {
	if terr := d.transition(StateConnected, StateFailed); terr != nil {
		return
	}
	d.logger.Error("transport session lost", "device_id", d.identity.DeviceID, "error", err)
}

// =============================================================================
// Services
// =============================================================================

// AddService registers a service. Valid in any state.
func (d *Device) AddService(serviceID string, svc Service) error {
	if err := d.registry.Register(serviceID, svc); err != nil {
		return err
	}
	d.logger.Debug("service added", "device_id", d.identity.DeviceID, "service_id", serviceID)
	return nil
}

// GetService returns the service registered under serviceID.
func (d *Device) GetService(serviceID string) (Service, bool) {
	return d.registry.Lookup(serviceID)
}

// ServiceIDs returns the registered service IDs in registration order.
func (d *Device) ServiceIDs() []string {
	return d.registry.IDs()
}

// Baseline returns a copy of the last reported values of a service.
func (d *Device) Baseline(serviceID string) (map[string]any, bool) {
	e, ok := d.registry.entry(serviceID)
	if !ok {
		return nil, false
	}
	return e.baseline(), true
}

// Properties reads the current values of a service's declared properties.
// Read faults are returned joined alongside the values that could be read.
func (d *Device) Properties(serviceID string) (map[string]any, error) {
	e, ok := d.registry.entry(serviceID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, serviceID)
	}
	props, errs := readAll(e)
	return props, errors.Join(errs...)
}

// DeviceID returns the platform device identifier.
func (d *Device) DeviceID() string {
	return d.identity.DeviceID
}

// Client returns the transport for direct protocol calls. Traffic sent
// through it may interleave freely with the device's own reports.
func (d *Device) Client() Transport {
	return d.transport
}

// Router returns the request dispatcher, for transports that deliver
// requests without SubscribeCommands.
func (d *Device) Router() *Router {
	return d.router
}

// =============================================================================
// Change reporting
// =============================================================================

// FirePropertiesChanged reports the named properties of one service if their
// values differ from the baseline. With no names every declared property is
// checked.
//
// Returns ErrNotConnected outside StateConnected and ErrServiceNotFound for an
// unknown service. Property read faults and a report failure are returned
// joined; properties that were read are still reported.
func (d *Device) FirePropertiesChanged(ctx context.Context, serviceID string, names ...string) error {
	if err := d.requireConnected(); err != nil {
		return err
	}

	e, ok := d.registry.entry(serviceID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, serviceID)
	}
	return d.fireEntry(ctx, e, names)
}

// FireServicesChanged checks every declared property of each listed service
// and reports the changes, one report per service, in the given order.
//
// A fault on one service does not stop the others; all faults are returned
// joined. An empty list is a no-op.
func (d *Device) FireServicesChanged(ctx context.Context, serviceIDs []string) error {
	if err := d.requireConnected(); err != nil {
		return err
	}
	if len(serviceIDs) == 0 {
		return nil
	}

	pass := uuid.NewString()
	d.logger.Debug("services changed", "device_id", d.identity.DeviceID, "pass", pass, "services", len(serviceIDs))

	var errs []error
	for _, id := range serviceIDs {
		e, ok := d.registry.entry(id)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrServiceNotFound, id))
			continue
		}
		if err := d.fireEntry(ctx, e, nil); err != nil {
			d.logger.Warn("service change pass failed", "pass", pass, "service_id", id, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FireAllServicesChanged is FireServicesChanged over every registered service.
func (d *Device) FireAllServicesChanged(ctx context.Context) error {
	return d.FireServicesChanged(ctx, d.registry.IDs())
}

func (d *Device) requireConnected() error {
	if s := d.State(); s != StateConnected {
		return fmt.Errorf("%w: device is %s", ErrNotConnected, s)
	}
	return nil
}

// reportWritten reports properties written by the platform.
func (d *Device) reportWritten(ctx context.Context, e *serviceEntry, names []string) error {
	if err := d.requireConnected(); err != nil {
		return err
	}
	return d.fireEntry(ctx, e, names)
}

// fireEntry runs detect → report → commit for one service under its lock.
func (d *Device) fireEntry(ctx context.Context, e *serviceEntry, names []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	d.loadBaseline(ctx, e)

	changes, errs := e.detect(names)
	for _, err := range errs {
		var perr *PropertyReadError
		if errors.As(err, &perr) {
			d.metrics.PropertyReadFailed(perr.ServiceID, perr.Property)
		}
		d.logger.Warn("property read failed", "device_id", d.identity.DeviceID, "error", err)
	}

	if len(changes) == 0 {
		return errors.Join(errs...)
	}

	if err := d.report(ctx, e.id, changes); err != nil {
		errs = append(errs, err)
		return errors.Join(errs...)
	}

	e.commit(changes)
	d.saveBaseline(ctx, e)
	return errors.Join(errs...)
}

// report sends one service's changes through the transport.
func (d *Device) report(ctx context.Context, serviceID string, changes map[string]any) error {
	start := time.Now()
	err := d.transport.Report(ctx, ServiceChanges{ServiceID: serviceID, Properties: deepCopyMap(changes)})
	d.metrics.ReportCompleted(serviceID, time.Since(start), err)

	if err != nil {
		d.logger.Warn("property report failed",
			"device_id", d.identity.DeviceID,
			"service_id", serviceID,
			"error", err)
		return &ReportError{ServiceID: serviceID, Err: err}
	}

	d.logger.Debug("properties reported",
		"device_id", d.identity.DeviceID,
		"service_id", serviceID,
		"count", len(changes))

	at := time.Now()
	for _, o := range d.observers {
		o.PropertiesReported(ctx, d.identity.DeviceID, serviceID, deepCopyMap(changes), at)
	}
	return nil
}

// loadBaseline restores a persisted baseline on first use. Callers hold e.mu.
func (d *Device) loadBaseline(ctx context.Context, e *serviceEntry) {
	if e.loaded || d.store == nil {
		return
	}
	e.loaded = true

	stored, err := d.store.LoadSnapshot(ctx, d.identity.DeviceID, e.id)
	if err != nil {
		d.logger.Warn("loading baseline failed", "service_id", e.id, "error", err)
		return
	}
	for name, value := range stored {
		if _, ok := e.snapshot[name]; !ok {
			e.snapshot[name] = value
		}
	}
	e.prune(e.svc.PropertyNames())
}

// saveBaseline persists the baseline. Failures are logged only; the
// in-memory baseline stays authoritative. Callers hold e.mu.
func (d *Device) saveBaseline(ctx context.Context, e *serviceEntry) {
	if d.store == nil {
		return
	}
	if err := d.store.SaveSnapshot(ctx, d.identity.DeviceID, e.id, deepCopyMap(e.snapshot)); err != nil {
		d.logger.Warn("saving baseline failed", "service_id", e.id, "error", err)
	}
}
