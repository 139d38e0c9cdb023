package iotdevice

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MockTransport records calls instead of talking to a platform.
type MockTransport struct {
	mu sync.Mutex

	ConnectErr   error
	ReportErr    error
	SubscribeErr error
	CloseErr     error

	ConnectCalls int
	CloseCalls   int
	Identity     Identity
	Reports      []ServiceChanges

	handler CommandHandler
	onFatal func(error)
}

func (m *MockTransport) Connect(_ context.Context, identity Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConnectCalls++
	m.Identity = identity
	return m.ConnectErr
}

func (m *MockTransport) Report(_ context.Context, changes ServiceChanges) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReportErr != nil {
		return m.ReportErr
	}
	m.Reports = append(m.Reports, changes)
	return nil
}

func (m *MockTransport) SubscribeCommands(handler CommandHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubscribeErr != nil {
		return m.SubscribeErr
	}
	m.handler = handler
	return nil
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalls++
	return m.CloseErr
}

func (m *MockTransport) SetOnFatal(fn func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFatal = fn
}

// Deliver plays an inbound platform request through the subscribed handler.
func (m *MockTransport) Deliver(env CommandEnvelope) AckResult {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	return h(context.Background(), env)
}

// Fatal simulates a permanently lost session.
func (m *MockTransport) Fatal(err error) {
	m.mu.Lock()
	fn := m.onFatal
	m.mu.Unlock()
	fn(err)
}

func (m *MockTransport) setReportErr(err error) {
	m.mu.Lock()
	m.ReportErr = err
	m.mu.Unlock()
}

func (m *MockTransport) reports() []ServiceChanges {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ServiceChanges(nil), m.Reports...)
}

// smokeDetector is a hand-written Service with mutable state.
type smokeDetector struct {
	mu        sync.Mutex
	alarm     int
	threshold float64
	readErr   map[string]error
	silenced  bool
}

func (s *smokeDetector) PropertyNames() []string {
	return []string{"smokeAlarm", "threshold"}
}

func (s *smokeDetector) ReadProperty(name string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readErr[name]; err != nil {
		return nil, err
	}
	switch name {
	case "smokeAlarm":
		return s.alarm, nil
	case "threshold":
		return s.threshold, nil
	}
	return nil, ErrUnknownProperty
}

func (s *smokeDetector) WriteProperty(name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch name {
	case "threshold":
		v, ok := value.(float64)
		if !ok {
			return errors.New("threshold must be a number")
		}
		s.threshold = v
		return nil
	case "smokeAlarm":
		return ErrPropertyNotWritable
	}
	return ErrUnknownProperty
}

func (s *smokeDetector) CommandNames() []string {
	return []string{"silence", "explode"}
}

func (s *smokeDetector) InvokeCommand(_ context.Context, name string, _ map[string]any) (map[string]any, error) {
	switch name {
	case "silence":
		s.mu.Lock()
		s.silenced = true
		s.mu.Unlock()
		return map[string]any{"silenced": true}, nil
	case "explode":
		panic("boom")
	}
	return nil, ErrCommandNotFound
}

func (s *smokeDetector) setAlarm(v int) {
	s.mu.Lock()
	s.alarm = v
	s.mu.Unlock()
}

func (s *smokeDetector) failRead(name string, err error) {
	s.mu.Lock()
	if s.readErr == nil {
		s.readErr = make(map[string]error)
	}
	s.readErr[name] = err
	s.mu.Unlock()
}

// memoryStore is an in-memory SnapshotStore.
type memoryStore struct {
	mu      sync.Mutex
	data    map[string]map[string]any
	loadErr error
	saveErr error
	saves   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]map[string]any)}
}

func (s *memoryStore) LoadSnapshot(_ context.Context, deviceID, serviceID string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return deepCopyMap(s.data[deviceID+"/"+serviceID]), nil
}

func (s *memoryStore) SaveSnapshot(_ context.Context, deviceID, serviceID string, props map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.data[deviceID+"/"+serviceID] = deepCopyMap(props)
	return nil
}

// recordingObserver collects successful reports.
type recordingObserver struct {
	mu      sync.Mutex
	reports []string
}

func (o *recordingObserver) PropertiesReported(_ context.Context, _, serviceID string, _ map[string]any, _ time.Time) {
	o.mu.Lock()
	o.reports = append(o.reports, serviceID)
	o.mu.Unlock()
}

// countingMetrics counts metric calls.
type countingMetrics struct {
	mu         sync.Mutex
	reports    int
	reportErrs int
	readErrs   int
	commands   map[int]int
	states     []string
}

func (m *countingMetrics) ReportCompleted(_ string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports++
	if err != nil {
		m.reportErrs++
	}
}

func (m *countingMetrics) PropertyReadFailed(string, string) {
	m.mu.Lock()
	m.readErrs++
	m.mu.Unlock()
}

func (m *countingMetrics) CommandHandled(_, _ string, code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commands == nil {
		m.commands = make(map[int]int)
	}
	m.commands[code]++
}

func (m *countingMetrics) StateChanged(state string) {
	m.mu.Lock()
	m.states = append(m.states, state)
	m.mu.Unlock()
}

// testIdentity returns a valid shared-secret identity.
func testIdentity() Identity {
	return Identity{
		ServerURI:  "ssl://iot-mqtts.example.com:8883",
		DeviceID:   "smoke-01",
		Credential: SharedSecret("secret"),
	}
}

// newConnectedDevice returns an initialised device on a mock transport
// with a smokeDetector registered as "smokeDetector".
func newConnectedDevice(tb interface {
	Helper()
	Fatalf(string, ...any)
}, opts ...Option) (*Device, *MockTransport, *smokeDetector) {
	tb.Helper()
	transport := &MockTransport{}
	d := NewWithTransport(testIdentity(), transport, opts...)
	svc := &smokeDetector{}
	if err := d.AddService("smokeDetector", svc); err != nil {
		tb.Fatalf("AddService() error = %v", err)
	}
	if err := d.Init(context.Background()); err != nil {
		tb.Fatalf("Init() error = %v", err)
	}
	return d, transport, svc
}
