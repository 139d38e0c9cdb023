package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nerrad567/gray-logic-device/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-device/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-device/pkg/iotdevice"
)

// Compile-time check.
var _ Device = (*iotdevice.Device)(nil)

// fakeDevice is a hand-written Device.
type fakeDevice struct {
	mu       sync.Mutex
	state    iotdevice.State
	services map[string]map[string]any
	order    []string
	readErr  error
	fireErr  error
	fired    []string
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		state: iotdevice.StateConnected,
		services: map[string]map[string]any{
			"smokeDetector": {"smokeAlarm": 0, "threshold": 0.3},
		},
		order: []string{"smokeDetector"},
	}
}

func (f *fakeDevice) DeviceID() string { return "smoke-01" }

func (f *fakeDevice) State() iotdevice.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeDevice) ServiceIDs() []string { return f.order }

func (f *fakeDevice) Properties(id string) (map[string]any, error) {
	props, ok := f.services[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", iotdevice.ErrServiceNotFound, id)
	}
	if f.readErr != nil {
		return props, errors.Join(f.readErr)
	}
	return props, nil
}

func (f *fakeDevice) Baseline(id string) (map[string]any, bool) {
	if _, ok := f.services[id]; !ok {
		return nil, false
	}
	return map[string]any{"smokeAlarm": 0}, true
}

func (f *fakeDevice) FirePropertiesChanged(_ context.Context, id string, _ ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.services[id]; !ok {
		return fmt.Errorf("%w: %s", iotdevice.ErrServiceNotFound, id)
	}
	f.fired = append(f.fired, id)
	return f.fireErr
}

// checkFunc adapts a function to HealthChecker.
type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

func testServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = testLogger()
	}
	if deps.Device == nil {
		deps.Device = newFakeDevice()
	}
	deps.Version = "test"
	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, httptest.NewRequest(method, path, r))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{Device: newFakeDevice()}); err == nil {
		t.Error("New() without logger error = nil, want error")
	}
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New() without device error = nil, want error")
	}
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name       string
		state      iotdevice.State
		checks     map[string]HealthChecker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "connected no checks",
			state:      iotdevice.StateConnected,
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name:  "connected checks pass",
			state: iotdevice.StateConnected,
			checks: map[string]HealthChecker{
				"mqtt": checkFunc(func(context.Context) error { return nil }),
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"mqtt": "ok"},
		},
		{
			name:  "failing check",
			state: iotdevice.StateConnected,
			checks: map[string]HealthChecker{
				"mqtt":     checkFunc(func(context.Context) error { return nil }),
				"database": checkFunc(func(context.Context) error { return errors.New("disk I/O error") }),
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "degraded",
			wantChecks: map[string]string{"mqtt": "ok", "database": "disk I/O error"},
		},
		{
			name:       "device failed",
			state:      iotdevice.StateFailed,
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "degraded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newFakeDevice()
			dev.state = tt.state
			srv := testServer(t, Deps{Device: dev, Checks: tt.checks})

			rec := do(t, srv, http.MethodGet, "/api/v1/health", "")
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			resp := decode[HealthResponse](t, rec)
			if resp.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", resp.Status, tt.wantStatus)
			}
			if resp.State != tt.state.String() || resp.DeviceID != "smoke-01" || resp.Version != "test" {
				t.Errorf("response = %+v", resp)
			}
			if diff := cmp.Diff(tt.wantChecks, resp.Checks); diff != "" {
				t.Errorf("checks mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHandleListServices(t *testing.T) {
	srv := testServer(t, Deps{})

	rec := do(t, srv, http.MethodGet, "/api/v1/services", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decode[struct {
		Services []string `json:"services"`
		Count    int      `json:"count"`
	}](t, rec)
	if resp.Count != 1 || resp.Services[0] != "smokeDetector" {
		t.Errorf("response = %+v", resp)
	}
}

func TestHandleGetService(t *testing.T) {
	dev := newFakeDevice()
	srv := testServer(t, Deps{Device: dev})

	rec := do(t, srv, http.MethodGet, "/api/v1/services/smokeDetector", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decode[ServiceResponse](t, rec)
	want := ServiceResponse{
		ServiceID:  "smokeDetector",
		Properties: map[string]any{"smokeAlarm": 0.0, "threshold": 0.3},
		Reported:   map[string]any{"smokeAlarm": 0.0},
	}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/services/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown service status = %d, want 404", rec.Code)
	}

	dev.readErr = errors.New("i2c timeout")
	rec = do(t, srv, http.MethodGet, "/api/v1/services/smokeDetector", "")
	resp = decode[ServiceResponse](t, rec)
	if diff := cmp.Diff([]string{"i2c timeout"}, resp.Errors); diff != "" {
		t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleReportService(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		fireErr  error
		wantCode int
	}{
		{"reported", "/api/v1/services/smokeDetector/report", nil, http.StatusOK},
		{"unknown service", "/api/v1/services/nope/report", nil, http.StatusNotFound},
		{"not connected", "/api/v1/services/smokeDetector/report", iotdevice.ErrNotConnected, http.StatusConflict},
		{"report failed", "/api/v1/services/smokeDetector/report", &iotdevice.ReportError{ServiceID: "smokeDetector", Err: errors.New("timeout")}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newFakeDevice()
			dev.fireErr = tt.fireErr
			srv := testServer(t, Deps{Device: dev})

			rec := do(t, srv, http.MethodPost, tt.path, "")
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

func TestHandleInvokeCommand(t *testing.T) {
	var got iotdevice.CommandEnvelope
	handler := func(_ context.Context, env iotdevice.CommandEnvelope) iotdevice.AckResult {
		got = env
		switch env.Name {
		case "silence":
			return iotdevice.AckResult{ResultCode: iotdevice.ResultSuccess, ResultDesc: "success", Payload: map[string]any{"silenced": true}}
		case "unknown":
			err := iotdevice.ErrCommandNotFound
			return iotdevice.AckResult{ResultCode: iotdevice.ResultFailure, ResultDesc: err.Error(), Err: err}
		default:
			err := errors.New("sensor busy")
			return iotdevice.AckResult{ResultCode: iotdevice.ResultFailure, ResultDesc: err.Error(), Err: err}
		}
	}
	srv := testServer(t, Deps{Commands: handler})

	tests := []struct {
		name     string
		command  string
		body     string
		wantCode int
		wantDesc string
	}{
		{"success", "silence", `{"duration": 30}`, http.StatusOK, "success"},
		{"empty body", "silence", "", http.StatusOK, "success"},
		{"unknown command", "unknown", "", http.StatusNotFound, iotdevice.ErrCommandNotFound.Error()},
		{"application error", "calibrate", "", http.StatusUnprocessableEntity, "sensor busy"},
		{"bad json", "silence", "{", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/api/v1/services/smokeDetector/commands/"+tt.command, tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantDesc == "" {
				return
			}
			resp := decode[CommandResponse](t, rec)
			if resp.ResultDesc != tt.wantDesc {
				t.Errorf("ResultDesc = %q, want %q", resp.ResultDesc, tt.wantDesc)
			}
			if resp.RequestID == "" || resp.RequestID != rec.Header().Get("X-Request-ID") {
				t.Errorf("RequestID = %q, header = %q", resp.RequestID, rec.Header().Get("X-Request-ID"))
			}
		})
	}

	do(t, srv, http.MethodPost, "/api/v1/services/smokeDetector/commands/silence", `{"duration": 30}`)
	if got.Kind != iotdevice.KindCommand || got.ServiceID != "smokeDetector" || got.Payload["duration"] != 30.0 {
		t.Errorf("envelope = %+v", got)
	}
}

func TestHandleInvokeCommand_Disabled(t *testing.T) {
	srv := testServer(t, Deps{})
	rec := do(t, srv, http.MethodPost, "/api/v1/services/smokeDetector/commands/silence", "")
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "graylogic_device_state 1\n") //nolint:errcheck // Test handler
	})
	srv := testServer(t, Deps{Metrics: metrics})

	rec := do(t, srv, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "graylogic_device_state") {
		t.Errorf("status = %d body = %q", rec.Code, rec.Body.String())
	}

	srv = testServer(t, Deps{})
	if rec := do(t, srv, http.MethodGet, "/metrics", ""); rec.Code != http.StatusNotFound {
		t.Errorf("status without metrics = %d, want 404", rec.Code)
	}
}

func TestRequestIDPropagation(t *testing.T) {
	srv := testServer(t, Deps{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/services", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "abc-123")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	srv := testServer(t, Deps{})
	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestServer_StartAndClose(t *testing.T) {
	srv := testServer(t, Deps{Config: config.StatusConfig{
		Host:     "127.0.0.1",
		Port:     0,
		Timeouts: config.StatusTimeoutConfig{Read: 5, Write: 5, Idle: 5},
	}})

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start error = nil, want error")
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer srv.Close() //nolint:errcheck // Test cleanup

	if err := srv.Start(context.Background()); err == nil {
		t.Error("second Start() error = nil, want error")
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + srv.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
