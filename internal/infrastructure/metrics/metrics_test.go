package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/nerrad567/gray-logic-device/pkg/iotdevice"
)

// Compile-time check.
var _ iotdevice.Metrics = (*Metrics)(nil)

// find returns the metric of family name whose labels include want.
func find(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metric:
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue metric
				}
			}
			return m
		}
	}
	t.Fatalf("metric %s%v not found", name, want)
	return nil
}

func TestMetrics_ReportCompleted(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.ReportCompleted("smokeDetector", 20*time.Millisecond, nil)
	m.ReportCompleted("smokeDetector", 30*time.Millisecond, nil)
	m.ReportCompleted("smokeDetector", time.Second, errors.New("timeout"))

	tests := []struct {
		outcome string
		want    float64
	}{
		{"success", 2},
		{"error", 1},
	}
	for _, tt := range tests {
		got := find(t, reg, "graylogic_device_property_reports_total",
			map[string]string{"service_id": "smokeDetector", "outcome": tt.outcome}).GetCounter().GetValue()
		if got != tt.want {
			t.Errorf("reports{outcome=%s} = %v, want %v", tt.outcome, got, tt.want)
		}
	}

	h := find(t, reg, "graylogic_device_property_report_duration_seconds",
		map[string]string{"service_id": "smokeDetector"}).GetHistogram()
	if h.GetSampleCount() != 3 {
		t.Errorf("latency samples = %d, want 3", h.GetSampleCount())
	}
}

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.PropertyReadFailed("smokeDetector", "threshold")
	m.CommandHandled("command", "smokeDetector", 0)
	m.CommandHandled("command", "smokeDetector", 1)
	m.CommandHandled("command", "smokeDetector", 1)

	if got := find(t, reg, "graylogic_device_property_read_errors_total",
		map[string]string{"property": "threshold"}).GetCounter().GetValue(); got != 1 {
		t.Errorf("read errors = %v, want 1", got)
	}
	if got := find(t, reg, "graylogic_device_platform_requests_total",
		map[string]string{"result_code": "1"}).GetCounter().GetValue(); got != 2 {
		t.Errorf("failed requests = %v, want 2", got)
	}
}

func TestMetrics_StateChanged(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.StateChanged("connecting")
	m.StateChanged("connected")

	tests := map[string]float64{
		"connecting": 0,
		"connected":  1,
		"failed":     0,
	}
	for state, want := range tests {
		got := find(t, reg, "graylogic_device_state", map[string]string{"state": state}).GetGauge().GetValue()
		if got != want {
			t.Errorf("state{%s} = %v, want %v", state, got, want)
		}
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ReportCompleted("s", time.Millisecond, nil)
	m.PropertyReadFailed("s", "p")
	m.CommandHandled("command", "s", 0)
	m.StateChanged("connected")
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ReportCompleted("smokeDetector", time.Millisecond, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	for _, want := range []string{"graylogic_device_property_reports_total", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
