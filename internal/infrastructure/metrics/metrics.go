package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// namespace prefixes every metric name.
const namespace = "graylogic_device"

// deviceStates lists the lifecycle states exported by the state gauge.
var deviceStates = []string{"uninitialized", "connecting", "connected", "closed", "failed"}

// Metrics exports device SDK activity to Prometheus. It implements
// iotdevice.Metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Reports by service and outcome
	Reports *prometheus.CounterVec

	// Transport round-trip of one report
	ReportLatency *prometheus.HistogramVec

	// Property reads that failed during change detection
	PropertyReadErrors *prometheus.CounterVec

	// Platform requests by kind and result code
	Commands *prometheus.CounterVec

	// 1 for the current lifecycle state, 0 for the others
	State *prometheus.GaugeVec
}

// New creates the metrics on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry creates the metrics on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,

		Reports: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "property_reports_total",
			Help:      "Property reports sent to the platform by service and outcome",
		}, []string{"service_id", "outcome"}), // outcome: "success", "error"

		ReportLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "property_report_duration_seconds",
			Help:      "Duration of one property report including broker acknowledgement",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"service_id"}),

		PropertyReadErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "property_read_errors_total",
			Help:      "Property reads that failed during change detection",
		}, []string{"service_id", "property"}),

		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "platform_requests_total",
			Help:      "Platform requests handled by kind and result code",
		}, []string{"kind", "service_id", "result_code"}),

		State: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "Device lifecycle state (1 = current)",
		}, []string{"state"}),
	}
}

// ReportCompleted records one report attempt.
func (m *Metrics) ReportCompleted(serviceID string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.Reports.WithLabelValues(serviceID, outcome).Inc()
	m.ReportLatency.WithLabelValues(serviceID).Observe(d.Seconds())
}

// PropertyReadFailed records one failed property read.
func (m *Metrics) PropertyReadFailed(serviceID, property string) {
	if m != nil {
		m.PropertyReadErrors.WithLabelValues(serviceID, property).Inc()
	}
}

// CommandHandled records one answered platform request.
func (m *Metrics) CommandHandled(kind, serviceID string, resultCode int) {
	if m != nil {
		m.Commands.WithLabelValues(kind, serviceID, strconv.Itoa(resultCode)).Inc()
	}
}

// StateChanged marks state as the current lifecycle state.
func (m *Metrics) StateChanged(state string) {
	if m == nil {
		return
	}
	for _, s := range deviceStates {
		m.State.WithLabelValues(s).Set(0)
	}
	m.State.WithLabelValues(state).Set(1)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
