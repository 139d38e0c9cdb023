// Package metrics exports device SDK activity to Prometheus: report counts
// and latency, property read errors, platform requests, and the lifecycle
// state. Pass a *Metrics to iotdevice.WithMetrics and mount Handler on the
// status server.
package metrics
