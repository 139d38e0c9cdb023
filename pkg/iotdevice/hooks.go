package iotdevice

import (
	"context"
	"time"
)

// SnapshotStore persists reported-value baselines across restarts, so a
// restarted device does not re-report values the platform already has.
type SnapshotStore interface {
	// LoadSnapshot returns the stored baseline, or an empty map if none exists.
	LoadSnapshot(ctx context.Context, deviceID, serviceID string) (map[string]any, error)

	// SaveSnapshot replaces the stored baseline of one service.
	SaveSnapshot(ctx context.Context, deviceID, serviceID string, properties map[string]any) error
}

// ReportObserver is told about every successful property report.
type ReportObserver interface {
	PropertiesReported(ctx context.Context, deviceID, serviceID string, properties map[string]any, at time.Time)
}

// Metrics records SDK activity. Labels are plain strings.
type Metrics interface {
	ReportCompleted(serviceID string, duration time.Duration, err error)
	PropertyReadFailed(serviceID, property string)
	CommandHandled(kind, serviceID string, resultCode int)
	StateChanged(state string)
}

// noopMetrics discards all measurements.
type noopMetrics struct{}

func (noopMetrics) ReportCompleted(string, time.Duration, error) {}
func (noopMetrics) PropertyReadFailed(string, string)            {}
func (noopMetrics) CommandHandled(string, string, int)           {}
func (noopMetrics) StateChanged(string)                          {}
