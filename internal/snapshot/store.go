package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidKey is returned when a device or service id is empty.
var ErrInvalidKey = errors.New("snapshot: device id and service id are required")

// Entry is one persisted baseline row.
type Entry struct {
	DeviceID   string         `json:"device_id"`
	ServiceID  string         `json:"service_id"`
	Properties map[string]any `json:"properties"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// SQLiteStore persists the last reported property values of each service
// in the property_snapshots table, one JSON document per service.
//
// It implements iotdevice.SnapshotStore. Values round-trip through JSON, so
// numbers come back as float64; change detection compares numbers by value.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store on a migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// LoadSnapshot returns the stored baseline, or nil when none exists.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context, deviceID, serviceID string) (map[string]any, error) {
	if deviceID == "" || serviceID == "" {
		return nil, ErrInvalidKey
	}

	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT properties FROM property_snapshots WHERE device_id = ? AND service_id = ?",
		deviceID, serviceID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying snapshot: %w", err)
	}

	var props map[string]any
	if err := json.Unmarshal([]byte(raw), &props); err != nil {
		return nil, fmt.Errorf("unmarshalling snapshot: %w", err)
	}
	return props, nil
}

// SaveSnapshot replaces the stored baseline of one service.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, deviceID, serviceID string, props map[string]any) error {
	if deviceID == "" || serviceID == "" {
		return ErrInvalidKey
	}
	if props == nil {
		props = map[string]any{}
	}

	raw, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("marshalling snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO property_snapshots (device_id, service_id, properties, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (device_id, service_id)
		 DO UPDATE SET properties = excluded.properties, updated_at = excluded.updated_at`,
		deviceID, serviceID, string(raw), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

// List returns every stored baseline of a device ordered by service id.
func (s *SQLiteStore) List(ctx context.Context, deviceID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT device_id, service_id, properties, updated_at
		 FROM property_snapshots
		 WHERE device_id = ?
		 ORDER BY service_id`,
		deviceID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var raw, updated string
		if err := rows.Scan(&e.DeviceID, &e.ServiceID, &raw, &updated); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &e.Properties); err != nil {
			return nil, fmt.Errorf("unmarshalling snapshot %s: %w", e.ServiceID, err)
		}
		if e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	return entries, nil
}

// Delete removes the stored baseline of one service, so the next change
// pass reports every property again.
func (s *SQLiteStore) Delete(ctx context.Context, deviceID, serviceID string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM property_snapshots WHERE device_id = ? AND service_id = ?",
		deviceID, serviceID,
	); err != nil {
		return fmt.Errorf("deleting snapshot: %w", err)
	}
	return nil
}
