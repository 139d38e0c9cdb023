package influxdb

import (
	"context"
	"encoding/json"
	"reflect"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the client.
const (
	measurementPropertyReport = "property_report"
	measurementCommand        = "device_command"
)

// PropertiesReported records one successful report as a point tagged with
// the device and service, one field per property. It implements
// iotdevice.ReportObserver.
//
// Numbers are written as floats, booleans and strings as-is, and anything
// else as its JSON encoding. Properties that cannot be encoded are dropped.
func (c *Client) PropertiesReported(_ context.Context, deviceID, serviceID string, props map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}

	fields := make(map[string]any, len(props))
	for name, value := range props {
		if v, ok := fieldValue(value); ok {
			fields[name] = v
		}
	}
	if len(fields) == 0 {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		measurementPropertyReport,
		map[string]string{
			"device_id":  deviceID,
			"service_id": serviceID,
		},
		fields,
		at,
	))
}

// WriteCommand records the outcome of one platform request.
func (c *Client) WriteCommand(deviceID, kind, serviceID string, resultCode int) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		measurementCommand,
		map[string]string{
			"device_id":  deviceID,
			"kind":       kind,
			"service_id": serviceID,
		},
		map[string]any{"result_code": resultCode},
		time.Now(),
	))
}

// fieldValue converts a property value to an InfluxDB field value.
func fieldValue(v any) (any, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case bool, string, float64:
		return x, true
	case []byte:
		return string(x), true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32:
		return rv.Float(), true
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	return string(raw), true
}
