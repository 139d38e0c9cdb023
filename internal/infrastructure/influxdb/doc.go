// Package influxdb keeps a history of the device's property reports in
// InfluxDB v2.
//
// The Client implements iotdevice.ReportObserver: every report the platform
// acknowledged becomes one point in the property_report measurement, tagged
// with device_id and service_id. Writes are batched and non-blocking, so a
// slow or absent InfluxDB never delays reporting.
//
// Usage:
//
//	history, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer history.Close()
//
//	device := iotdevice.New(uri, id, secret, iotdevice.WithReportObserver(history))
package influxdb
