// Package iotdevice connects application-defined device services to an IoT
// platform.
//
// An application describes each hardware capability as a Service (a fixed
// set of readable/writable properties and commands), registers it on a
// Device, and calls Init. From then on:
//
//   - FirePropertiesChanged / FireServicesChanged compare current property
//     values with the last reported baseline and report only the changes.
//   - Platform commands, property writes, and property queries are routed to
//     the owning service and answered exactly once.
//
// # Delivery
//
// The baseline advances only after the transport accepts a report. A failed
// report is re-detected and re-sent on the next pass (at-least-once).
//
// # Lifecycle
//
//	Uninitialized → Connecting → Connected → Closed
//	                     ↘            ↘
//	                      Failed ───→ Closed
//
// Close is idempotent. Init never retries.
//
// # Usage
//
//	dev := iotdevice.New("ssl://iot-mqtts.example.com:8883", "smoke-01", secret,
//	    iotdevice.WithLogger(logger))
//
//	svc := iotdevice.NewServiceTable().
//	    Property("alarm", func() (any, error) { return sensor.Alarm(), nil }, nil)
//	if err := dev.AddService("smokeDetector", svc); err != nil {
//	    return err
//	}
//
//	if err := dev.Init(ctx); err != nil {
//	    return err
//	}
//	defer dev.Close()
//
//	err := dev.FirePropertiesChanged(ctx, "smokeDetector", "alarm")
package iotdevice
