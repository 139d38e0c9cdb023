// Package mqtt provides the device-side MQTT session with the IoT platform.
//
// This package manages:
//   - Connection with signed shared-secret or X.509 client authentication
//   - Property reports, device messages, and events
//   - Command, property-set, and property-get requests with one response each
//   - Auto-reconnect with credential refresh and an optional attempt limit
//   - Connection health monitoring
//
// # Topics
//
// All topics are scoped to the device:
//
//	$oc/devices/{device_id}/sys/properties/report          device → platform
//	$oc/devices/{device_id}/sys/commands/request_id={id}   platform → device
//	$oc/devices/{device_id}/sys/commands/response/request_id={id}
//	$oc/devices/{device_id}/sys/properties/set/request_id={id}
//	$oc/devices/{device_id}/sys/properties/get/request_id={id}
//	$oc/devices/{device_id}/sys/messages/up | messages/down
//	$oc/devices/{device_id}/sys/events/up
//
// # Authentication
//
// The client ID is {device_id}_0_0_{YYYYMMDDHH}. With a shared secret the
// password is hex(HMAC-SHA256(key=timestamp, secret)); it is re-signed before
// every reconnect attempt.
//
// # Security Considerations
//
//   - Use ssl:// URIs in production; tcp:// is for local test brokers
//   - InsecureSkipVerify exists for development brokers only
//   - Secrets are never logged
//
// # Usage
//
// Most applications reach the session through the device facade, which
// owns it:
//
//	if client, ok := device.MQTTClient(); ok {
//	    err := client.ReportDeviceMessage(ctx, mqtt.DeviceMessage{Content: "hello"})
//	}
//
// Standalone use opens the session directly:
//
//	client, err := mqtt.Connect(ctx, mqtt.Options{
//	    ServerURI: "ssl://iot-mqtts.example.com:8883",
//	    DeviceID:  "smoke-01",
//	    Secret:    os.Getenv("GRAYLOGIC_DEVICE_SECRET"),
//	    QoS:       1,
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.ReportProperties(ctx, []mqtt.ServiceProperty{{
//	    ServiceID:  "smokeDetector",
//	    Properties: map[string]any{"alarm": 1},
//	}})
package mqtt
