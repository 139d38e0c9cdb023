package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefixDevices is the base for all device-scoped platform topics.
// Full scheme: $oc/devices/{device_id}/sys/{category}/...
const TopicPrefixDevices = "$oc/devices"

// requestIDMarker precedes the request identifier in request/response topics.
const requestIDMarker = "request_id="

// Topics provides builders for the platform topics of one device.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{DeviceID: "smoke-01"}
//	topics.PropertiesReport()
//	// Returns: "$oc/devices/smoke-01/sys/properties/report"
type Topics struct {
	DeviceID string
}

func (t Topics) sys(suffix string) string {
	return fmt.Sprintf("%s/%s/sys/%s", TopicPrefixDevices, t.DeviceID, suffix)
}

// =============================================================================
// Device → Platform
// =============================================================================

// PropertiesReport returns the topic for property reports.
//
// Example: $oc/devices/smoke-01/sys/properties/report
func (t Topics) PropertiesReport() string {
	return t.sys("properties/report")
}

// MessagesUp returns the topic for free-form device messages.
//
// Example: $oc/devices/smoke-01/sys/messages/up
func (t Topics) MessagesUp() string {
	return t.sys("messages/up")
}

// EventsUp returns the topic for device events.
//
// Example: $oc/devices/smoke-01/sys/events/up
func (t Topics) EventsUp() string {
	return t.sys("events/up")
}

// CommandResponse returns the topic answering the command with requestID.
//
// Example: $oc/devices/smoke-01/sys/commands/response/request_id=abc
func (t Topics) CommandResponse(requestID string) string {
	return t.sys("commands/response/" + requestIDMarker + requestID)
}

// PropertiesSetResponse returns the topic answering a property write.
//
// Example: $oc/devices/smoke-01/sys/properties/set/response/request_id=abc
func (t Topics) PropertiesSetResponse(requestID string) string {
	return t.sys("properties/set/response/" + requestIDMarker + requestID)
}

// PropertiesGetResponse returns the topic answering a property query.
//
// Example: $oc/devices/smoke-01/sys/properties/get/response/request_id=abc
func (t Topics) PropertiesGetResponse(requestID string) string {
	return t.sys("properties/get/response/" + requestIDMarker + requestID)
}

// =============================================================================
// Platform → Device
// =============================================================================

// CommandRequests returns the subscription pattern for platform commands.
//
// Example: $oc/devices/smoke-01/sys/commands/#
func (t Topics) CommandRequests() string {
	return t.sys("commands/#")
}

// PropertiesSetRequests returns the subscription pattern for property writes.
//
// Example: $oc/devices/smoke-01/sys/properties/set/#
func (t Topics) PropertiesSetRequests() string {
	return t.sys("properties/set/#")
}

// PropertiesGetRequests returns the subscription pattern for property queries.
//
// Example: $oc/devices/smoke-01/sys/properties/get/#
func (t Topics) PropertiesGetRequests() string {
	return t.sys("properties/get/#")
}

// MessagesDown returns the topic for platform-to-device messages.
//
// Example: $oc/devices/smoke-01/sys/messages/down
func (t Topics) MessagesDown() string {
	return t.sys("messages/down")
}

// =============================================================================
// Parsing
// =============================================================================

// RequestID extracts the request identifier from a request topic.
//
// Returns an empty string when the topic carries no request_id segment.
func RequestID(topic string) string {
	i := strings.LastIndex(topic, requestIDMarker)
	if i < 0 {
		return ""
	}
	id := topic[i+len(requestIDMarker):]
	if j := strings.IndexByte(id, '/'); j >= 0 {
		id = id[:j]
	}
	return id
}

// IsResponseTopic reports whether topic is one of the device's own response
// topics. Wildcard request subscriptions also match these and they must be ignored.
func IsResponseTopic(topic string) bool {
	return strings.Contains(topic, "/response/")
}
