package mqtt

import (
	"time"
)

// Platform message types exchanged on the device topics.
// Field names follow the platform's JSON wire format.

// EventTimeLayout is the platform's compact UTC timestamp format.
const EventTimeLayout = "20060102T150405Z"

// FormatEventTime renders t in the platform's event_time format.
func FormatEventTime(t time.Time) string {
	return t.UTC().Format(EventTimeLayout)
}

// Result codes used in platform responses.
const (
	// ResultSuccess indicates the request was handled.
	ResultSuccess = 0

	// ResultFailure indicates the request was rejected or the handler failed.
	ResultFailure = 1
)

// ServiceProperty carries the properties of one service.
// Used in property reports, property writes, and property query responses.
type ServiceProperty struct {
	// ServiceID is the service identifier from the product model.
	ServiceID string `json:"service_id"`

	// Properties maps property names to values.
	Properties map[string]any `json:"properties"`

	// EventTime is when the values were sampled (EventTimeLayout). Optional.
	EventTime string `json:"event_time,omitempty"`
}

// PropertiesReport is sent from device to platform when properties change.
// Topic: $oc/devices/{device_id}/sys/properties/report
type PropertiesReport struct {
	Services []ServiceProperty `json:"services"`
}

// CommandRequest is sent from platform to device to invoke a command.
// Topic: $oc/devices/{device_id}/sys/commands/request_id={request_id}
type CommandRequest struct {
	// ObjectDeviceID is the target device; empty means the connected device.
	ObjectDeviceID string `json:"object_device_id,omitempty"`

	// ServiceID is the service that owns the command.
	ServiceID string `json:"service_id"`

	// CommandName is the command to invoke.
	CommandName string `json:"command_name"`

	// Paras contains command parameters.
	Paras map[string]any `json:"paras,omitempty"`
}

// CommandResponse is sent from device to platform after a command.
// Topic: $oc/devices/{device_id}/sys/commands/response/request_id={request_id}
type CommandResponse struct {
	ResultCode   int            `json:"result_code"`
	ResponseName string         `json:"response_name,omitempty"`
	Paras        map[string]any `json:"paras,omitempty"`
}

// PropertiesSetRequest is sent from platform to device to write properties.
// Topic: $oc/devices/{device_id}/sys/properties/set/request_id={request_id}
type PropertiesSetRequest struct {
	ObjectDeviceID string            `json:"object_device_id,omitempty"`
	Services       []ServiceProperty `json:"services"`
}

// PropertiesSetResponse acknowledges a property write.
// Topic: $oc/devices/{device_id}/sys/properties/set/response/request_id={request_id}
type PropertiesSetResponse struct {
	ResultCode int    `json:"result_code"`
	ResultDesc string `json:"result_desc,omitempty"`
}

// PropertiesGetRequest is sent from platform to device to query properties.
// An empty ServiceID asks for every service.
// Topic: $oc/devices/{device_id}/sys/properties/get/request_id={request_id}
type PropertiesGetRequest struct {
	ObjectDeviceID string `json:"object_device_id,omitempty"`
	ServiceID      string `json:"service_id,omitempty"`
}

// PropertiesGetResponse answers a property query.
// Topic: $oc/devices/{device_id}/sys/properties/get/response/request_id={request_id}
type PropertiesGetResponse struct {
	Services []ServiceProperty `json:"services"`
}

// DeviceMessage is a free-form message in either direction.
// Topics: .../sys/messages/up (device → platform), .../sys/messages/down (platform → device)
type DeviceMessage struct {
	ObjectDeviceID string `json:"object_device_id,omitempty"`
	ID             string `json:"id,omitempty"`
	Name           string `json:"name,omitempty"`
	Content        any    `json:"content"`
}

// DeviceEvent is a single service event reported to the platform.
type DeviceEvent struct {
	ServiceID string         `json:"service_id"`
	EventType string         `json:"event_type"`
	EventTime string         `json:"event_time,omitempty"`
	EventID   string         `json:"event_id,omitempty"`
	Paras     map[string]any `json:"paras,omitempty"`
}

// EventsMessage wraps device events.
// Topic: $oc/devices/{device_id}/sys/events/up
type EventsMessage struct {
	ObjectDeviceID string        `json:"object_device_id,omitempty"`
	Services       []DeviceEvent `json:"services"`
}
