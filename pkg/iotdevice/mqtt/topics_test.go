package mqtt

import (
	"testing"
	"time"
)

func TestTopicBuilders(t *testing.T) {
	topics := Topics{DeviceID: "dev-1"}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"PropertiesReport", topics.PropertiesReport(), "$oc/devices/dev-1/sys/properties/report"},
		{"MessagesUp", topics.MessagesUp(), "$oc/devices/dev-1/sys/messages/up"},
		{"MessagesDown", topics.MessagesDown(), "$oc/devices/dev-1/sys/messages/down"},
		{"EventsUp", topics.EventsUp(), "$oc/devices/dev-1/sys/events/up"},
		{"CommandRequests", topics.CommandRequests(), "$oc/devices/dev-1/sys/commands/#"},
		{"CommandResponse", topics.CommandResponse("r1"), "$oc/devices/dev-1/sys/commands/response/request_id=r1"},
		{"PropertiesSetRequests", topics.PropertiesSetRequests(), "$oc/devices/dev-1/sys/properties/set/#"},
		{"PropertiesSetResponse", topics.PropertiesSetResponse("r2"), "$oc/devices/dev-1/sys/properties/set/response/request_id=r2"},
		{"PropertiesGetRequests", topics.PropertiesGetRequests(), "$oc/devices/dev-1/sys/properties/get/#"},
		{"PropertiesGetResponse", topics.PropertiesGetResponse("r3"), "$oc/devices/dev-1/sys/properties/get/response/request_id=r3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s() = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"$oc/devices/d/sys/commands/request_id=abc-123", "abc-123"},
		{"$oc/devices/d/sys/properties/set/request_id=42", "42"},
		{"$oc/devices/d/sys/commands/request_id=abc/extra", "abc"},
		{"$oc/devices/d/sys/messages/down", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := RequestID(tt.topic); got != tt.want {
			t.Errorf("RequestID(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}

func TestIsResponseTopic(t *testing.T) {
	topics := Topics{DeviceID: "d"}
	if !IsResponseTopic(topics.CommandResponse("1")) {
		t.Error("IsResponseTopic(command response) = false, want true")
	}
	if IsResponseTopic("$oc/devices/d/sys/commands/request_id=1") {
		t.Error("IsResponseTopic(command request) = true, want false")
	}
}

func TestSignPassword(t *testing.T) {
	// Reference value: HMAC-SHA256 keyed by "2019120219" over "secret".
	a := SignPassword("secret", "2019120219")
	b := SignPassword("secret", "2019120219")
	if a != b {
		t.Error("SignPassword() is not deterministic")
	}
	if len(a) != 64 {
		t.Errorf("len(SignPassword()) = %d, want 64 hex chars", len(a))
	}
	if SignPassword("secret", "2019120220") == a {
		t.Error("SignPassword() ignores the timestamp")
	}
	if SignPassword("other", "2019120219") == a {
		t.Error("SignPassword() ignores the secret")
	}
}

func TestSignTimestampAndClientID(t *testing.T) {
	ts := SignTimestamp(time.Date(2024, 3, 5, 7, 59, 0, 0, time.UTC))
	if ts != "2024030507" {
		t.Errorf("SignTimestamp() = %q, want %q", ts, "2024030507")
	}
	if got := ClientID("dev-1", ts); got != "dev-1_0_0_2024030507" {
		t.Errorf("ClientID() = %q, want %q", got, "dev-1_0_0_2024030507")
	}
}

func TestFormatEventTime(t *testing.T) {
	got := FormatEventTime(time.Date(2024, 3, 5, 7, 59, 1, 0, time.UTC))
	if got != "20240305T075901Z" {
		t.Errorf("FormatEventTime() = %q, want %q", got, "20240305T075901Z")
	}
}

func TestIsTLSURI(t *testing.T) {
	tests := map[string]bool{
		"ssl://host:8883": true,
		"tls://host:8883": true,
		"tcp://host:1883": false,
		"ws://host:80":    false,
		"::not a uri::":   false,
	}
	for uri, want := range tests {
		if got := isTLSURI(uri); got != want {
			t.Errorf("isTLSURI(%q) = %v, want %v", uri, got, want)
		}
	}
}
