package mqtt

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// timestampLayout is the platform's signing timestamp format (UTC hour precision).
const timestampLayout = "2006010215"

// SignTimestamp formats t as the platform signing timestamp.
func SignTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// SignPassword derives the MQTT password for shared-secret authentication:
// hex(HMAC-SHA256(key=timestamp, message=secret)).
func SignPassword(secret, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(timestamp))
	mac.Write([]byte(secret))
	return hex.EncodeToString(mac.Sum(nil))
}

// ClientID returns the platform client identifier for a device session.
//
// Format: {deviceID}_0_0_{timestamp}. The first 0 marks a directly connected
// device, the second selects HMAC-SHA256 without timestamp verification.
func ClientID(deviceID, timestamp string) string {
	return deviceID + "_0_0_" + timestamp
}
