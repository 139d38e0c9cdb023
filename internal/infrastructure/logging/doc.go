// Package logging builds the slog logger shared by a device process.
//
// Every entry carries service and version. Entries written through
// ForDevice also carry device_id, and ForService adds service_id so
// report and command logs can be filtered per device service.
//
// Attributes whose key names a credential (secret, password, token and
// similar) are replaced with "[REDACTED]" before they reach the handler,
// so a stray logger.Debug("options", "secret", opts.Secret) is harmless.
//
// Configured from the logging section of device.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Typical use:
//
//	log := logging.New(cfg.Logging, version).ForDevice(cfg.Device.DeviceID)
//	log.ForService("smokeDetector").Warn("property read failed", "error", err)
package logging
