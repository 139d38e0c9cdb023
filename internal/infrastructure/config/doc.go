// Package config loads device.yaml for a device process.
//
// Values are layered: built-in defaults, then the YAML file, then
// GRAYLOGIC_DEVICE_* environment variables. Validate reports every
// problem in one error so a bad deployment is fixed in a single pass.
//
// Credentials (device secret, keystore password, InfluxDB token and the
// status token secret) are expected to arrive through the environment:
//
//	GRAYLOGIC_DEVICE_CONFIG=/etc/graylogic/device.yaml GRAYLOGIC_DEVICE_SECRET=... ./smokedetector
//
// Keep the file itself at 0600 when it does carry secrets.
package config
