// Package api provides the local HTTP status server of a device process.
//
// Endpoints:
//
//	GET  /api/v1/health                          device state and dependency checks
//	GET  /api/v1/services                        registered service ids
//	GET  /api/v1/services/{id}                   current and last reported values
//	POST /api/v1/services/{id}/report            run a change pass on one service
//	POST /api/v1/services/{id}/commands/{name}   invoke a command locally
//	GET  /api/v1/stream                          websocket feed of successful reports
//	GET  /metrics                                Prometheus exposition
//
// The server follows the same lifecycle as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// When a token secret is configured, the POST endpoints and the stream
// require an HS256 bearer token bound to the device id (see IssueToken).
// Reads stay open so local monitoring keeps working.
//
// Stream clients subscribe by service id, or "*" for every service:
//
//	{"type": "subscribe", "id": "1", "payload": {"channels": ["smokeDetector"]}}
package api
