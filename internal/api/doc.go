// Package api provides the HTTP status surface for the Gree bridge.
//
// It exposes bridge health, the device registry, per-device state
// history, a command endpoint that feeds the same queue as MQTT, and the
// Prometheus scrape endpoint:
//
//	GET  /api/v1/health
//	GET  /api/v1/devices
//	GET  /api/v1/devices/{id}
//	GET  /api/v1/devices/{id}/history?limit=N&since=RFC3339
//	POST /api/v1/devices/{id}/command
//	GET  /metrics
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
