// Package api provides the HTTP transport for the inventory server.
//
// It accepts check-ins from agents and serves the recorded inventory as
// JSON to the management view:
//
//	POST /api/v1/checkin                    submit a check-in
//	POST /checkin                           same, for agents using the legacy path
//	GET  /api/v1/devices                    current state of every laptop
//	GET  /api/v1/devices/{serial}           one laptop plus its history
//	GET  /api/v1/devices/{serial}/history   check-in history, latest first
//	GET  /api/v1/health                     liveness and storage health
//
// Validation and persistence detail is logged, never returned. Clients see
// only generic error text.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
