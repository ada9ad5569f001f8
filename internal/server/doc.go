// Package server provides the optional HTTP status API for matterlog.
//
// This package is internal to matterlog and handles all HTTP concerns:
//
//   - REST API: JSON endpoint at "/api/status" for the current channel snapshot
//   - Server-Sent Events: Real-time worker state changes at "/api/sse"
//   - Health: "/healthz" for liveness probes
//   - Metrics: Prometheus exposition at "/metrics"
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
//
// Users of the matterlog library should not need to interact with this
// package directly. The server is started by [matterlog.Matterlog.Start]
// when a status address is configured.
package server
