// Package admin serves the host's HTTP API.
//
// Ownership boundary:
// - health, readiness and metrics endpoints
//
// - service, plugin and agent listings
//
// - state snapshots and websocket state streams
//
// - token-guarded shutdown
package admin
