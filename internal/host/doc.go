// Package host owns the application composition root and the service
// supervisor.
//
// Ownership boundary:
// - service registration and lookup (by name or Go type)
//
// - application configuration access and schema-validated slices
//
// - the cancellation context shared by every suspension point
//
// - supervision: start barrier -> per-service run loops -> stop barrier
//
// Lifecycle order:
// - idle -> starting -> running -> stopping -> stopped
//
// - a start failure ends Run with phase failed; run-loop failures never do.
//
// Per-service supervision state is published to the state store under
// "host.services".
package host
