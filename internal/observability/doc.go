// Package observability owns per-application prometheus collectors and the
// HTTP request logging/metrics middleware used by the admin surface.
//
// Ownership boundary:
// - supervisor, plugin and state store metrics
//
// - gin request logging and request metrics
//
// Every Metrics value has its own prometheus registry; nothing registers on
// the process-wide default registry.
package observability
