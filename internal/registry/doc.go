// Package registry owns the ordered, keyed container shared by service and
// plugin management.
//
// Ownership boundary:
// - insertion-ordered item storage
//
// - lookup by explicit key or by Go type assertion
//
// - deferred "wait until registered" resolution
//
// Registration never invokes lifecycle hooks; that belongs to the host
// supervisor and the plugin manager.
package registry
