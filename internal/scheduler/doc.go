// Package scheduler provides the serial task queue used for work that must
// run after the current unit of work, never inside the call that posted it.
package scheduler
