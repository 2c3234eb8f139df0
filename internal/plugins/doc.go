// Package plugins owns plugin contracts and batch activation.
//
// Ownership boundary:
// - plugin metadata validation
//
// - two-phase install/start of plugin batches
//
// - configuration diffing and live reconfiguration
package plugins
