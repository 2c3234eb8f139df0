// Package logging owns logger construction for runtime and test profiles.
//
// Ownership boundary:
// - profile defaults (runtime, test)
//
// - HOSTKERNEL_LOG_* environment overrides
//
// Components never configure zerolog globals; they receive a logger.
package logging
