// Package config owns application configuration values and the schema
// contract plugins use to validate their slice of them.
//
// Ownership boundary:
// - Schema contract: Parse(raw) -> typed value or validation failure
//
// - struct schemas (mapstructure decode + validator tags)
//
// - per-key slice resolution and ValidationError reporting
//
// - loading one TOML file into plain values
//
// Discovery and merging of multiple config sources is not owned here.
package config
