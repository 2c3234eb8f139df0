// Package tools provides command runners shared by service adapters.
//
// Ownership boundary:
// - local command execution
//
// - remote command execution over SSH
package tools
