// Package sysstat samples local host statistics into the "host.sysstat"
// state slice.
package sysstat
