// Package registry tracks the interaction connections of application windows.
//
// Each connection gets a window id from a process-wide counter. Connections
// registered by callers acting across users live in a global table visible to
// everyone; the rest live in their owner's table and are visible only while
// that user is current. Lookups consult the global table first.
package registry
