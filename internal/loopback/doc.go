// Package loopback binds service components to clients running in the same
// process.
//
// The broker asks a Connector to bind a component for a user. Loopback looks
// up a registered Factory, builds the client and delivers it to the broker
// from a separate goroutine so binding stays asynchronous. Components with no
// factory fail with ErrComponentUnavailable, as do components whose factory
// returns nil for the requested user. Unregister withdraws a component; the
// gateway uses it when a service hosted over gRPC disconnects.
package loopback
