// Package broker is the accessibility coordinator.
//
// A Broker sits between three parties: assistive services that produce
// feedback, application windows that report UI events and answer content
// queries, and state clients that want to know whether accessibility is on.
//
// # Users
//
// State is kept per user. Only the current user has bound services; switching
// users unbinds everything of the old user and tells its clients that
// accessibility is off. Every change to a user's configuration runs the same
// recompute pipeline:
//
//  1. legacy touch-exploration grants
//  2. service bindings, turning accessibility off if nothing is enabled
//  3. key filtering
//  4. touch exploration
//  5. enhanced web accessibility
//  6. input filter features
//  7. the client bitmask
//
// # Services
//
// A Service moves Unbound -> Binding -> Bound through the a11y.Connector and
// back to Unbound on unbind or death. Events for a service are held per event
// type for its notification timeout; a newer event of the same type replaces
// the undelivered one.
//
// # Concurrency
//
// One mutex guards all state. Calls into services, windows, the window
// manager, the input filter and the connector never happen under it; they
// are posted to a single worker queue or made after unlocking. The key
// dispatchers share the same mutex.
package broker
