// Package a11y defines the vocabulary shared by every accessibility broker
// component.
//
// # Overview
//
// The types here describe what flows between assistive services, application
// windows and the broker: UI events, key events, service descriptors and the
// bitmasks that classify them. The package has no behavior beyond small
// value helpers and holds no state.
//
// # Bitmasks
//
//   - EventType: one bit per UI event kind; a service subscribes to a mask
//   - FeedbackType: the kind of output a service produces (spoken, haptic...)
//   - Capability: what a service declared in its manifest
//   - ServiceFlag: what a service requests at runtime
//   - ClientState: the aggregate bitmask broadcast to registered clients
//
// # Boundaries
//
// interfaces.go declares the external collaborators the broker talks to:
// service clients, per-window interaction connections, the window manager,
// the downstream input filter, the component connector and the consent
// prompter. Each concern gets its own narrow interface; a concrete adapter
// usually implements several of them.
package a11y
