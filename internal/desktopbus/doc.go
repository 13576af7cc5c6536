// Package desktopbus mirrors the broker's aggregate state onto D-Bus.
//
// The Publisher registers with the broker as a global state client. Every
// state push is re-emitted as the org.a11y.Gateway.StateChanged signal with
// the int32 bitmask, and desktop components can poll GetState,
// IsAccessibilityEnabled and IsTouchExplorationEnabled on /org/a11y/Gateway.
package desktopbus
