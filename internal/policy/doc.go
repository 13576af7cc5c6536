// Package policy decides what assistive services and callers may see and do.
//
// # Overview
//
// Policy tracks the active window, the one window whose content services may
// query, and whether a touch interaction is in progress. It answers
// capability and window gates for tree queries and resolves which user a call
// acts for.
//
// Policy holds no lock. The broker owns a single mutex and calls every method
// with it held.
//
// # Active window
//
//   - a window-state-changed event moves the active window only if the event's
//     window is the focused one
//   - a hover-enter event moves it only while a touch interaction runs
//   - the end of a touch interaction snaps it back to the focused window
package policy
