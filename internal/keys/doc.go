// Package keys implements the key event filtering protocol between the broker
// and one assistive service.
//
// # Protocol
//
//   - Dispatch assigns the next sequence number, records the event as pending,
//     arms a timeout and offers the event to the service
//   - the service answers with Acknowledge(handled, sequence)
//   - if no answer arrives before the timeout the event counts as unhandled
//   - unbinding or service death calls FlushLocked, resolving everything
//     still pending as unhandled
//
// Unhandled events are re-injected with a11y.PolicyFlagPassToUser so the
// input pipeline routes them straight to the application.
//
// # Locking
//
// A Dispatcher shares the broker's mutex through Config.Lock. Every
// resolution path unlinks the pending entry while holding it, so exactly one
// of acknowledge, timeout and flush takes effect for each event.
package keys
