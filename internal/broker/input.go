// ABOUTME: Routes key events and gestures from the input filter to the filtering service
// ABOUTME: Also tracks touch interaction and magnification changes reported by the filter

package broker

import (
	"github.com/2389/a11y-gateway/internal/a11y"
)

// NotifyKeyEvent offers a key event to the last bound key-filtering service,
// non-default services first. It reports false if nobody filters keys, in
// which case the caller delivers the event itself.
func (b *Broker) NotifyKeyEvent(ev a11y.KeyEvent, policyFlags uint32) bool {
	b.mu.Lock()
	u := b.currentUserLocked()
	s := b.pickLocked(u, func(s *Service) bool {
		return s.requestFilterKeyEvents && s.info.Capabilities&a11y.CapabilityRequestFilterKeyEvents != 0
	})
	b.mu.Unlock()

	if s == nil {
		return false
	}
	b.queue.Post(func() { s.keys.Dispatch(ev, policyFlags) })
	return true
}

// OnGesture offers a touch-exploration gesture to the last bound service that
// asked for touch exploration.
func (b *Broker) OnGesture(gestureID int) bool {
	b.mu.Lock()
	u := b.currentUserLocked()
	s := b.pickLocked(u, func(s *Service) bool {
		return s.requestTouchExploration
	})
	var client a11y.ServiceClient
	if s != nil {
		client = s.client
	}
	b.mu.Unlock()

	if client == nil {
		return false
	}
	b.queue.Post(func() {
		if err := client.OnGesture(gestureID); err != nil {
			b.logger.Warn("gesture delivery failed", "service", s.component.String(), "gesture", gestureID, "error", err)
		}
	})
	return true
}

// pickLocked walks the bound services newest first, non-default before
// default, and returns the first connected one accepted by want.
func (b *Broker) pickLocked(u *userState, want func(*Service) bool) *Service {
	for _, isDefault := range []bool{false, true} {
		for i := len(u.bound) - 1; i >= 0; i-- {
			s := u.bound[i]
			if s.isDefault != isDefault || s.client == nil {
				continue
			}
			if want(s) {
				return s
			}
		}
	}
	return nil
}

// injectKeyEvent hands an unhandled key event back to the input filter. It
// runs on the worker.
func (b *Broker) injectKeyEvent(ev a11y.KeyEvent, policyFlags uint32) {
	b.mu.Lock()
	has := b.hasInputFilter
	b.mu.Unlock()
	if !has {
		b.logger.Debug("dropping key event, no input filter", "key_code", ev.KeyCode)
		return
	}
	b.input.InjectKeyEvent(ev, policyFlags)
}

// OnTouchInteractionStart is reported by the input filter when a touch
// interaction begins.
func (b *Broker) OnTouchInteractionStart() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.policy.OnTouchInteractionStart()
}

// OnTouchInteractionEnd is reported when the interaction ends. The active
// window snaps back to the focused one.
func (b *Broker) OnTouchInteractionEnd() {
	focused, ok := b.windows.FocusedWindow()

	b.mu.Lock()
	defer b.mu.Unlock()
	focusedID := a11y.NoWindow
	if ok {
		focusedID = b.registry.WindowIDForToken(focused, b.currentUser)
	}
	b.policy.OnTouchInteractionEnd(focusedID)
}

// OnMagnificationStateChanged tells every bound service of the current user
// that cached node bounds are stale.
func (b *Broker) OnMagnificationStateChanged() {
	b.mu.Lock()
	targets := b.boundClientsLocked(b.currentUserLocked())
	b.mu.Unlock()

	b.queue.Post(func() {
		for _, t := range targets {
			if err := t.client.ClearNodeCache(); err != nil {
				b.logger.Warn("clearing node cache", "service", t.component.String(), "error", err)
			}
		}
	})
}
