// ABOUTME: UI event intake and per-service throttled delivery
// ABOUTME: Non-default services see an event before default ones; same-type events supersede

package broker

import (
	"context"
	"errors"

	"github.com/2389/a11y-gateway/internal/a11y"
	"github.com/2389/a11y-gateway/internal/auth"
	"github.com/2389/a11y-gateway/internal/policy"
	"github.com/2389/a11y-gateway/internal/worker"
)

// ErrInvalidEvent is returned for a nil or typeless event.
var ErrInvalidEvent = errors.New("invalid accessibility event")

// SendAccessibilityEvent accepts a UI event from an application window. Events
// for a background user are dropped.
func (b *Broker) SendAccessibilityEvent(ctx context.Context, ev *a11y.Event, userID int) error {
	caller, err := auth.RequireCaller(ctx)
	if err != nil {
		return err
	}
	if ev == nil || ev.Type == 0 {
		return ErrInvalidEvent
	}

	// The window manager is consulted before taking the lock.
	var focused a11y.WindowToken
	var hasFocus bool
	if ev.Type == a11y.EventWindowStateChanged {
		focused, hasFocus = b.windows.FocusedWindow()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	resolved, err := policy.ResolveCallingUser(caller, userID, b.currentUser)
	if err != nil {
		return err
	}
	if resolved != b.currentUser {
		return nil
	}

	ev = ev.Clone()
	focusedID := a11y.NoWindow
	if hasFocus {
		focusedID = b.registry.WindowIDForToken(focused, b.currentUser)
	}
	b.policy.UpdateActiveWindow(ev.WindowID, ev.Type, focusedID)

	u := b.currentUserLocked()
	if b.policy.CanDispatchEvent(ev) {
		policy.UpdateEventSource(ev)
		b.notifyServicesLocked(u, ev, false)
		b.notifyServicesLocked(u, ev, true)
	}
	u.handledFeedback = 0

	if b.hasInputFilter {
		forwarded := ev.Clone()
		b.queue.Post(func() { b.input.NotifyAccessibilityEvent(forwarded) })
	}
	return nil
}

func (b *Broker) notifyServicesLocked(u *userState, ev *a11y.Event, isDefault bool) {
	for _, s := range u.bound {
		if s.isDefault != isDefault {
			continue
		}
		if !s.canDispatchLocked(ev, u.handledFeedback) {
			continue
		}
		u.handledFeedback |= s.feedbackType
		s.notifyEventLocked(ev)
	}
}

// canDispatchLocked reports whether s wants ev given the feedback kinds
// already served. Generic feedback never blocks.
func (s *Service) canDispatchLocked(ev *a11y.Event, handled a11y.FeedbackType) bool {
	if !s.canReceiveEventsLocked() {
		return false
	}
	if ev.NotImportant && s.fetchFlags&a11y.FetchIncludeNotImportantViews == 0 {
		return false
	}
	if s.eventTypes&ev.Type == 0 {
		return false
	}
	if s.packages != nil {
		if _, ok := s.packages[ev.PackageName]; !ok {
			return false
		}
	}
	if s.feedbackType == a11y.FeedbackGeneric {
		return true
	}
	return handled&s.feedbackType != s.feedbackType
}

// deliveryTimer is the armed delivery of one event type. seq tells a timer
// that fired late apart from the one that replaced it.
type deliveryTimer struct {
	handle worker.Handle
	seq    uint64
}

// notifyEventLocked stores a copy of ev as the pending event of its type and
// restarts the delivery timer. An earlier undelivered event of the same type
// is replaced.
func (s *Service) notifyEventLocked(ev *a11y.Event) {
	evType := ev.Type
	s.pending[evType] = ev.Clone()
	if t, ok := s.timers[evType]; ok {
		s.b.queue.Cancel(t.handle)
	}
	s.timerSeq++
	seq := s.timerSeq
	s.timers[evType] = deliveryTimer{
		handle: s.b.queue.PostDelayed(s.notificationTimeout, func() {
			s.deliverPending(evType, seq)
		}),
		seq: seq,
	}
}

// deliverPending sends the pending event of evType if the timer that fired
// is still the armed one.
func (s *Service) deliverPending(evType a11y.EventType, seq uint64) {
	s.b.mu.Lock()
	t, armed := s.timers[evType]
	if !armed || t.seq != seq {
		s.b.mu.Unlock()
		return
	}
	delete(s.timers, evType)
	ev, ok := s.pending[evType]
	client := s.client
	if !ok || client == nil {
		s.b.mu.Unlock()
		return
	}
	delete(s.pending, evType)

	if policy.CanRetrieveWindowContent(s) {
		ev.ConnectionID = s.id
	} else {
		ev.StripSource()
	}
	ev.Seal()
	s.b.mu.Unlock()

	if err := client.OnAccessibilityEvent(ev); err != nil {
		s.b.logger.Warn("event delivery failed",
			"service", s.component.String(),
			"event_type", evType.String(),
			"error", err,
		)
	}
}

// Interrupt asks every bound service of the user to stop its feedback.
func (b *Broker) Interrupt(ctx context.Context, userID int) error {
	caller, err := auth.RequireCaller(ctx)
	if err != nil {
		return err
	}

	b.mu.Lock()
	resolved, err := policy.ResolveCallingUser(caller, userID, b.currentUser)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	if resolved != b.currentUser {
		b.mu.Unlock()
		return nil
	}
	targets := b.boundClientsLocked(b.currentUserLocked())
	b.mu.Unlock()

	for _, t := range targets {
		if err := t.client.OnInterrupt(); err != nil {
			b.logger.Warn("interrupt failed", "service", t.component.String(), "error", err)
		}
	}
	return nil
}

type boundClient struct {
	component a11y.ComponentName
	client    a11y.ServiceClient
}

func (b *Broker) boundClientsLocked(u *userState) []boundClient {
	out := make([]boundClient, 0, len(u.bound))
	for _, s := range u.bound {
		if s.client != nil {
			out = append(out, boundClient{component: s.component, client: s.client})
		}
	}
	return out
}
