// ABOUTME: Service is the broker-side record of one assistive service and its binding state
// ABOUTME: Implements bind, connect handshake, unbind and death handling under the broker lock

package broker

import (
	"time"

	"github.com/2389/a11y-gateway/internal/a11y"
	"github.com/2389/a11y-gateway/internal/keys"
)

// BindingState is where a Service is in its connection lifecycle.
type BindingState int

const (
	StateUnbound BindingState = iota
	StateBinding
	StateBound
)

func (s BindingState) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBinding:
		return "binding"
	case StateBound:
		return "bound"
	default:
		return "unknown"
	}
}

// Service is one assistive service as seen by the broker. It is the sink the
// connector reports to and the handle the service calls back into.
type Service struct {
	b            *Broker
	id           int
	userID       int
	component    a11y.ComponentName
	info         *a11y.ServiceInfo
	isAutomation bool

	eventTypes              a11y.EventType
	feedbackType            a11y.FeedbackType
	packages                map[string]struct{}
	isDefault               bool
	notificationTimeout     time.Duration
	fetchFlags              a11y.FetchFlag
	requestTouchExploration bool
	requestEnhancedWeb      bool
	requestFilterKeyEvents  bool

	state            BindingState
	client           a11y.ServiceClient
	unlink           func()
	connectedAndDied bool

	pending  map[a11y.EventType]*a11y.Event
	timers   map[a11y.EventType]deliveryTimer
	timerSeq uint64
	keys     *keys.Dispatcher
}

var (
	_ a11y.ServiceHandle  = (*Service)(nil)
	_ a11y.ConnectionSink = (*Service)(nil)
)

func (b *Broker) newServiceLocked(u *userState, info *a11y.ServiceInfo, isAutomation bool) *Service {
	s := &Service{
		b:            b,
		id:           b.nextServiceID,
		userID:       u.userID,
		component:    info.Component,
		info:         info,
		isAutomation: isAutomation,
		pending:      make(map[a11y.EventType]*a11y.Event),
		timers:       make(map[a11y.EventType]deliveryTimer),
	}
	b.nextServiceID++
	s.keys = keys.New(keys.Config{
		Lock:    &b.mu,
		Queue:   b.queue,
		Target:  s.keyTargetLocked,
		Inject:  b.injectKeyEvent,
		Timeout: b.keyTimeout,
		Logger:  b.logger,
	})
	s.applyInfoLocked()
	u.services[s.component] = s
	return s
}

// applyInfoLocked copies the dynamically configurable fields of s.info.
func (s *Service) applyInfoLocked() {
	info := s.info
	s.eventTypes = info.EventTypes
	s.feedbackType = info.FeedbackType
	s.notificationTimeout = info.NotificationTimeout
	s.isDefault = info.HasFlag(a11y.FlagDefault)

	s.packages = nil
	if len(info.Packages) > 0 {
		s.packages = make(map[string]struct{}, len(info.Packages))
		for _, pkg := range info.Packages {
			s.packages[pkg] = struct{}{}
		}
	}

	s.fetchFlags = 0
	if info.HasFlag(a11y.FlagIncludeNotImportantViews) {
		s.fetchFlags |= a11y.FetchIncludeNotImportantViews
	}
	if info.HasFlag(a11y.FlagReportViewIDs) {
		s.fetchFlags |= a11y.FetchReportViewIDs
	}
	s.requestTouchExploration = info.HasFlag(a11y.FlagRequestTouchExplorationMode)
	s.requestEnhancedWeb = info.HasFlag(a11y.FlagRequestEnhancedWebAccessibility)
	s.requestFilterKeyEvents = info.HasFlag(a11y.FlagRequestFilterKeyEvents)
}

// ID is the connection id handed to the service.
func (s *Service) ID() int {
	return s.id
}

// Component names the service.
func (s *Service) Component() a11y.ComponentName {
	return s.component
}

// State returns the current binding state.
func (s *Service) State() BindingState {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	return s.state
}

// Capabilities returns the declared capabilities. Callers hold the broker lock.
func (s *Service) Capabilities() a11y.Capability {
	return s.info.Capabilities
}

func (s *Service) canReceiveEventsLocked() bool {
	return s.eventTypes != 0 && s.feedbackType != 0 && s.client != nil
}

func (s *Service) keyTargetLocked() a11y.InputListener {
	if s.client == nil {
		return nil
	}
	return s.client
}

// bindLocked starts binding. Already binding or bound services are left
// alone.
func (s *Service) bindLocked() {
	if s.state != StateUnbound {
		return
	}
	u := s.b.userLocked(s.userID)
	s.state = StateBinding
	u.binding.Add(s.component)
	u.services[s.component] = s

	if s.isAutomation {
		if err := s.attachLocked(u.automationClient); err != nil {
			s.b.logger.Error("automation attach failed", "error", err)
		}
		return
	}

	component, userID := s.component, s.userID
	s.b.logger.Debug("binding service", "service", component.String(), "user_id", userID)
	s.b.queue.Post(func() {
		err := s.b.connector.Connect(s.b.ctx, component, userID, s)
		if err == nil {
			return
		}
		s.b.mu.Lock()
		defer s.b.mu.Unlock()
		s.b.logger.Warn("bind failed", "service", component.String(), "user_id", userID, "error", err)
		if s.state == StateBinding {
			s.state = StateUnbound
			s.b.userLocked(userID).binding.Remove(component)
		}
	})
}

// OnConnected is called by the connector once the service channel is live.
func (s *Service) OnConnected(client a11y.ServiceClient) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	return s.attachLocked(client)
}

func (s *Service) attachLocked(client a11y.ServiceClient) error {
	if s.state == StateBound {
		s.b.logger.Warn("duplicate connect, tearing down", "service", s.component.String())
		s.diedLocked()
		return ErrProtocolViolation
	}
	if s.state != StateBinding && !s.connectedAndDied {
		return ErrProtocolViolation
	}
	if client == nil {
		return ErrProtocolViolation
	}

	u := s.b.userLocked(s.userID)
	s.client = client
	s.state = StateBound
	s.connectedAndDied = false
	u.binding.Remove(s.component)
	u.addBound(s)
	s.keys.FlushLocked()

	// The death callback only posts to the queue, so linking under the lock
	// cannot re-enter it.
	s.unlink = client.LinkToDeath(func() {
		s.b.queue.Post(func() { s.peerDied(client) })
	})

	id := s.id
	s.b.queue.Post(func() {
		if err := client.SetConnection(s, id); err != nil {
			s.b.logger.Warn("connection handshake failed", "service", s.component.String(), "error", err)
			s.peerDied(client)
		}
	})

	s.b.logger.Info("=== SERVICE BOUND ===",
		"service", s.component.String(),
		"connection_id", id,
		"user_id", s.userID,
		"automation", s.isAutomation,
	)
	s.b.onUserStateChangedLocked(u)
	return nil
}

// peerDied handles the loss of client. Stale notifications for an earlier
// client are ignored.
func (s *Service) peerDied(client a11y.ServiceClient) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if s.client != client {
		return
	}
	s.diedLocked()
}

func (s *Service) diedLocked() {
	if s.state != StateBound {
		return
	}
	u := s.b.userLocked(s.userID)
	s.b.logger.Warn("=== SERVICE DIED ===",
		"service", s.component.String(),
		"connection_id", s.id,
		"user_id", s.userID,
	)
	if s.isAutomation {
		s.b.automationGoneLocked(u)
		return
	}
	s.keys.FlushLocked()
	s.detachLocked(u)
	s.connectedAndDied = true
	s.b.updateDerivedStateLocked(u)
}

// unbindLocked releases the service. It reports whether there was anything
// to release.
func (s *Service) unbindLocked() bool {
	u := s.b.userLocked(s.userID)
	switch s.state {
	case StateUnbound:
		if s.connectedAndDied {
			s.connectedAndDied = false
			delete(u.services, s.component)
			return true
		}
		return false
	case StateBinding:
		s.state = StateUnbound
		u.binding.Remove(s.component)
		delete(u.services, s.component)
		if !s.isAutomation {
			s.postDisconnect()
		}
		return true
	}

	s.keys.FlushLocked()
	client, id := s.client, s.id
	s.detachLocked(u)
	delete(u.services, s.component)

	s.b.logger.Info("=== SERVICE UNBOUND ===",
		"service", s.component.String(),
		"connection_id", id,
		"user_id", s.userID,
	)
	if s.isAutomation {
		s.b.destroyAutomationLocked(u)
		return true
	}
	s.b.queue.Post(func() {
		if err := client.SetConnection(nil, id); err != nil {
			s.b.logger.Debug("releasing connection", "service", s.component.String(), "error", err)
		}
	})
	s.postDisconnect()
	return true
}

func (s *Service) postDisconnect() {
	component, userID := s.component, s.userID
	s.b.queue.Post(func() { s.b.connector.Disconnect(component, userID) })
}

// detachLocked drops the live client and everything queued for it.
func (s *Service) detachLocked(u *userState) {
	u.removeBound(s)
	if s.unlink != nil {
		s.unlink()
		s.unlink = nil
	}
	for evType, t := range s.timers {
		s.b.queue.Cancel(t.handle)
		delete(s.timers, evType)
	}
	for t := range s.pending {
		delete(s.pending, t)
	}
	s.client = nil
	s.state = StateUnbound
}
