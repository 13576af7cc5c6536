// ABOUTME: Fan-out of aggregate accessibility state to registered clients
// ABOUTME: Clients register per user or globally and are cleaned up with their context

package clients

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/a11y-gateway/internal/a11y"
)

// Scope selects which clients a publish reaches.
type Scope int

// Global is the scope of clients registered across users.
const Global Scope = a11y.UserAll

// User returns the scope of clients registered for userID.
func User(userID int) Scope {
	return Scope(userID)
}

type subscription struct {
	client a11y.StateClient
	// stop detaches the context cleanup; nil when the context never ends.
	stop func() bool
}

// Broadcaster keeps registered state clients and pushes state to them.
// It is a leaf: it never calls back into the broker.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[Scope]map[string]subscription // scope -> subID -> client
	logger  *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		clients: make(map[Scope]map[string]subscription),
		logger:  logger.With("component", "client-broadcaster"),
	}
}

// Register adds client under scope and returns its registration id. The
// registration is removed automatically when ctx is cancelled.
func (b *Broadcaster) Register(ctx context.Context, scope Scope, client a11y.StateClient) string {
	subID := uuid.New().String()
	sub := subscription{client: client}

	b.mu.Lock()
	if _, ok := b.clients[scope]; !ok {
		b.clients[scope] = make(map[string]subscription)
	}
	if ctx.Done() != nil {
		sub.stop = context.AfterFunc(ctx, func() { b.Unregister(subID) })
	}
	b.clients[scope][subID] = sub
	b.mu.Unlock()

	b.logger.Debug("client registered", "scope", int(scope), "sub_id", subID)
	return subID
}

// Unregister removes a registration and its context cleanup. Unknown ids are
// ignored.
func (b *Broadcaster) Unregister(subID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for scope, subs := range b.clients {
		sub, ok := subs[subID]
		if !ok {
			continue
		}
		if sub.stop != nil {
			sub.stop()
		}
		delete(subs, subID)
		if len(subs) == 0 {
			delete(b.clients, scope)
		}
		b.logger.Debug("client unregistered", "scope", int(scope), "sub_id", subID)
		return true
	}
	return false
}

// Count returns how many clients are registered under scope.
func (b *Broadcaster) Count(scope Scope) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[scope])
}

// Publish pushes state to every client in scope. Failures are logged and
// the client stays registered; removal follows its context.
func (b *Broadcaster) Publish(scope Scope, state a11y.ClientState) {
	b.mu.RLock()
	subs := b.clients[scope]
	// Copy targets under read lock to avoid holding lock during calls
	targets := make(map[string]a11y.StateClient, len(subs))
	for id, sub := range subs {
		targets[id] = sub.client
	}
	b.mu.RUnlock()

	for id, c := range targets {
		if err := c.SetState(state); err != nil {
			b.logger.Warn("failed to send client state",
				"scope", int(scope),
				"sub_id", id,
				"state", int(state),
				"error", err)
		}
	}
}

// Close drops every registration.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, subs := range b.clients {
		for _, sub := range subs {
			if sub.stop != nil {
				sub.stop()
			}
		}
	}
	clear(b.clients)
	b.logger.Debug("broadcaster closed")
}
