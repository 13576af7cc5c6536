// ABOUTME: Window interaction connection registration and state client registration
// ABOUTME: Cross-user registrations land in the global table or global scope

package broker

import (
	"context"

	"github.com/2389/a11y-gateway/internal/a11y"
	"github.com/2389/a11y-gateway/internal/auth"
	"github.com/2389/a11y-gateway/internal/clients"
	"github.com/2389/a11y-gateway/internal/policy"
	"github.com/2389/a11y-gateway/internal/registry"
)

// AddInteractionConnection registers a window's interaction connection and
// returns its window id. The window is dropped when conn dies.
func (b *Broker) AddInteractionConnection(ctx context.Context, token a11y.WindowToken, conn a11y.InteractionConnection, userID int) (int, error) {
	caller, err := auth.RequireCaller(ctx)
	if err != nil {
		return a11y.NoWindow, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	resolved, err := policy.ResolveCallingUser(caller, userID, b.currentUser)
	if err != nil {
		return a11y.NoWindow, err
	}
	scope := resolved
	if policy.IsCallerInteractingAcrossUsers(caller, userID) {
		scope = a11y.UserAll
	}

	entry := b.registry.Add(token, conn, scope)
	entry.SetUnlink(conn.LinkToDeath(func() {
		b.queue.Post(func() { b.windowDied(entry) })
	}))

	b.logger.Debug("interaction connection added",
		"window_id", entry.WindowID,
		"token", string(token),
		"user_id", scope,
	)
	return entry.WindowID, nil
}

// RemoveInteractionConnection drops the window registered for token.
func (b *Broker) RemoveInteractionConnection(ctx context.Context, token a11y.WindowToken) error {
	if _, err := auth.RequireCaller(ctx); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.registry.RemoveByToken(token); ok {
		b.logger.Debug("interaction connection removed", "window_id", e.WindowID, "token", string(token))
	}
	return nil
}

func (b *Broker) windowDied(e *registry.Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.registry.Remove(e.WindowID, e.UserID); ok {
		b.logger.Debug("interaction connection died", "window_id", e.WindowID)
	}
}

// ActiveWindowBounds returns the screen frame of the active window.
func (b *Broker) ActiveWindowBounds(ctx context.Context) (a11y.Rect, bool, error) {
	caller, err := auth.RequireCaller(ctx)
	if err != nil {
		return a11y.Rect{}, false, err
	}

	b.mu.Lock()
	if _, err := policy.ResolveCallingUser(caller, caller.UserID, b.currentUser); err != nil {
		b.mu.Unlock()
		return a11y.Rect{}, false, err
	}
	entry, ok := b.registry.Lookup(b.policy.ActiveWindow(), b.currentUser)
	var token a11y.WindowToken
	if ok {
		token = entry.Token
	}
	b.mu.Unlock()

	if !ok {
		return a11y.Rect{}, false, nil
	}
	frame, ok := b.windows.WindowFrame(token)
	return frame, ok, nil
}

// AddClient registers client for state updates and returns the state it
// should start from plus a registration id. The registration ends with
// RemoveClient or when ctx is done.
func (b *Broker) AddClient(ctx context.Context, client a11y.StateClient, userID int) (a11y.ClientState, string, error) {
	caller, err := auth.RequireCaller(ctx)
	if err != nil {
		return 0, "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	resolved, err := policy.ResolveCallingUser(caller, userID, b.currentUser)
	if err != nil {
		return 0, "", err
	}
	u := b.userLocked(resolved)

	if policy.IsCallerInteractingAcrossUsers(caller, userID) {
		id := b.clients.Register(ctx, clients.Global, client)
		return u.clientState(), id, nil
	}

	id := b.clients.Register(ctx, clients.User(resolved), client)
	// A background user's clients start disabled.
	if resolved != b.currentUser {
		return 0, id, nil
	}
	return u.clientState(), id, nil
}

// RemoveClient ends a registration made by AddClient.
func (b *Broker) RemoveClient(id string) bool {
	return b.clients.Unregister(id)
}
