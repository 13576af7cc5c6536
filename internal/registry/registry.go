// ABOUTME: Registry of per-window interaction connections keyed by window id
// ABOUTME: Keeps a global table plus one table per user; ids are never reused

package registry

import (
	"sort"

	"github.com/2389/a11y-gateway/internal/a11y"
)

// Entry is one registered window.
type Entry struct {
	WindowID int
	Token    a11y.WindowToken
	Conn     a11y.InteractionConnection
	// UserID is a11y.UserAll for windows visible to every user.
	UserID int

	unlink func()
}

// SetUnlink records the cancel func of the entry's death subscription.
func (e *Entry) SetUnlink(unlink func()) {
	e.unlink = unlink
}

func (e *Entry) release() {
	if e.unlink != nil {
		e.unlink()
		e.unlink = nil
	}
}

type table map[int]*Entry

// FirstWindowID is the id given to the first registered window. Zero is left
// unused so an event with no window set never matches a live one.
const FirstWindowID = 1

// Registry maps window ids to interaction connections. It holds no lock; the
// broker's mutex guards it.
type Registry struct {
	nextWindowID int
	global       table
	users        map[int]table
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		nextWindowID: FirstWindowID,
		global:       make(table),
		users:        make(map[int]table),
	}
}

func (r *Registry) userTable(userID int, create bool) table {
	if userID == a11y.UserAll {
		return r.global
	}
	t, ok := r.users[userID]
	if !ok && create {
		t = make(table)
		r.users[userID] = t
	}
	return t
}

// Add registers conn under a fresh window id. Pass a11y.UserAll to register
// in the global table.
func (r *Registry) Add(token a11y.WindowToken, conn a11y.InteractionConnection, userID int) *Entry {
	e := &Entry{
		WindowID: r.nextWindowID,
		Token:    token,
		Conn:     conn,
		UserID:   userID,
	}
	r.nextWindowID++
	r.userTable(userID, true)[e.WindowID] = e
	return e
}

// RemoveByToken drops the window registered for token, searching the global
// table first and then every user table.
func (r *Registry) RemoveByToken(token a11y.WindowToken) (*Entry, bool) {
	if e, ok := removeToken(r.global, token); ok {
		return e, true
	}
	for _, t := range r.users {
		if e, ok := removeToken(t, token); ok {
			return e, true
		}
	}
	return nil, false
}

func removeToken(t table, token a11y.WindowToken) (*Entry, bool) {
	for id, e := range t {
		if e.Token == token {
			delete(t, id)
			e.release()
			return e, true
		}
	}
	return nil, false
}

// Remove drops windowID from the table of userID.
func (r *Registry) Remove(windowID, userID int) (*Entry, bool) {
	t := r.userTable(userID, false)
	e, ok := t[windowID]
	if !ok {
		return nil, false
	}
	delete(t, windowID)
	e.release()
	return e, true
}

// Lookup resolves windowID as seen by currentUser: global first, then the
// user's own table.
func (r *Registry) Lookup(windowID, currentUser int) (*Entry, bool) {
	if e, ok := r.global[windowID]; ok {
		return e, true
	}
	e, ok := r.userTable(currentUser, false)[windowID]
	return e, ok
}

// WindowIDForToken returns the id registered for token as seen by
// currentUser, or a11y.NoWindow.
func (r *Registry) WindowIDForToken(token a11y.WindowToken, currentUser int) int {
	for id, e := range r.global {
		if e.Token == token {
			return id
		}
	}
	for id, e := range r.userTable(currentUser, false) {
		if e.Token == token {
			return id
		}
	}
	return a11y.NoWindow
}

// DropUser forgets every window of a removed user.
func (r *Registry) DropUser(userID int) {
	for _, e := range r.users[userID] {
		e.release()
	}
	delete(r.users, userID)
}

// Windows lists the window ids visible to currentUser in ascending order.
func (r *Registry) Windows(currentUser int) []int {
	var ids []int
	for id := range r.global {
		ids = append(ids, id)
	}
	for id := range r.userTable(currentUser, false) {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
