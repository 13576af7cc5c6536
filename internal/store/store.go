// ABOUTME: Settings store interface and setting names for the accessibility broker
// ABOUTME: Values are keyed by (name, user id); writers notify registered watchers

package store

import (
	"context"
	"errors"
	"strconv"
	"sync"
)

// ErrNotFound is returned when a setting has never been written
var ErrNotFound = errors.New("not found")

// Persisted setting names.
const (
	SettingAccessibilityEnabled            = "accessibility_enabled"
	SettingTouchExplorationEnabled         = "touch_exploration_enabled"
	SettingMagnificationEnabled            = "accessibility_display_magnification_enabled"
	SettingEnabledServices                 = "enabled_accessibility_services"
	SettingTouchExplorationGrantedServices = "touch_exploration_granted_accessibility_services"
	SettingScriptInjection                 = "accessibility_script_injection"
)

// Change identifies a setting that was written with a new value.
type Change struct {
	Name   string
	UserID int
}

// SettingsStore persists per-user accessibility settings.
type SettingsStore interface {
	// GetString returns ErrNotFound for settings never written.
	GetString(ctx context.Context, name string, userID int) (string, error)
	PutString(ctx context.Context, name, value string, userID int) error

	// Watch registers fn for every change. fn runs on the writer's goroutine
	// and must not block. The returned func removes the watch.
	Watch(fn func(Change)) (cancel func())

	Close() error
}

// GetBool reads a 0/1 setting, returning def when unset or malformed.
func GetBool(ctx context.Context, s SettingsStore, name string, userID int, def bool) bool {
	v, err := s.GetString(ctx, name, userID)
	if err != nil {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n == 1
}

// PutBool writes a setting as 0/1.
func PutBool(ctx context.Context, s SettingsStore, name string, value bool, userID int) error {
	v := "0"
	if value {
		v = "1"
	}
	return s.PutString(ctx, name, v, userID)
}

// watchers is the observer list shared by the store implementations.
type watchers struct {
	mu     sync.RWMutex
	nextID int
	fns    map[int]func(Change)
}

func (w *watchers) add(fn func(Change)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fns == nil {
		w.fns = make(map[int]func(Change))
	}
	id := w.nextID
	w.nextID++
	w.fns[id] = fn

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.fns, id)
	}
}

func (w *watchers) notify(c Change) {
	w.mu.RLock()
	fns := make([]func(Change), 0, len(w.fns))
	for _, fn := range w.fns {
		fns = append(fns, fn)
	}
	w.mu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}
