// ABOUTME: Headless window manager and input filter used when no compositor is attached
// ABOUTME: Tracks focus, frames and feature flags in memory and logs what the broker pushes

package gateway

import (
	"log/slog"
	"sync"

	"github.com/2389/a11y-gateway/internal/a11y"
)

// Desktop is an in-memory a11y.WindowManager and a11y.InputFilter. It keeps
// whatever state the broker pushes so /debug/state and tests can observe it.
type Desktop struct {
	mu sync.Mutex

	focused    a11y.WindowToken
	hasFocus   bool
	frames     map[a11y.WindowToken]a11y.Rect
	magnify    a11y.MagnificationSpec
	keyguard   bool
	touch      bool
	filterOn   bool
	features   a11y.InputFeature
	injected   int
	forwarded  int
	lastGlobal a11y.GlobalAction

	logger *slog.Logger
}

// NewDesktop creates a Desktop with nothing focused and a 1x magnification.
func NewDesktop(logger *slog.Logger) *Desktop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Desktop{
		frames:  make(map[a11y.WindowToken]a11y.Rect),
		magnify: a11y.MagnificationSpec{Scale: 1},
		logger:  logger.With("component", "desktop"),
	}
}

// Focus records token as the focused window with the given frame.
func (d *Desktop) Focus(token a11y.WindowToken, frame a11y.Rect) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.focused = token
	d.hasFocus = true
	d.frames[token] = frame
}

// Close forgets a window, clearing focus if it was focused.
func (d *Desktop) Close(token a11y.WindowToken) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.frames, token)
	if d.focused == token {
		d.focused = ""
		d.hasFocus = false
	}
}

// SetKeyguardLocked sets the lock screen state.
func (d *Desktop) SetKeyguardLocked(locked bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keyguard = locked
}

// SetMagnification sets the magnification returned for every window.
func (d *Desktop) SetMagnification(m a11y.MagnificationSpec) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.magnify = m
}

// FocusedWindow implements a11y.WindowManager.
func (d *Desktop) FocusedWindow() (a11y.WindowToken, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.focused, d.hasFocus
}

// WindowFrame implements a11y.WindowManager.
func (d *Desktop) WindowFrame(token a11y.WindowToken) (a11y.Rect, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.frames[token]
	return r, ok
}

// MagnificationSpec implements a11y.WindowManager.
func (d *Desktop) MagnificationSpec(a11y.WindowToken) a11y.MagnificationSpec {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.magnify
}

// IsKeyguardLocked implements a11y.WindowManager.
func (d *Desktop) IsKeyguardLocked() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.keyguard
}

// SetTouchExplorationEnabled implements a11y.WindowManager.
func (d *Desktop) SetTouchExplorationEnabled(enabled bool) {
	d.mu.Lock()
	d.touch = enabled
	d.mu.Unlock()
	d.logger.Debug("touch exploration", "enabled", enabled)
}

// SetInputFilterEnabled implements a11y.WindowManager.
func (d *Desktop) SetInputFilterEnabled(enabled bool) {
	d.mu.Lock()
	d.filterOn = enabled
	d.mu.Unlock()
	d.logger.Info("input filter", "enabled", enabled)
}

// PerformGlobalAction implements a11y.WindowManager. Every known action
// succeeds.
func (d *Desktop) PerformGlobalAction(action a11y.GlobalAction) bool {
	if action < a11y.GlobalActionBack || action > a11y.GlobalActionQuickSettings {
		return false
	}
	d.mu.Lock()
	d.lastGlobal = action
	d.mu.Unlock()
	d.logger.Debug("global action", "action", int(action))
	return true
}

// SetFeatures implements a11y.InputFilter.
func (d *Desktop) SetFeatures(features a11y.InputFeature) {
	d.mu.Lock()
	d.features = features
	d.mu.Unlock()
	d.logger.Debug("input features", "features", uint32(features))
}

// InjectKeyEvent implements a11y.InputFilter.
func (d *Desktop) InjectKeyEvent(ev a11y.KeyEvent, policyFlags uint32) {
	d.mu.Lock()
	d.injected++
	d.mu.Unlock()
	d.logger.Debug("key event injected", "key_code", ev.KeyCode, "flags", policyFlags)
}

// NotifyAccessibilityEvent implements a11y.InputFilter.
func (d *Desktop) NotifyAccessibilityEvent(*a11y.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forwarded++
}

// DesktopState is a point-in-time view of a Desktop.
type DesktopState struct {
	Focused          string `json:"focused,omitempty"`
	KeyguardLocked   bool   `json:"keyguard_locked"`
	TouchExploration bool   `json:"touch_exploration"`
	InputFilter      bool   `json:"input_filter"`
	Features         uint32 `json:"features"`
	Injected         int    `json:"injected_key_events"`
	Forwarded        int    `json:"forwarded_events"`
	LastGlobalAction int    `json:"last_global_action,omitempty"`
}

// State returns the current view.
func (d *Desktop) State() DesktopState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DesktopState{
		Focused:          string(d.focused),
		KeyguardLocked:   d.keyguard,
		TouchExploration: d.touch,
		InputFilter:      d.filterOn,
		Features:         uint32(d.features),
		Injected:         d.injected,
		Forwarded:        d.forwarded,
		LastGlobalAction: int(d.lastGlobal),
	}
}
