// ABOUTME: Accessibility and key event values exchanged with services
// ABOUTME: Events are cloned per recipient and sealed before delivery

package a11y

import (
	"slices"
	"time"
)

// NodeRef points at a node inside a window's UI tree.
type NodeRef struct {
	WindowID int
	NodeID   int64
}

// Event is a UI event reported by an application window.
type Event struct {
	Type        EventType
	WindowID    int
	PackageName string
	ClassName   string
	Text        []string
	EventTime   time.Time

	// NotImportant marks events from views hidden from accessibility.
	NotImportant bool

	// Source is the live content handle. It is stripped for event types
	// that do not allow retrieval and for services that cannot retrieve
	// window content.
	Source *NodeRef

	// ConnectionID is set on delivery so a service can query the source.
	ConnectionID int

	sealed bool
}

// Clone returns an unsealed deep copy.
func (e *Event) Clone() *Event {
	out := *e
	out.Text = slices.Clone(e.Text)
	if e.Source != nil {
		src := *e.Source
		out.Source = &src
	}
	out.sealed = false
	return &out
}

// Seal marks the event as read-only for the recipient.
func (e *Event) Seal() {
	e.sealed = true
}

// Sealed reports whether Seal was called.
func (e *Event) Sealed() bool {
	return e.sealed
}

// StripSource removes the live content handle.
func (e *Event) StripSource() {
	e.Source = nil
}

// KeyAction distinguishes presses from releases.
type KeyAction int

const (
	KeyDown KeyAction = iota
	KeyUp
)

// KeyEvent is a raw key event offered to a key-filtering service.
type KeyEvent struct {
	KeyCode   int
	Action    KeyAction
	Repeat    int
	MetaState int
	DownTime  time.Time
	EventTime time.Time
}

// Rect is a window frame in screen coordinates.
type Rect struct {
	Left, Top, Right, Bottom int
}

// MagnificationSpec describes the current screen magnification.
type MagnificationSpec struct {
	Scale   float32
	OffsetX float32
	OffsetY float32
}

// Node is a single node returned from a UI tree query.
type Node struct {
	ID        int64
	WindowID  int
	ViewID    string
	ClassName string
	Text      string
	Bounds    Rect
}

// NodeQuery carries the arguments of a UI tree query or node action.
type NodeQuery struct {
	NodeID        int64
	ViewID        string
	Text          string
	FocusType     int
	Direction     int
	Action        Action
	Arguments     map[string]string
	InteractionID int
	FetchFlags    FetchFlag
	Spec          MagnificationSpec

	// ConnectionID is the asking service's connection id, filled in by the
	// broker before the query reaches the window.
	ConnectionID int
}
