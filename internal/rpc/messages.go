// ABOUTME: Wire messages of the a11y.v1 broker service and their a11y conversions
// ABOUTME: Stream envelopes carry exactly one non-nil payload field

package rpc

import (
	"time"

	"github.com/2389/a11y-gateway/internal/a11y"
)

// Query kinds shared by window and service streams.
const (
	QueryFindByAccessibilityID = "find_by_accessibility_id"
	QueryFindByViewID          = "find_by_view_id"
	QueryFindByText            = "find_by_text"
	QueryFindFocus             = "find_focus"
	QueryFocusSearch           = "focus_search"
	QueryPerformAction         = "perform_action"
)

// Empty is the reply of calls that return nothing.
type Empty struct{}

// NodeRef points at a node inside a window.
type NodeRef struct {
	WindowID int   `json:"window_id"`
	NodeID   int64 `json:"node_id"`
}

// Event is a UI event on the wire. EventTimeMs is unix milliseconds.
type Event struct {
	Type         uint32   `json:"type"`
	WindowID     int      `json:"window_id"`
	PackageName  string   `json:"package_name,omitempty"`
	ClassName    string   `json:"class_name,omitempty"`
	Text         []string `json:"text,omitempty"`
	EventTimeMs  int64    `json:"event_time_ms,omitempty"`
	NotImportant bool     `json:"not_important,omitempty"`
	Source       *NodeRef `json:"source,omitempty"`
	ConnectionID int      `json:"connection_id,omitempty"`
}

// KeyEvent is a raw key event on the wire.
type KeyEvent struct {
	KeyCode     int   `json:"key_code"`
	Action      int   `json:"action"`
	Repeat      int   `json:"repeat,omitempty"`
	MetaState   int   `json:"meta_state,omitempty"`
	DownTimeMs  int64 `json:"down_time_ms,omitempty"`
	EventTimeMs int64 `json:"event_time_ms,omitempty"`
}

// Rect is a screen rectangle.
type Rect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// Node is one node of a query result.
type Node struct {
	ID        int64  `json:"id"`
	WindowID  int    `json:"window_id"`
	ViewID    string `json:"view_id,omitempty"`
	ClassName string `json:"class_name,omitempty"`
	Text      string `json:"text,omitempty"`
	Bounds    Rect   `json:"bounds"`
}

// Magnification is the screen magnification applied to a query.
type Magnification struct {
	Scale   float32 `json:"scale"`
	OffsetX float32 `json:"offset_x,omitempty"`
	OffsetY float32 `json:"offset_y,omitempty"`
}

// NodeQuery carries query arguments.
type NodeQuery struct {
	NodeID        int64             `json:"node_id,omitempty"`
	ViewID        string            `json:"view_id,omitempty"`
	Text          string            `json:"text,omitempty"`
	FocusType     int               `json:"focus_type,omitempty"`
	Direction     int               `json:"direction,omitempty"`
	Action        int               `json:"action,omitempty"`
	Arguments     map[string]string `json:"arguments,omitempty"`
	InteractionID int               `json:"interaction_id"`
	FetchFlags    uint32            `json:"fetch_flags,omitempty"`
	Magnification Magnification     `json:"magnification"`
	ConnectionID  int               `json:"connection_id,omitempty"`
}

// SendEventRequest reports a UI event for UserID.
type SendEventRequest struct {
	UserID int    `json:"user_id"`
	Event  *Event `json:"event"`
}

// InterruptRequest interrupts feedback for UserID.
type InterruptRequest struct {
	UserID int `json:"user_id"`
}

// BoundsResponse is the frame of the active window, if any.
type BoundsResponse struct {
	Found  bool `json:"found"`
	Bounds Rect `json:"bounds"`
}

// AddClientRequest registers a state client for UserID.
type AddClientRequest struct {
	UserID int `json:"user_id"`
}

// ClientStateUpdate is streamed to a state client: first the starting state,
// then every change.
type ClientStateUpdate struct {
	State                   int  `json:"state"`
	AccessibilityEnabled    bool `json:"accessibility_enabled"`
	TouchExplorationEnabled bool `json:"touch_exploration_enabled"`
}

// WindowMessage is sent by an application window.
type WindowMessage struct {
	Register     *RegisterWindow `json:"register,omitempty"`
	NodeResults  *NodeResults    `json:"node_results,omitempty"`
	ActionResult *ActionResult   `json:"action_result,omitempty"`
}

// RegisterWindow must be the first message of a window stream.
type RegisterWindow struct {
	Token  string `json:"token"`
	UserID int    `json:"user_id"`
}

// NodeResults answers a query. On the service stream RequestID is the
// service's own query id.
type NodeResults struct {
	RequestID     int64  `json:"request_id"`
	InteractionID int    `json:"interaction_id"`
	Nodes         []Node `json:"nodes"`
}

// ActionResult answers a perform_action query.
type ActionResult struct {
	RequestID     int64 `json:"request_id"`
	InteractionID int   `json:"interaction_id"`
	Succeeded     bool  `json:"succeeded"`
}

// WindowCommand is sent to an application window.
type WindowCommand struct {
	Welcome *WindowWelcome `json:"welcome,omitempty"`
	Query   *WindowQuery   `json:"query,omitempty"`
}

// WindowWelcome carries the window id assigned at registration.
type WindowWelcome struct {
	WindowID int `json:"window_id"`
}

// WindowQuery asks the window to run a query and answer with RequestID.
type WindowQuery struct {
	RequestID int64     `json:"request_id"`
	Kind      string    `json:"kind"`
	Query     NodeQuery `json:"query"`
}

// ServiceMessage is sent by an assistive service.
type ServiceMessage struct {
	Announce       *AnnounceService     `json:"announce,omitempty"`
	KeyEventResult *KeyEventResult      `json:"key_event_result,omitempty"`
	Query          *ServiceQuery        `json:"query,omitempty"`
	GlobalAction   *GlobalActionRequest `json:"global_action,omitempty"`
	SetServiceInfo *ServiceInfoUpdate   `json:"set_service_info,omitempty"`
}

// AnnounceService must be the first message of a service stream. It makes
// Component bindable for UserID, or for every user with a11y.UserAll.
type AnnounceService struct {
	Component string `json:"component"`
	UserID    int    `json:"user_id"`
}

// KeyEventResult acknowledges an offered key event.
type KeyEventResult struct {
	Handled  bool `json:"handled"`
	Sequence int  `json:"sequence"`
}

// ServiceQuery is a content query or node action by a bound service.
type ServiceQuery struct {
	RequestID int64     `json:"request_id"`
	Kind      string    `json:"kind"`
	WindowID  int       `json:"window_id"`
	Query     NodeQuery `json:"query"`
}

// GlobalActionRequest runs a system-wide action.
type GlobalActionRequest struct {
	RequestID int64 `json:"request_id"`
	Action    int   `json:"action"`
}

// ServiceInfoUpdate replaces the dynamically configurable service fields.
type ServiceInfoUpdate struct {
	EventTypes            uint32   `json:"event_types"`
	FeedbackType          uint32   `json:"feedback_type"`
	NotificationTimeoutMs int64    `json:"notification_timeout_ms"`
	Flags                 uint32   `json:"flags"`
	Packages              []string `json:"packages,omitempty"`
}

// ServiceCommand is sent to an assistive service.
type ServiceCommand struct {
	Connected    *Connected     `json:"connected,omitempty"`
	Released     *Released      `json:"released,omitempty"`
	Event        *Event         `json:"event,omitempty"`
	Interrupt    *Interrupt     `json:"interrupt,omitempty"`
	KeyEvent     *KeyEventOffer `json:"key_event,omitempty"`
	Gesture      *Gesture       `json:"gesture,omitempty"`
	ClearCache   *ClearCache    `json:"clear_cache,omitempty"`
	QueryReply   *QueryReply    `json:"query_reply,omitempty"`
	NodeResults  *NodeResults   `json:"node_results,omitempty"`
	ActionResult *ActionResult  `json:"action_result,omitempty"`
}

// Connected completes the bind handshake.
type Connected struct {
	ConnectionID int `json:"connection_id"`
}

// Released tells the service its binding ended.
type Released struct {
	ConnectionID int `json:"connection_id"`
}

// Interrupt asks the service to stop its feedback.
type Interrupt struct{}

// KeyEventOffer offers a key event for filtering.
type KeyEventOffer struct {
	Event    KeyEvent `json:"event"`
	Sequence int      `json:"sequence"`
}

// Gesture reports a recognised gesture.
type Gesture struct {
	GestureID int `json:"gesture_id"`
}

// ClearCache tells the service its cached nodes are stale.
type ClearCache struct{}

// QueryReply reports whether a query or global action was accepted.
type QueryReply struct {
	RequestID int64  `json:"request_id"`
	Accepted  bool   `json:"accepted"`
	Error     string `json:"error,omitempty"`
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// FromEvent converts a broker event.
func FromEvent(ev *a11y.Event) *Event {
	out := &Event{
		Type:         uint32(ev.Type),
		WindowID:     ev.WindowID,
		PackageName:  ev.PackageName,
		ClassName:    ev.ClassName,
		Text:         append([]string(nil), ev.Text...),
		EventTimeMs:  millis(ev.EventTime),
		NotImportant: ev.NotImportant,
		ConnectionID: ev.ConnectionID,
	}
	if ev.Source != nil {
		out.Source = &NodeRef{WindowID: ev.Source.WindowID, NodeID: ev.Source.NodeID}
	}
	return out
}

// A11y converts to a broker event.
func (e *Event) A11y() *a11y.Event {
	out := &a11y.Event{
		Type:         a11y.EventType(e.Type),
		WindowID:     e.WindowID,
		PackageName:  e.PackageName,
		ClassName:    e.ClassName,
		Text:         append([]string(nil), e.Text...),
		EventTime:    fromMillis(e.EventTimeMs),
		NotImportant: e.NotImportant,
		ConnectionID: e.ConnectionID,
	}
	if e.Source != nil {
		out.Source = &a11y.NodeRef{WindowID: e.Source.WindowID, NodeID: e.Source.NodeID}
	}
	return out
}

// FromKeyEvent converts a broker key event.
func FromKeyEvent(ev a11y.KeyEvent) KeyEvent {
	return KeyEvent{
		KeyCode:     ev.KeyCode,
		Action:      int(ev.Action),
		Repeat:      ev.Repeat,
		MetaState:   ev.MetaState,
		DownTimeMs:  millis(ev.DownTime),
		EventTimeMs: millis(ev.EventTime),
	}
}

// A11y converts to a broker key event.
func (k KeyEvent) A11y() a11y.KeyEvent {
	return a11y.KeyEvent{
		KeyCode:   k.KeyCode,
		Action:    a11y.KeyAction(k.Action),
		Repeat:    k.Repeat,
		MetaState: k.MetaState,
		DownTime:  fromMillis(k.DownTimeMs),
		EventTime: fromMillis(k.EventTimeMs),
	}
}

// FromRect converts a broker rectangle.
func FromRect(r a11y.Rect) Rect {
	return Rect{Left: r.Left, Top: r.Top, Right: r.Right, Bottom: r.Bottom}
}

// A11y converts to a broker rectangle.
func (r Rect) A11y() a11y.Rect {
	return a11y.Rect{Left: r.Left, Top: r.Top, Right: r.Right, Bottom: r.Bottom}
}

// FromNodes converts query results.
func FromNodes(nodes []a11y.Node) []Node {
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, Node{
			ID:        n.ID,
			WindowID:  n.WindowID,
			ViewID:    n.ViewID,
			ClassName: n.ClassName,
			Text:      n.Text,
			Bounds:    FromRect(n.Bounds),
		})
	}
	return out
}

// ToNodes converts wire results to broker nodes.
func ToNodes(nodes []Node) []a11y.Node {
	out := make([]a11y.Node, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, a11y.Node{
			ID:        n.ID,
			WindowID:  n.WindowID,
			ViewID:    n.ViewID,
			ClassName: n.ClassName,
			Text:      n.Text,
			Bounds:    n.Bounds.A11y(),
		})
	}
	return out
}

// FromNodeQuery converts broker query arguments.
func FromNodeQuery(q a11y.NodeQuery) NodeQuery {
	out := NodeQuery{
		NodeID:        q.NodeID,
		ViewID:        q.ViewID,
		Text:          q.Text,
		FocusType:     q.FocusType,
		Direction:     q.Direction,
		Action:        int(q.Action),
		InteractionID: q.InteractionID,
		FetchFlags:    uint32(q.FetchFlags),
		Magnification: Magnification{Scale: q.Spec.Scale, OffsetX: q.Spec.OffsetX, OffsetY: q.Spec.OffsetY},
		ConnectionID:  q.ConnectionID,
	}
	if len(q.Arguments) > 0 {
		out.Arguments = make(map[string]string, len(q.Arguments))
		for k, v := range q.Arguments {
			out.Arguments[k] = v
		}
	}
	return out
}

// A11y converts to broker query arguments.
func (q NodeQuery) A11y() a11y.NodeQuery {
	out := a11y.NodeQuery{
		NodeID:        q.NodeID,
		ViewID:        q.ViewID,
		Text:          q.Text,
		FocusType:     q.FocusType,
		Direction:     q.Direction,
		Action:        a11y.Action(q.Action),
		InteractionID: q.InteractionID,
		FetchFlags:    a11y.FetchFlag(q.FetchFlags),
		Spec:          a11y.MagnificationSpec{Scale: q.Magnification.Scale, OffsetX: q.Magnification.OffsetX, OffsetY: q.Magnification.OffsetY},
		ConnectionID:  q.ConnectionID,
	}
	if len(q.Arguments) > 0 {
		out.Arguments = make(map[string]string, len(q.Arguments))
		for k, v := range q.Arguments {
			out.Arguments[k] = v
		}
	}
	return out
}

// FromClientState converts an aggregate state.
func FromClientState(s a11y.ClientState) *ClientStateUpdate {
	return &ClientStateUpdate{
		State:                   int(s),
		AccessibilityEnabled:    s&a11y.StateAccessibilityEnabled != 0,
		TouchExplorationEnabled: s&a11y.StateTouchExplorationEnabled != 0,
	}
}

// Apply copies the update onto info.
func (u *ServiceInfoUpdate) Apply(info *a11y.ServiceInfo) {
	info.EventTypes = a11y.EventType(u.EventTypes)
	info.FeedbackType = a11y.FeedbackType(u.FeedbackType)
	info.NotificationTimeout = time.Duration(u.NotificationTimeoutMs) * time.Millisecond
	info.Flags = a11y.ServiceFlag(u.Flags)
	info.Packages = append([]string(nil), u.Packages...)
}
