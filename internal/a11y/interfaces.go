// ABOUTME: Boundary interfaces between the broker and its external collaborators
// ABOUTME: Service clients, window connections, window manager, input filter, connector

package a11y

import "context"

// Peer is a remote endpoint whose termination can be observed once.
type Peer interface {
	// LinkToDeath arranges for onDeath to run when the peer goes away. The
	// returned func cancels the subscription.
	LinkToDeath(onDeath func()) (unlink func())
}

// EventListener receives UI events.
type EventListener interface {
	OnAccessibilityEvent(ev *Event) error
	OnInterrupt() error
}

// InputListener receives raw input offered for filtering.
type InputListener interface {
	OnKeyEvent(ev KeyEvent, sequence int) error
	OnGesture(gestureID int) error
}

// CacheListener is told when cached node data is stale.
type CacheListener interface {
	ClearNodeCache() error
}

// Handshaker receives the broker's handle once the service is bound. A nil
// handle releases the reverse channel.
type Handshaker interface {
	SetConnection(handle ServiceHandle, connectionID int) error
}

// ServiceClient is the reverse channel to a bound assistive service.
type ServiceClient interface {
	Peer
	Handshaker
	EventListener
	InputListener
	CacheListener
}

// InteractionCallback receives query results from an interaction connection.
type InteractionCallback interface {
	SetNodeResults(interactionID int, nodes []Node)
	SetActionResult(interactionID int, succeeded bool)
}

// ServiceHandle is the capability object a bound service calls back into.
// Query methods report false when the caller is not permitted or the window
// is unknown; a non-nil error aborts the call.
type ServiceHandle interface {
	ServiceInfo() *ServiceInfo
	SetServiceInfo(info *ServiceInfo)
	SetKeyEventResult(handled bool, sequence int)
	FindByAccessibilityID(ctx context.Context, windowID int, q NodeQuery, cb InteractionCallback) (bool, error)
	FindByViewID(ctx context.Context, windowID int, q NodeQuery, cb InteractionCallback) (bool, error)
	FindByText(ctx context.Context, windowID int, q NodeQuery, cb InteractionCallback) (bool, error)
	FindFocus(ctx context.Context, windowID int, q NodeQuery, cb InteractionCallback) (bool, error)
	FocusSearch(ctx context.Context, windowID int, q NodeQuery, cb InteractionCallback) (bool, error)
	PerformAction(ctx context.Context, windowID int, q NodeQuery, cb InteractionCallback) (bool, error)
	PerformGlobalAction(ctx context.Context, action GlobalAction) (bool, error)
}

// InteractionConnection answers UI tree queries for one window.
type InteractionConnection interface {
	Peer
	FindByAccessibilityID(ctx context.Context, q NodeQuery, cb InteractionCallback) error
	FindByViewID(ctx context.Context, q NodeQuery, cb InteractionCallback) error
	FindByText(ctx context.Context, q NodeQuery, cb InteractionCallback) error
	FindFocus(ctx context.Context, q NodeQuery, cb InteractionCallback) error
	FocusSearch(ctx context.Context, q NodeQuery, cb InteractionCallback) error
	PerformAction(ctx context.Context, q NodeQuery, cb InteractionCallback) error
}

// WindowToken identifies a window to the window manager.
type WindowToken string

// StateClient is a registered client told about aggregate state changes.
type StateClient interface {
	SetState(state ClientState) error
}

// WindowManager is the window-manager facing side of the broker.
type WindowManager interface {
	FocusedWindow() (WindowToken, bool)
	WindowFrame(token WindowToken) (Rect, bool)
	MagnificationSpec(token WindowToken) MagnificationSpec
	IsKeyguardLocked() bool
	SetTouchExplorationEnabled(enabled bool)
	SetInputFilterEnabled(enabled bool)
	PerformGlobalAction(action GlobalAction) bool
}

// InputFilter is the downstream input pipeline.
type InputFilter interface {
	SetFeatures(features InputFeature)
	InjectKeyEvent(ev KeyEvent, policyFlags uint32)
	NotifyAccessibilityEvent(ev *Event)
}

// ConnectionSink is told when a requested binding produced a live client.
type ConnectionSink interface {
	OnConnected(client ServiceClient) error
}

// Connector establishes channels to service components.
type Connector interface {
	Connect(ctx context.Context, component ComponentName, userID int, sink ConnectionSink) error
	Disconnect(component ComponentName, userID int)
}

// PromptRequest describes a pending touch-exploration consent prompt.
type PromptRequest struct {
	Component ComponentName
	Label     string
	UserID    int
}

// Prompter shows the touch-exploration consent prompt. respond may be called
// later from any goroutine.
type Prompter interface {
	PromptTouchExploration(req PromptRequest, respond func(accepted bool))
}
