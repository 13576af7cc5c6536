// ABOUTME: Security policy tracking the active window and gating content access
// ABOUTME: Resolves calling users and filters which events reach services

package policy

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/2389/a11y-gateway/internal/a11y"
	"github.com/2389/a11y-gateway/internal/auth"
)

// CapabilityHolder is anything with a declared capability mask.
type CapabilityHolder interface {
	Capabilities() a11y.Capability
}

// alwaysDispatched are event types delivered regardless of the active window.
const alwaysDispatched = a11y.EventWindowStateChanged |
	a11y.EventNotificationStateChanged |
	a11y.EventTouchExplorationGestureStart |
	a11y.EventTouchExplorationGestureEnd |
	a11y.EventGestureDetectionStart |
	a11y.EventGestureDetectionEnd |
	a11y.EventTouchInteractionStart |
	a11y.EventTouchInteractionEnd |
	a11y.EventViewHoverEnter |
	a11y.EventViewHoverExit

// retrievalAllowing are event types whose source may be queried.
const retrievalAllowing = a11y.EventViewClicked |
	a11y.EventViewLongClicked |
	a11y.EventViewFocused |
	a11y.EventViewHoverEnter |
	a11y.EventViewHoverExit |
	a11y.EventViewTextChanged |
	a11y.EventTouchExplorationGestureStart |
	a11y.EventTouchExplorationGestureEnd |
	a11y.EventWindowContentChanged |
	a11y.EventViewTextSelectionChanged |
	a11y.EventViewAccessibilityFocused |
	a11y.EventViewAccessibilityFocusCleared |
	a11y.EventViewTextTraversedAtGranularity

// Policy is the window-focus security policy.
type Policy struct {
	activeWindow    int
	touchInProgress bool
}

// New returns a Policy with no active window.
func New() *Policy {
	return &Policy{activeWindow: a11y.NoWindow}
}

// ActiveWindow returns the active window id or a11y.NoWindow.
func (p *Policy) ActiveWindow() int {
	return p.activeWindow
}

// TouchInteractionInProgress reports whether a touch interaction is running.
func (p *Policy) TouchInteractionInProgress() bool {
	return p.touchInProgress
}

// UpdateActiveWindow applies an event to the active window. focusedWindowID is
// the registry id of the window the window manager reports as focused, or
// a11y.NoWindow.
func (p *Policy) UpdateActiveWindow(windowID int, eventType a11y.EventType, focusedWindowID int) {
	switch eventType {
	case a11y.EventWindowStateChanged:
		if windowID == focusedWindowID {
			p.activeWindow = windowID
		}
	case a11y.EventViewHoverEnter:
		if p.touchInProgress && p.activeWindow != windowID {
			p.activeWindow = windowID
		}
	}
}

// OnTouchInteractionStart records that a touch interaction began.
func (p *Policy) OnTouchInteractionStart() {
	p.touchInProgress = true
}

// OnTouchInteractionEnd clears the touch flag and returns focus to the
// focused window.
func (p *Policy) OnTouchInteractionEnd(focusedWindowID int) {
	p.touchInProgress = false
	p.activeWindow = focusedWindowID
}

// ResolveWindowID substitutes the active window for a11y.ActiveWindowID.
func (p *Policy) ResolveWindowID(windowID int) int {
	if windowID == a11y.ActiveWindowID {
		return p.activeWindow
	}
	return windowID
}

// CanDispatchEvent reports whether ev may reach services at all.
func (p *Policy) CanDispatchEvent(ev *a11y.Event) bool {
	if ev.Type&alwaysDispatched != 0 {
		return true
	}
	return ev.WindowID == p.activeWindow
}

// UpdateEventSource strips the source from events that do not allow retrieval.
func UpdateEventSource(ev *a11y.Event) {
	if ev.Type&retrievalAllowing == 0 {
		ev.StripSource()
	}
}

// CanRetrieveWindowContent reports whether the holder declared the capability.
func CanRetrieveWindowContent(h CapabilityHolder) bool {
	return h.Capabilities()&a11y.CapabilityRetrieveWindowContent != 0
}

// CanGetNodeInfo reports whether the holder may query windowID.
func (p *Policy) CanGetNodeInfo(h CapabilityHolder, windowID int) bool {
	return CanRetrieveWindowContent(h) && windowID == p.activeWindow
}

// CanPerformAction reports whether the holder may run action on windowID.
func (p *Policy) CanPerformAction(h CapabilityHolder, windowID int, action a11y.Action) bool {
	return p.CanGetNodeInfo(h, windowID) && a11y.ValidAction(action)
}

// EnforceCanRetrieveWindowContent fails hard when a service queries content
// without having declared the capability.
func EnforceCanRetrieveWindowContent(h CapabilityHolder, id string) error {
	if !CanRetrieveWindowContent(h) {
		return status.Errorf(codes.FailedPrecondition,
			"service %s did not declare retrieve_window_content", id)
	}
	return nil
}

// ResolveCallingUser maps the userID a caller passed to a concrete user.
func ResolveCallingUser(c *auth.Caller, userID, currentUser int) (int, error) {
	if c == nil {
		return 0, status.Error(codes.Unauthenticated, "caller identity required")
	}
	if c.IsPrivileged() || c.InProcess {
		return currentUser, nil
	}
	if c.UserID == userID {
		return userID, nil
	}
	if !c.HasPermission(auth.PermissionInteractAcrossUsers) {
		return 0, status.Errorf(codes.PermissionDenied,
			"caller in user %d may not act for user %d", c.UserID, userID)
	}
	if userID == a11y.UserCurrent || userID == a11y.UserCurrentOrSelf {
		return currentUser, nil
	}
	return 0, status.Errorf(codes.InvalidArgument,
		"user %d must be the current user or a current-user sentinel", userID)
}

// IsCallerInteractingAcrossUsers reports whether a registration by c should
// be visible to every user.
func IsCallerInteractingAcrossUsers(c *auth.Caller, userID int) bool {
	return c.InProcess || c.UID == auth.ShellUID ||
		userID == a11y.UserCurrent || userID == a11y.UserCurrentOrSelf
}
