// ABOUTME: Handle methods a bound service calls back into the broker
// ABOUTME: Content queries and actions are gated by capability and the active window

package broker

import (
	"context"

	"github.com/2389/a11y-gateway/internal/a11y"
	"github.com/2389/a11y-gateway/internal/auth"
	"github.com/2389/a11y-gateway/internal/policy"
)

type queryKind int

const (
	queryByAccessibilityID queryKind = iota
	queryByViewID
	queryByText
	queryFocus
	queryFocusSearch
	queryAction
)

var queryNames = map[queryKind]string{
	queryByAccessibilityID: "find_by_accessibility_id",
	queryByViewID:          "find_by_view_id",
	queryByText:            "find_by_text",
	queryFocus:             "find_focus",
	queryFocusSearch:       "focus_search",
	queryAction:            "perform_action",
}

// ServiceInfo returns a copy of the service's current descriptor.
func (s *Service) ServiceInfo() *a11y.ServiceInfo {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	return s.info.Clone()
}

// SetServiceInfo updates the dynamically configurable fields. Identity and
// capabilities stay as installed.
func (s *Service) SetServiceInfo(info *a11y.ServiceInfo) {
	if info == nil {
		return
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	s.info.EventTypes = info.EventTypes
	s.info.FeedbackType = info.FeedbackType
	s.info.NotificationTimeout = info.NotificationTimeout
	s.info.Flags = info.Flags
	s.info.Packages = append([]string(nil), info.Packages...)
	s.applyInfoLocked()

	s.b.logger.Debug("service info updated",
		"service", s.component.String(),
		"event_types", s.eventTypes.String(),
		"feedback", s.feedbackType.String(),
	)
	s.b.onUserStateChangedLocked(s.b.userLocked(s.userID))
}

// SetKeyEventResult acknowledges a key event delivered with sequence.
func (s *Service) SetKeyEventResult(handled bool, sequence int) {
	s.keys.Acknowledge(handled, sequence)
}

func (s *Service) FindByAccessibilityID(ctx context.Context, windowID int, q a11y.NodeQuery, cb a11y.InteractionCallback) (bool, error) {
	return s.query(ctx, queryByAccessibilityID, windowID, q, cb)
}

func (s *Service) FindByViewID(ctx context.Context, windowID int, q a11y.NodeQuery, cb a11y.InteractionCallback) (bool, error) {
	return s.query(ctx, queryByViewID, windowID, q, cb)
}

func (s *Service) FindByText(ctx context.Context, windowID int, q a11y.NodeQuery, cb a11y.InteractionCallback) (bool, error) {
	return s.query(ctx, queryByText, windowID, q, cb)
}

func (s *Service) FindFocus(ctx context.Context, windowID int, q a11y.NodeQuery, cb a11y.InteractionCallback) (bool, error) {
	return s.query(ctx, queryFocus, windowID, q, cb)
}

func (s *Service) FocusSearch(ctx context.Context, windowID int, q a11y.NodeQuery, cb a11y.InteractionCallback) (bool, error) {
	return s.query(ctx, queryFocusSearch, windowID, q, cb)
}

func (s *Service) PerformAction(ctx context.Context, windowID int, q a11y.NodeQuery, cb a11y.InteractionCallback) (bool, error) {
	return s.query(ctx, queryAction, windowID, q, cb)
}

// query forwards a node query to the window's interaction connection. It
// reports false when the query is not permitted, the window is unknown, or
// the connection failed.
func (s *Service) query(ctx context.Context, kind queryKind, windowID int, q a11y.NodeQuery, cb a11y.InteractionCallback) (bool, error) {
	caller, err := auth.RequireCaller(ctx)
	if err != nil {
		return false, err
	}

	b := s.b
	b.mu.Lock()
	resolved, err := policy.ResolveCallingUser(caller, s.userID, b.currentUser)
	if err != nil {
		b.mu.Unlock()
		return false, err
	}
	if resolved != b.currentUser {
		b.mu.Unlock()
		return false, nil
	}
	if err := policy.EnforceCanRetrieveWindowContent(s, s.component.String()); err != nil {
		b.mu.Unlock()
		return false, err
	}

	resolvedWindow := b.policy.ResolveWindowID(windowID)
	var permitted bool
	if kind == queryAction {
		permitted = b.policy.CanPerformAction(s, resolvedWindow, q.Action)
	} else {
		permitted = b.policy.CanGetNodeInfo(s, resolvedWindow)
	}
	if !permitted {
		b.mu.Unlock()
		return false, nil
	}
	entry, ok := b.registry.Lookup(resolvedWindow, b.currentUser)
	if !ok {
		b.mu.Unlock()
		return false, nil
	}
	conn, token := entry.Conn, entry.Token
	q.FetchFlags |= s.fetchFlags
	q.ConnectionID = s.id
	b.mu.Unlock()

	q.Spec = b.windows.MagnificationSpec(token)

	switch kind {
	case queryByAccessibilityID:
		err = conn.FindByAccessibilityID(ctx, q, cb)
	case queryByViewID:
		err = conn.FindByViewID(ctx, q, cb)
	case queryByText:
		err = conn.FindByText(ctx, q, cb)
	case queryFocus:
		err = conn.FindFocus(ctx, q, cb)
	case queryFocusSearch:
		err = conn.FocusSearch(ctx, q, cb)
	case queryAction:
		err = conn.PerformAction(ctx, q, cb)
	}
	if err != nil {
		b.logger.Warn("interaction connection call failed",
			"query", queryNames[kind],
			"window_id", resolvedWindow,
			"error", err,
		)
		return false, nil
	}
	return true, nil
}

// PerformGlobalAction runs a system-wide action on behalf of the service.
func (s *Service) PerformGlobalAction(ctx context.Context, action a11y.GlobalAction) (bool, error) {
	caller, err := auth.RequireCaller(ctx)
	if err != nil {
		return false, err
	}

	s.b.mu.Lock()
	resolved, err := policy.ResolveCallingUser(caller, s.userID, s.b.currentUser)
	current := s.b.currentUser
	s.b.mu.Unlock()
	if err != nil {
		return false, err
	}
	if resolved != current {
		return false, nil
	}
	return s.b.windows.PerformGlobalAction(action), nil
}
