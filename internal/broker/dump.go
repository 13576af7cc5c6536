// ABOUTME: Diagnostic snapshot of broker state for the debug endpoint and CLI
// ABOUTME: Requires the dump permission; the snapshot is plain data safe to marshal

package broker

import (
	"context"
	"sort"

	"github.com/2389/a11y-gateway/internal/auth"
)

// Snapshot is a point-in-time view of the broker.
type Snapshot struct {
	CurrentUser      int            `json:"current_user"`
	Initialized      bool           `json:"initialized"`
	ActiveWindow     int            `json:"active_window"`
	TouchInteraction bool           `json:"touch_interaction"`
	InputFilter      bool           `json:"input_filter"`
	Windows          []int          `json:"windows"`
	Users            []UserSnapshot `json:"users"`
}

// UserSnapshot is the state of one user.
type UserSnapshot struct {
	UserID                  int               `json:"user_id"`
	ClientState             int               `json:"client_state"`
	AccessibilityEnabled    bool              `json:"accessibility_enabled"`
	TouchExplorationEnabled bool              `json:"touch_exploration_enabled"`
	EnhancedWebEnabled      bool              `json:"enhanced_web_enabled"`
	MagnificationEnabled    bool              `json:"magnification_enabled"`
	FilterKeyEvents         bool              `json:"filter_key_events"`
	Automation              bool              `json:"automation"`
	Installed               []string          `json:"installed"`
	Enabled                 []string          `json:"enabled"`
	Granted                 []string          `json:"granted"`
	Binding                 []string          `json:"binding"`
	Services                []ServiceSnapshot `json:"services"`
}

// ServiceSnapshot is the state of one bound service.
type ServiceSnapshot struct {
	ConnectionID        int    `json:"connection_id"`
	Component           string `json:"component"`
	State               string `json:"state"`
	EventTypes          string `json:"event_types"`
	FeedbackType        string `json:"feedback_type"`
	Capabilities        string `json:"capabilities"`
	NotificationTimeout string `json:"notification_timeout"`
	Default             bool   `json:"default"`
	PendingEvents       int    `json:"pending_events"`
	PendingKeys         int    `json:"pending_keys"`
}

// Dump returns a Snapshot. The caller needs the dump permission.
func (b *Broker) Dump(ctx context.Context) (*Snapshot, error) {
	if _, err := auth.RequirePermission(ctx, auth.PermissionDump, "Dump"); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	snap := &Snapshot{
		CurrentUser:      b.currentUser,
		Initialized:      b.initialized,
		ActiveWindow:     b.policy.ActiveWindow(),
		TouchInteraction: b.policy.TouchInteractionInProgress(),
		InputFilter:      b.hasInputFilter,
		Windows:          b.registry.Windows(b.currentUser),
	}

	ids := make([]int, 0, len(b.users))
	for id := range b.users {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		u := b.users[id]
		us := UserSnapshot{
			UserID:                  u.userID,
			ClientState:             int(u.clientState()),
			AccessibilityEnabled:    u.accessibilityEnabled,
			TouchExplorationEnabled: u.touchExplorationEnabled,
			EnhancedWebEnabled:      u.enhancedWebEnabled,
			MagnificationEnabled:    u.magnificationEnabled,
			FilterKeyEvents:         u.filterKeyEvents,
			Automation:              u.automation != nil,
		}
		for _, info := range u.installed {
			us.Installed = append(us.Installed, info.ID())
		}
		for _, c := range u.enabled.Sorted() {
			us.Enabled = append(us.Enabled, c.String())
		}
		for _, c := range u.granted.Sorted() {
			us.Granted = append(us.Granted, c.String())
		}
		for _, c := range u.binding.Sorted() {
			us.Binding = append(us.Binding, c.String())
		}
		for _, s := range u.bound {
			us.Services = append(us.Services, ServiceSnapshot{
				ConnectionID:        s.id,
				Component:           s.component.String(),
				State:               s.state.String(),
				EventTypes:          s.eventTypes.String(),
				FeedbackType:        s.feedbackType.String(),
				Capabilities:        s.info.Capabilities.String(),
				NotificationTimeout: s.notificationTimeout.String(),
				Default:             s.isDefault,
				PendingEvents:       len(s.pending),
				PendingKeys:         s.keys.PendingLocked(),
			})
		}
		snap.Users = append(snap.Users, us)
	}
	return snap, nil
}
