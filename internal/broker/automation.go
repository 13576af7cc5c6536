// ABOUTME: UI automation registration, which temporarily overrides a user's configuration
// ABOUTME: Also the keyguard-bound temporary enable of a single service

package broker

import (
	"context"
	"errors"

	"github.com/2389/a11y-gateway/internal/a11y"
	"github.com/2389/a11y-gateway/internal/auth"
)

var (
	// ErrAutomationRegistered is returned when a UI automation service is
	// already registered for the current user.
	ErrAutomationRegistered = errors.New("ui automation service already registered")
	// ErrAutomationNotRegistered is returned when unregistering a client
	// that is not the registered automation service.
	ErrAutomationNotRegistered = errors.New("ui automation service not registered")
)

// AutomationComponent is the synthetic component name of the automation
// service.
var AutomationComponent = a11y.ComponentName{Package: "a11y.automation", Class: "a11y.automation.UiAutomation"}

// RegisterAutomationService installs client as an in-process service for the
// current user. Until it is unregistered or owner dies it is the only enabled
// service and accessibility is forced on. Clients are compared by identity.
func (b *Broker) RegisterAutomationService(ctx context.Context, owner a11y.Peer, client a11y.ServiceClient, info *a11y.ServiceInfo) error {
	if _, err := auth.RequirePermission(ctx, auth.PermissionRetrieveWindowContent, "RegisterAutomationService"); err != nil {
		return err
	}
	if client == nil || info == nil {
		return ErrProtocolViolation
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	u := b.currentUserLocked()
	if u.automation != nil {
		return ErrAutomationRegistered
	}

	info = info.Clone()
	info.Component = AutomationComponent
	info.Permission = a11y.BindServicePermission
	if info.Label == "" {
		info.Label = "UI automation"
	}

	u.automationToken++
	token, userID := u.automationToken, u.userID
	if owner != nil {
		u.automationUnlink = owner.LinkToDeath(func() {
			b.queue.Post(func() { b.automationOwnerDied(userID, token) })
		})
	}
	u.automationClient = client

	// Temporary configuration; nothing here is persisted.
	u.accessibilityEnabled = true
	u.touchExplorationEnabled = false
	u.enhancedWebEnabled = false
	u.magnificationEnabled = false
	u.installed = append(u.installed, info)
	u.enabled = a11y.ComponentSet{AutomationComponent: {}}
	u.granted.Add(AutomationComponent)
	u.automation = b.newServiceLocked(u, info, true)

	b.logger.Info("=== UI AUTOMATION REGISTERED ===", "user_id", userID, "connection_id", u.automation.id)
	b.onUserStateChangedLocked(u)
	return nil
}

// UnregisterAutomationService removes the automation service and restores
// the persisted configuration.
func (b *Broker) UnregisterAutomationService(ctx context.Context, client a11y.ServiceClient) error {
	if _, err := auth.RequireCaller(ctx); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	u := b.currentUserLocked()
	if u.automation == nil || client == nil || u.automationClient != client {
		return ErrAutomationNotRegistered
	}
	b.automationGoneLocked(u)
	return nil
}

func (b *Broker) automationOwnerDied(userID, token int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	u, ok := b.users[userID]
	if !ok || u.automation == nil || u.automationToken != token {
		return
	}
	b.logger.Warn("ui automation owner died", "user_id", userID)
	b.automationGoneLocked(u)
}

// automationGoneLocked tears the automation service down and rolls the user
// back to the persisted configuration.
func (b *Broker) automationGoneLocked(u *userState) {
	b.killAutomationLocked(u)
	b.readConfigurationLocked(u)
	b.onUserStateChangedLocked(u)
	b.logger.Info("=== UI AUTOMATION UNREGISTERED ===", "user_id", u.userID)
}

// killAutomationLocked tears the automation service down without restoring
// anything.
func (b *Broker) killAutomationLocked(u *userState) {
	s := u.automation
	if s == nil {
		return
	}
	if s.state == StateBound {
		s.keys.FlushLocked()
		s.detachLocked(u)
	} else {
		s.state = StateUnbound
		u.binding.Remove(s.component)
	}
	b.destroyAutomationLocked(u)
}

// destroyAutomationLocked forgets the automation service and its synthetic
// configuration entries.
func (b *Broker) destroyAutomationLocked(u *userState) {
	if u.automationUnlink != nil {
		u.automationUnlink()
		u.automationUnlink = nil
	}
	u.automation = nil
	u.automationClient = nil
	delete(u.services, AutomationComponent)
	u.enabled.Remove(AutomationComponent)
	u.granted.Remove(AutomationComponent)
	for i, info := range u.installed {
		if info.Component == AutomationComponent {
			u.installed = append(u.installed[:i:i], u.installed[i+1:]...)
			break
		}
	}
}

// TemporaryEnableUntilKeyguardRemoved turns on a single service while the
// device is locked. The persisted configuration returns on the next settings
// change or user switch.
func (b *Broker) TemporaryEnableUntilKeyguardRemoved(ctx context.Context, component a11y.ComponentName, touchExploration bool) error {
	if _, err := auth.RequirePermission(ctx, auth.PermissionTemporaryEnable, "TemporaryEnableUntilKeyguardRemoved"); err != nil {
		return err
	}
	if !b.windows.IsKeyguardLocked() {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	u := b.currentUserLocked()
	if u.automation != nil {
		return nil
	}
	u.accessibilityEnabled = true
	u.touchExplorationEnabled = touchExploration
	u.enhancedWebEnabled = false
	u.magnificationEnabled = false
	u.enabled = a11y.ComponentSet{component: {}}
	u.granted = a11y.ComponentSet{component: {}}

	b.logger.Info("temporarily enabling service", "service", component.String(), "user_id", u.userID)
	b.onUserStateChangedLocked(u)
	return nil
}
