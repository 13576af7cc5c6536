// ABOUTME: Per-user accessibility state and the recompute pipeline run on every change
// ABOUTME: Reads persisted settings, manages bindings, derives touch exploration and input features

package broker

import (
	"log/slog"

	"github.com/2389/a11y-gateway/internal/a11y"
	"github.com/2389/a11y-gateway/internal/clients"
	"github.com/2389/a11y-gateway/internal/store"
)

// userState is everything the broker tracks for one user.
type userState struct {
	userID int

	installed []*a11y.ServiceInfo
	enabled   a11y.ComponentSet
	granted   a11y.ComponentSet
	binding   a11y.ComponentSet

	// services holds every service object not explicitly unbound; bound is
	// the subset currently connected, in bind order.
	services map[a11y.ComponentName]*Service
	bound    []*Service

	handledFeedback a11y.FeedbackType
	lastSentState   a11y.ClientState

	accessibilityEnabled    bool
	touchExplorationEnabled bool
	enhancedWebEnabled      bool
	magnificationEnabled    bool
	filterKeyEvents         bool

	automation       *Service
	automationClient a11y.ServiceClient
	automationUnlink func()
	automationToken  int
}

func newUserState(userID int) *userState {
	return &userState{
		userID:        userID,
		enabled:       make(a11y.ComponentSet),
		granted:       make(a11y.ComponentSet),
		binding:       make(a11y.ComponentSet),
		services:      make(map[a11y.ComponentName]*Service),
		lastSentState: -1,
	}
}

// clientState is the bitmask clients of this user observe. Touch exploration
// only counts while accessibility is on.
func (u *userState) clientState() a11y.ClientState {
	var state a11y.ClientState
	if u.accessibilityEnabled {
		state |= a11y.StateAccessibilityEnabled
		if u.touchExplorationEnabled {
			state |= a11y.StateTouchExplorationEnabled
		}
	}
	return state
}

func (u *userState) addBound(s *Service) {
	for _, b := range u.bound {
		if b == s {
			return
		}
	}
	u.bound = append(u.bound, s)
	u.services[s.component] = s
}

func (u *userState) removeBound(s *Service) {
	for i, b := range u.bound {
		if b == s {
			u.bound = append(u.bound[:i:i], u.bound[i+1:]...)
			return
		}
	}
}

func (u *userState) installedInfo(c a11y.ComponentName) *a11y.ServiceInfo {
	for _, info := range u.installed {
		if info.Component == c {
			return info
		}
	}
	return nil
}

// resetUserLocked drops everything a background user holds.
func (b *Broker) resetUserLocked(u *userState) {
	b.unbindAllLocked(u)

	u.bound = nil
	u.services = make(map[a11y.ComponentName]*Service)
	u.binding = make(a11y.ComponentSet)
	u.enabled = make(a11y.ComponentSet)
	u.granted = make(a11y.ComponentSet)
	u.handledFeedback = 0
	u.lastSentState = -1

	u.accessibilityEnabled = false
	u.touchExplorationEnabled = false
	u.enhancedWebEnabled = false
	u.magnificationEnabled = false
	u.filterKeyEvents = false
}

// readConfigurationLocked reloads installed services and persisted settings.
// It reports whether anything differed from memory.
func (b *Broker) readConfigurationLocked(u *userState) bool {
	changed := b.readInstalledServicesLocked(u)
	changed = b.readEnabledServicesLocked(u) || changed
	changed = b.readGrantedServicesLocked(u) || changed
	changed = b.readAccessibilityEnabledLocked(u) || changed
	changed = b.readTouchExplorationEnabledLocked(u) || changed
	changed = b.readEnhancedWebLocked(u) || changed
	changed = b.readMagnificationEnabledLocked(u) || changed
	return changed
}

func (b *Broker) readInstalledServicesLocked(u *userState) bool {
	var installed []*a11y.ServiceInfo
	for _, info := range b.inventory.Services(u.userID) {
		if info.Permission != a11y.BindServicePermission {
			b.logger.Warn("skipping service without bind permission",
				"service", info.ID(),
				"permission", info.Permission,
			)
			continue
		}
		installed = append(installed, info)
	}
	if a11y.EqualServiceLists(installed, u.installed) {
		return false
	}
	u.installed = installed
	return true
}

func (b *Broker) readComponentSetLocked(name string, userID int) a11y.ComponentSet {
	value, err := b.settings.GetString(b.ctx, name, userID)
	if err != nil {
		return make(a11y.ComponentSet)
	}
	return a11y.ParseComponentSet(value)
}

func (b *Broker) readEnabledServicesLocked(u *userState) bool {
	set := b.readComponentSetLocked(store.SettingEnabledServices, u.userID)
	if set.Equal(u.enabled) {
		return false
	}
	u.enabled = set
	return true
}

func (b *Broker) readGrantedServicesLocked(u *userState) bool {
	set := b.readComponentSetLocked(store.SettingTouchExplorationGrantedServices, u.userID)
	if set.Equal(u.granted) {
		return false
	}
	u.granted = set
	return true
}

func (b *Broker) readBoolLocked(name string, userID int, dst *bool) bool {
	v := store.GetBool(b.ctx, b.settings, name, userID, false)
	if v == *dst {
		return false
	}
	*dst = v
	return true
}

func (b *Broker) readAccessibilityEnabledLocked(u *userState) bool {
	return b.readBoolLocked(store.SettingAccessibilityEnabled, u.userID, &u.accessibilityEnabled)
}

func (b *Broker) readTouchExplorationEnabledLocked(u *userState) bool {
	return b.readBoolLocked(store.SettingTouchExplorationEnabled, u.userID, &u.touchExplorationEnabled)
}

func (b *Broker) readEnhancedWebLocked(u *userState) bool {
	return b.readBoolLocked(store.SettingScriptInjection, u.userID, &u.enhancedWebEnabled)
}

func (b *Broker) readMagnificationEnabledLocked(u *userState) bool {
	return b.readBoolLocked(store.SettingMagnificationEnabled, u.userID, &u.magnificationEnabled)
}

func (b *Broker) persistSetLocked(name string, set a11y.ComponentSet, userID int) {
	if err := b.settings.PutString(b.ctx, name, set.String(), userID); err != nil {
		b.logger.Error("persisting setting", "name", name, "user_id", userID, "error", err)
	}
}

func (b *Broker) persistBoolLocked(name string, value bool, userID int) {
	if err := store.PutBool(b.ctx, b.settings, name, value, userID); err != nil {
		b.logger.Error("persisting setting", "name", name, "user_id", userID, "error", err)
	}
}

// onUserStateChangedLocked recomputes everything derived from u. The order
// matters: bindings feed key filtering and touch exploration, which feed the
// input filter and finally the client bitmask.
func (b *Broker) onUserStateChangedLocked(u *userState) {
	b.initialized = true
	b.updateLegacyCapabilitiesLocked(u)
	b.updateServicesLocked(u)
	b.updateDerivedStateLocked(u)
}

// updateDerivedStateLocked recomputes what depends on the bound services
// without touching the bindings themselves.
func (b *Broker) updateDerivedStateLocked(u *userState) {
	b.updateFilterKeyEventsLocked(u)
	b.updateTouchExplorationLocked(u)
	b.updateEnhancedWebLocked(u)
	b.scheduleUpdateInputFilterLocked(u)
	b.scheduleUpdateClientsLocked(u)
}

// updateLegacyCapabilitiesLocked grants the touch-exploration capability to
// legacy services the user already approved.
func (b *Broker) updateLegacyCapabilitiesLocked(u *userState) {
	for _, info := range u.installed {
		if info.Capabilities&a11y.CapabilityRequestTouchExploration != 0 {
			continue
		}
		if info.TargetVersion <= a11y.LegacyTouchExplorationVersion && u.granted.Has(info.Component) {
			info.Capabilities |= a11y.CapabilityRequestTouchExploration
		}
	}
}

func (b *Broker) updateServicesLocked(u *userState) {
	if u.accessibilityEnabled {
		b.manageServicesLocked(u)
		return
	}
	b.unbindAllLocked(u)
}

// manageServicesLocked binds enabled installed services and unbinds the rest.
// Accessibility turns itself off when nothing is left to serve.
func (b *Broker) manageServicesLocked(u *userState) {
	count := 0
	for _, info := range u.installed {
		c := info.Component
		s := u.services[c]
		if !u.enabled.Has(c) {
			if s != nil {
				s.unbindLocked()
			}
			continue
		}
		count++
		if u.binding.Has(c) {
			continue
		}
		if s == nil {
			s = b.newServiceLocked(u, info, false)
		}
		s.bindLocked()
	}

	// Services whose package went away.
	for c, s := range u.services {
		if !s.isAutomation && u.installedInfo(c) == nil {
			s.unbindLocked()
		}
	}

	if count == 0 && u.accessibilityEnabled {
		b.logger.Info("no enabled services, disabling accessibility", "user_id", u.userID)
		u.accessibilityEnabled = false
		b.persistBoolLocked(store.SettingAccessibilityEnabled, false, u.userID)
	}
}

func (b *Broker) unbindAllLocked(u *userState) {
	for _, s := range u.services {
		if s.isAutomation {
			continue
		}
		s.unbindLocked()
	}
}

func (b *Broker) updateFilterKeyEventsLocked(u *userState) {
	u.filterKeyEvents = false
	for _, s := range u.bound {
		if s.requestFilterKeyEvents && s.info.Capabilities&a11y.CapabilityRequestFilterKeyEvents != 0 {
			u.filterKeyEvents = true
			return
		}
	}
}

func (b *Broker) updateTouchExplorationLocked(u *userState) {
	enabled := false
	for _, s := range u.bound {
		if b.canRequestAndRequestsTouchExplorationLocked(u, s) {
			enabled = true
			break
		}
	}
	if enabled != u.touchExplorationEnabled {
		u.touchExplorationEnabled = enabled
		if u.automation == nil {
			b.persistBoolLocked(store.SettingTouchExplorationEnabled, enabled, u.userID)
		}
	}
	if u.userID == b.currentUser {
		b.queue.Post(func() { b.windows.SetTouchExplorationEnabled(enabled) })
	}
}

// canRequestAndRequestsTouchExplorationLocked reports whether s turns touch
// exploration on. A legacy service without a grant triggers the consent
// prompt instead.
func (b *Broker) canRequestAndRequestsTouchExplorationLocked(u *userState, s *Service) bool {
	if !s.canReceiveEventsLocked() || !s.requestTouchExploration {
		return false
	}
	if s.isAutomation {
		return true
	}
	if s.info.TargetVersion <= a11y.LegacyTouchExplorationVersion {
		if u.granted.Has(s.component) {
			return true
		}
		b.promptTouchExplorationLocked(u, s)
		return false
	}
	return s.info.Capabilities&a11y.CapabilityRequestTouchExploration != 0
}

func (b *Broker) promptTouchExplorationLocked(u *userState, s *Service) {
	if b.prompter == nil || b.promptShowing {
		return
	}
	b.promptShowing = true
	req := a11y.PromptRequest{
		Component: s.component,
		Label:     s.info.Label,
		UserID:    u.userID,
	}
	b.logger.Info("requesting touch exploration consent", "service", req.Component.String(), "user_id", req.UserID)
	b.queue.Post(func() {
		b.prompter.PromptTouchExploration(req, func(accepted bool) {
			b.onPromptAnswered(req, accepted)
		})
	})
}

func (b *Broker) onPromptAnswered(req a11y.PromptRequest, accepted bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.promptShowing = false
	b.logger.Info("touch exploration consent answered",
		"service", req.Component.String(),
		"user_id", req.UserID,
		"accepted", accepted,
	)
	if !accepted {
		return
	}

	u := b.userLocked(req.UserID)
	u.granted.Add(req.Component)
	b.persistSetLocked(store.SettingTouchExplorationGrantedServices, u.granted, u.userID)
	u.touchExplorationEnabled = true
	b.persistBoolLocked(store.SettingTouchExplorationEnabled, true, u.userID)
	b.onUserStateChangedLocked(u)
}

func (b *Broker) updateEnhancedWebLocked(u *userState) {
	enabled := false
	for _, s := range u.bound {
		if !s.canReceiveEventsLocked() || !s.requestEnhancedWeb {
			continue
		}
		if s.isAutomation || s.info.Capabilities&a11y.CapabilityRequestEnhancedWeb != 0 {
			enabled = true
			break
		}
	}
	if enabled != u.enhancedWebEnabled {
		u.enhancedWebEnabled = enabled
		if u.automation == nil {
			b.persistBoolLocked(store.SettingScriptInjection, enabled, u.userID)
		}
	}
}

// scheduleUpdateInputFilterLocked reconfigures the input filter on the
// worker, outside the lock.
func (b *Broker) scheduleUpdateInputFilterLocked(u *userState) {
	if u.userID != b.currentUser {
		return
	}
	b.queue.Post(func() { b.updateInputFilter(u) })
}

func (b *Broker) updateInputFilter(u *userState) {
	b.mu.Lock()
	var features a11y.InputFeature
	if u.magnificationEnabled {
		features |= a11y.InputFeatureScreenMagnifier
	}
	if u.accessibilityEnabled && u.touchExplorationEnabled {
		features |= a11y.InputFeatureTouchExploration
	}
	if u.filterKeyEvents {
		features |= a11y.InputFeatureFilterKeyEvents
	}
	enable := features != 0
	toggled := enable != b.hasInputFilter
	b.hasInputFilter = enable
	b.mu.Unlock()

	if toggled {
		b.logger.Debug("input filter toggled", "enabled", enable)
		b.windows.SetInputFilterEnabled(enable)
	}
	if enable || toggled {
		b.input.SetFeatures(features)
	}
}

// scheduleUpdateClientsLocked publishes the client bitmask if it changed
// since the last publish and anyone is listening.
func (b *Broker) scheduleUpdateClientsLocked(u *userState) {
	state := u.clientState()
	if u.lastSentState == state {
		return
	}
	userScope := clients.User(u.userID)
	if b.clients.Count(clients.Global) == 0 && b.clients.Count(userScope) == 0 {
		return
	}
	u.lastSentState = state
	isCurrent := u.userID == b.currentUser

	b.logger.Debug("publishing client state",
		slog.Int("user_id", u.userID),
		slog.Int("state", int(state)),
	)
	b.queue.Post(func() {
		if isCurrent {
			b.clients.Publish(clients.Global, state)
		}
		b.clients.Publish(userScope, state)
	})
}
