// ABOUTME: Tests for UI automation override, consent prompts, package changes and temporary enable
// ABOUTME: Checks that temporary state rolls back to the persisted configuration

package broker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/a11y-gateway/internal/a11y"
	"github.com/2389/a11y-gateway/internal/store"
)

func automationInfo() *a11y.ServiceInfo {
	return &a11y.ServiceInfo{
		Capabilities: a11y.CapabilityRetrieveWindowContent,
		EventTypes:   a11y.EventTypesAll,
		FeedbackType: a11y.FeedbackGeneric,
	}
}

func TestAutomation_OverridesAndRollsBack(t *testing.T) {
	svc := testService("com.example.reader")
	h, clients := startWith(t, svc)
	original := clients[0]

	owner := &peer{}
	auto := &fakeClient{}
	require.NoError(t, h.broker.RegisterAutomationService(systemCtx(), owner, auto, automationInfo()))

	h.sync()
	assert.NotNil(t, auto.Handle(), "automation attaches without the connector")
	assert.True(t, original.Released())

	u := h.user(h.snapshot(), 0)
	assert.True(t, u.Automation)
	assert.Equal(t, []string{AutomationComponent.String()}, u.Enabled)
	require.Len(t, u.Services, 1)
	assert.Equal(t, AutomationComponent.String(), u.Services[0].Component)

	installed, err := h.broker.InstalledServices(systemCtx(), a11y.UserCurrent)
	require.NoError(t, err)
	require.Len(t, installed, 1)
	assert.Equal(t, svc.ID(), installed[0].ID())

	enabled, err := h.broker.EnabledServices(systemCtx(), a11y.FeedbackAllMask, a11y.UserCurrent)
	require.NoError(t, err)
	assert.Empty(t, enabled)

	value, err := h.settings.GetString(context.Background(), store.SettingEnabledServices, 0)
	require.NoError(t, err)
	assert.Equal(t, svc.ID(), value, "automation must not persist its configuration")

	require.NoError(t, h.broker.UnregisterAutomationService(systemCtx(), auto))
	assert.False(t, auto.linked())

	h.waitBound(svc.Component)
	assert.Equal(t, 2, h.clientCount(svc.Component))
	u = h.user(h.snapshot(), 0)
	assert.False(t, u.Automation)
	assert.Equal(t, []string{svc.ID()}, u.Enabled)
}

func TestAutomation_SingleRegistration(t *testing.T) {
	h := newHarness(t, nil)
	h.broker.Start()

	auto := &fakeClient{}
	require.NoError(t, h.broker.RegisterAutomationService(systemCtx(), &peer{}, auto, automationInfo()))

	err := h.broker.RegisterAutomationService(systemCtx(), &peer{}, &fakeClient{}, automationInfo())
	assert.True(t, errors.Is(err, ErrAutomationRegistered))

	err = h.broker.UnregisterAutomationService(systemCtx(), &fakeClient{})
	assert.True(t, errors.Is(err, ErrAutomationNotRegistered))

	require.NoError(t, h.broker.UnregisterAutomationService(systemCtx(), auto))
	err = h.broker.UnregisterAutomationService(systemCtx(), auto)
	assert.True(t, errors.Is(err, ErrAutomationNotRegistered))
}

func TestAutomation_RequiresPermission(t *testing.T) {
	h := newHarness(t, nil)
	h.broker.Start()

	err := h.broker.RegisterAutomationService(appCtx(0), &peer{}, &fakeClient{}, automationInfo())
	assert.Error(t, err)
}

func TestAutomation_OwnerDeathRollsBack(t *testing.T) {
	h := newHarness(t, nil)
	h.broker.Start()

	owner := &peer{}
	auto := &fakeClient{}
	require.NoError(t, h.broker.RegisterAutomationService(systemCtx(), owner, auto, automationInfo()))
	assert.True(t, h.user(h.snapshot(), 0).AccessibilityEnabled)

	owner.Kill()
	assert.Eventually(t, func() bool {
		u := h.user(h.snapshot(), 0)
		return !u.Automation && !u.AccessibilityEnabled
	}, waitFor, tick)
	assert.False(t, owner.linked())
}

func TestAutomation_ClientDeathRollsBack(t *testing.T) {
	h := newHarness(t, nil)
	h.broker.Start()

	auto := &fakeClient{}
	require.NoError(t, h.broker.RegisterAutomationService(systemCtx(), &peer{}, auto, automationInfo()))

	auto.Kill()
	assert.Eventually(t, func() bool { return !h.user(h.snapshot(), 0).Automation }, waitFor, tick)

	// A new registration is accepted afterwards.
	require.NoError(t, h.broker.RegisterAutomationService(systemCtx(), &peer{}, &fakeClient{}, automationInfo()))
}

func TestAutomation_TornDownOnUserSwitch(t *testing.T) {
	h := newHarness(t, nil)
	h.broker.Start()

	auto := &fakeClient{}
	require.NoError(t, h.broker.RegisterAutomationService(systemCtx(), &peer{}, auto, automationInfo()))

	h.broker.SwitchUser(1)
	assert.False(t, h.user(h.snapshot(), 0).Automation)
	assert.False(t, auto.linked())
}

func TestTouchExplorationPrompt_GrantsLegacyService(t *testing.T) {
	legacy := testService("com.example.legacy")
	legacy.TargetVersion = a11y.LegacyTouchExplorationVersion
	legacy.Flags = a11y.FlagRequestTouchExplorationMode
	h, _ := startWith(t, legacy)

	require.Eventually(t, func() bool { return len(h.prompter.Requests()) == 1 }, waitFor, tick)
	req := h.prompter.Requests()[0]
	assert.Equal(t, legacy.Component, req.Component)
	assert.False(t, h.user(h.snapshot(), 0).TouchExplorationEnabled)

	h.prompter.answer(0, true)

	assert.Eventually(t, func() bool { return h.user(h.snapshot(), 0).TouchExplorationEnabled }, waitFor, tick)
	granted, err := h.settings.GetString(context.Background(), store.SettingTouchExplorationGrantedServices, 0)
	require.NoError(t, err)
	assert.Equal(t, legacy.ID(), granted)
	assert.True(t, store.GetBool(context.Background(), h.settings, store.SettingTouchExplorationEnabled, 0, false))
	assert.Len(t, h.prompter.Requests(), 1)

	installed, err := h.broker.InstalledServices(systemCtx(), a11y.UserCurrent)
	require.NoError(t, err)
	assert.NotZero(t, installed[0].Capabilities&a11y.CapabilityRequestTouchExploration)
}

func TestTouchExplorationPrompt_Declined(t *testing.T) {
	legacy := testService("com.example.legacy")
	legacy.TargetVersion = a11y.LegacyTouchExplorationVersion
	legacy.Flags = a11y.FlagRequestTouchExplorationMode
	h, _ := startWith(t, legacy)

	require.Eventually(t, func() bool { return len(h.prompter.Requests()) == 1 }, waitFor, tick)
	h.prompter.answer(0, false)
	h.sync()

	assert.False(t, h.user(h.snapshot(), 0).TouchExplorationEnabled)
	_, err := h.settings.GetString(context.Background(), store.SettingTouchExplorationGrantedServices, 0)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPackageRemoved_PrunesAndPersists(t *testing.T) {
	keep := testService("com.example.keep")
	gone := testService("com.example.gone")
	h, clients := startWith(t, keep, gone)

	h.inventory.RemovePackage("com.example.gone")

	assert.Eventually(t, clients[1].Released, waitFor, tick)
	assert.Eventually(t, func() bool {
		v, err := h.settings.GetString(context.Background(), store.SettingEnabledServices, 0)
		return err == nil && v == keep.ID()
	}, waitFor, tick)
	assert.False(t, clients[0].Released())
}

func TestPackagesChanged_BindsNewlyInstalled(t *testing.T) {
	svc := testService("com.example.late")
	h := newHarness(t, nil)
	h.registerFactory(svc.Component)
	h.enable(0, svc.Component)
	h.broker.Start()
	h.sync()

	// Nothing was installed, so accessibility turned itself off.
	assert.False(t, store.GetBool(context.Background(), h.settings, store.SettingAccessibilityEnabled, 0, true))

	h.inventory.Install(svc)
	h.sync()
	assert.Nil(t, h.client(svc.Component))

	require.NoError(t, store.PutBool(context.Background(), h.settings, store.SettingAccessibilityEnabled, true, 0))
	h.waitBound(svc.Component)
}

func TestPackagesForceStopped(t *testing.T) {
	svc := testService("com.example.reader")
	h, clients := startWith(t, svc)

	assert.False(t, h.broker.OnPackagesForceStopped([]string{"com.example.other"}, true))
	assert.True(t, h.broker.OnPackagesForceStopped([]string{"com.example.reader"}, false))
	assert.False(t, clients[0].Released())

	assert.True(t, h.broker.OnPackagesForceStopped([]string{"com.example.reader"}, true))
	assert.Eventually(t, clients[0].Released, waitFor, tick)
}

func TestTemporaryEnable_OnlyWhileKeyguardLocked(t *testing.T) {
	svc := testService("com.example.reader")
	h := newHarness(t, []*a11y.ServiceInfo{svc})
	h.broker.Start()
	h.sync()

	require.NoError(t, h.broker.TemporaryEnableUntilKeyguardRemoved(systemCtx(), svc.Component, false))
	h.sync()
	assert.Nil(t, h.client(svc.Component))

	h.wm.mu.Lock()
	h.wm.keyguardLocked = true
	h.wm.mu.Unlock()
	require.NoError(t, h.broker.TemporaryEnableUntilKeyguardRemoved(systemCtx(), svc.Component, false))
	h.waitBound(svc.Component)

	_, err := h.settings.GetString(context.Background(), store.SettingEnabledServices, 0)
	assert.ErrorIs(t, err, store.ErrNotFound, "temporary enable is not persisted")

	err = h.broker.TemporaryEnableUntilKeyguardRemoved(appCtx(0), svc.Component, false)
	assert.Error(t, err)
}
