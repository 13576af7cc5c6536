// ABOUTME: Tests for service handle queries, window registration and service listings
// ABOUTME: Covers capability gating, active window resolution and cross-user visibility

package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/2389/a11y-gateway/internal/a11y"
)

func TestQuery_ActiveWindowOnly(t *testing.T) {
	reader := testService("com.example.reader")
	reader.Flags = a11y.FlagReportViewIDs
	h, clients := startWith(t, reader)
	windowID, conn := h.addWindow("w1")
	handle := clients[0].Handle()

	ok, err := handle.FindByText(systemCtx(), a11y.ActiveWindowID, a11y.NodeQuery{Text: "OK"}, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = handle.FindByViewID(systemCtx(), windowID, a11y.NodeQuery{ViewID: "button"}, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = handle.FindFocus(systemCtx(), windowID+1, a11y.NodeQuery{}, nil)
	require.NoError(t, err)
	assert.False(t, ok, "only the active window may be queried")

	queries := conn.Queries()
	require.Len(t, queries, 2)
	assert.Equal(t, "OK", queries[0].Text)
	assert.NotZero(t, queries[0].FetchFlags&a11y.FetchReportViewIDs)
	for _, q := range queries {
		assert.Equal(t, h.service(reader.Component).ID(), q.ConnectionID)
	}
}

func TestQuery_WithoutCapabilityFails(t *testing.T) {
	blind := testService("com.example.blind")
	blind.Capabilities = 0
	h, clients := startWith(t, blind)
	h.addWindow("w1")

	_, err := clients[0].Handle().FindByAccessibilityID(systemCtx(), a11y.ActiveWindowID, a11y.NodeQuery{}, nil)
	require.Error(t, err)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestQuery_RequiresCaller(t *testing.T) {
	_, clients := startWith(t, testService("com.example.reader"))
	_, err := clients[0].Handle().FocusSearch(context.Background(), a11y.ActiveWindowID, a11y.NodeQuery{}, nil)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestPerformAction_ValidatesAction(t *testing.T) {
	h, clients := startWith(t, testService("com.example.reader"))
	_, conn := h.addWindow("w1")
	handle := clients[0].Handle()

	ok, err := handle.PerformAction(systemCtx(), a11y.ActiveWindowID, a11y.NodeQuery{Action: a11y.ActionClick}, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = handle.PerformAction(systemCtx(), a11y.ActiveWindowID, a11y.NodeQuery{Action: a11y.ActionClick | a11y.ActionFocus}, nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, conn.Queries(), 1)
}

func TestPerformGlobalAction(t *testing.T) {
	h, clients := startWith(t, testService("com.example.reader"))

	ok, err := clients[0].Handle().PerformGlobalAction(systemCtx(), a11y.GlobalActionHome)
	require.NoError(t, err)
	assert.True(t, ok)

	h.wm.mu.Lock()
	defer h.wm.mu.Unlock()
	assert.Equal(t, []a11y.GlobalAction{a11y.GlobalActionHome}, h.wm.globalActions)
}

func TestSetServiceInfo_UpdatesDispatch(t *testing.T) {
	h, clients := startWith(t, testService("com.example.reader"))
	handle := clients[0].Handle()

	info := handle.ServiceInfo()
	info.EventTypes = a11y.EventViewClicked
	info.Capabilities = a11y.CapabilityRequestFilterKeyEvents
	handle.SetServiceInfo(info)

	got := handle.ServiceInfo()
	assert.Equal(t, a11y.EventViewClicked, got.EventTypes)
	assert.Equal(t, a11y.CapabilityRetrieveWindowContent, got.Capabilities, "capabilities are not writable")

	require.NoError(t, h.broker.SendAccessibilityEvent(systemCtx(), notification("n"), a11y.UserCurrent))
	assert.Never(t, func() bool {
		return len(eventsOfType(clients[0], a11y.EventNotificationStateChanged)) > 0
	}, 100*time.Millisecond, 10*time.Millisecond)
}

func TestInteractionConnection_DeathRemovesWindow(t *testing.T) {
	h := newHarness(t, nil)
	h.broker.Start()

	conn := &fakeConn{}
	id, err := h.broker.AddInteractionConnection(systemCtx(), "w1", conn, a11y.UserCurrent)
	require.NoError(t, err)
	assert.Equal(t, []int{id}, h.snapshot().Windows)

	conn.Kill()
	assert.Eventually(t, func() bool { return len(h.snapshot().Windows) == 0 }, waitFor, tick)
	assert.False(t, conn.linked())
}

func TestInteractionConnection_RemoveByToken(t *testing.T) {
	h := newHarness(t, nil)
	h.broker.Start()

	conn := &fakeConn{}
	_, err := h.broker.AddInteractionConnection(appCtx(0), "w1", conn, 0)
	require.NoError(t, err)
	require.NoError(t, h.broker.RemoveInteractionConnection(appCtx(0), "w1"))
	assert.Empty(t, h.snapshot().Windows)
	assert.False(t, conn.linked())
}

func TestInteractionConnection_CrossUserVisibility(t *testing.T) {
	h := newHarness(t, nil)
	h.broker.Start()

	globalID, err := h.broker.AddInteractionConnection(systemCtx(), "system-ui", &fakeConn{}, a11y.UserCurrent)
	require.NoError(t, err)
	userID, err := h.broker.AddInteractionConnection(appCtx(0), "app", &fakeConn{}, 0)
	require.NoError(t, err)
	assert.NotEqual(t, globalID, userID)
	assert.ElementsMatch(t, []int{globalID, userID}, h.snapshot().Windows)

	h.broker.SwitchUser(1)
	assert.Equal(t, []int{globalID}, h.snapshot().Windows)

	h.broker.SwitchUser(0)
	assert.ElementsMatch(t, []int{globalID, userID}, h.snapshot().Windows)
}

func TestActiveWindowBounds(t *testing.T) {
	h := newHarness(t, nil)
	h.broker.Start()

	_, ok, err := h.broker.ActiveWindowBounds(systemCtx())
	require.NoError(t, err)
	assert.False(t, ok)

	frame := a11y.Rect{Left: 0, Top: 0, Right: 100, Bottom: 200}
	h.wm.mu.Lock()
	h.wm.frames["w1"] = frame
	h.wm.mu.Unlock()
	h.addWindow("w1")

	got, ok, err := h.broker.ActiveWindowBounds(systemCtx())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, frame, got)
}

func TestEnabledServices_ByFeedback(t *testing.T) {
	spoken := testService("com.example.spoken")
	haptic := testService("com.example.haptic")
	haptic.FeedbackType = a11y.FeedbackHaptic
	both := testService("com.example.both")
	both.FeedbackType = a11y.FeedbackSpoken | a11y.FeedbackHaptic
	h, _ := startWith(t, spoken, haptic, both)

	list, err := h.broker.EnabledServices(systemCtx(), a11y.FeedbackHaptic, a11y.UserCurrent)
	require.NoError(t, err)
	var ids []string
	for _, info := range list {
		ids = append(ids, info.ID())
	}
	assert.ElementsMatch(t, []string{haptic.ID(), both.ID()}, ids)

	list, err = h.broker.EnabledServices(systemCtx(), a11y.FeedbackAllMask, a11y.UserCurrent)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}
