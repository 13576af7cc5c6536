// ABOUTME: Test doubles and harness for broker tests
// ABOUTME: Fake service clients, window manager, input filter, prompter and windows

package broker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389/a11y-gateway/internal/a11y"
	"github.com/2389/a11y-gateway/internal/auth"
	"github.com/2389/a11y-gateway/internal/inventory"
	"github.com/2389/a11y-gateway/internal/loopback"
	"github.com/2389/a11y-gateway/internal/store"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func systemCtx() context.Context {
	return auth.WithCaller(context.Background(), auth.System())
}

func appCtx(userID int) context.Context {
	return auth.WithCaller(context.Background(), &auth.Caller{UID: 10000 + userID, UserID: userID})
}

// peer is an embeddable death-notification double.
type peer struct {
	deathMu sync.Mutex
	onDeath func()
}

func (p *peer) LinkToDeath(fn func()) func() {
	p.deathMu.Lock()
	defer p.deathMu.Unlock()
	p.onDeath = fn
	return func() {
		p.deathMu.Lock()
		defer p.deathMu.Unlock()
		p.onDeath = nil
	}
}

// Kill simulates the peer going away.
func (p *peer) Kill() {
	p.deathMu.Lock()
	fn := p.onDeath
	p.deathMu.Unlock()
	if fn != nil {
		fn()
	}
}

func (p *peer) linked() bool {
	p.deathMu.Lock()
	defer p.deathMu.Unlock()
	return p.onDeath != nil
}

type keyCall struct {
	ev  a11y.KeyEvent
	seq int
}

type fakeClient struct {
	peer

	mu          sync.Mutex
	handle      a11y.ServiceHandle
	connID      int
	released    bool
	events      []*a11y.Event
	keys        []keyCall
	gestures    []int
	interrupts  int
	cacheClears int

	// onKey, when set, answers key events synchronously.
	onKey func(h a11y.ServiceHandle, seq int)
}

func (c *fakeClient) SetConnection(h a11y.ServiceHandle, id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h == nil {
		c.released = true
		return nil
	}
	c.handle = h
	c.connID = id
	return nil
}

func (c *fakeClient) OnAccessibilityEvent(ev *a11y.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *fakeClient) OnInterrupt() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interrupts++
	return nil
}

func (c *fakeClient) OnKeyEvent(ev a11y.KeyEvent, seq int) error {
	c.mu.Lock()
	c.keys = append(c.keys, keyCall{ev: ev, seq: seq})
	onKey, h := c.onKey, c.handle
	c.mu.Unlock()
	if onKey != nil && h != nil {
		onKey(h, seq)
	}
	return nil
}

func (c *fakeClient) OnGesture(id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gestures = append(c.gestures, id)
	return nil
}

func (c *fakeClient) ClearNodeCache() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheClears++
	return nil
}

func (c *fakeClient) Handle() a11y.ServiceHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

func (c *fakeClient) Released() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

func (c *fakeClient) Events() []*a11y.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*a11y.Event(nil), c.events...)
}

func (c *fakeClient) Keys() []keyCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]keyCall(nil), c.keys...)
}

func (c *fakeClient) Gestures() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.gestures...)
}

type fakeWindowManager struct {
	mu               sync.Mutex
	focused          a11y.WindowToken
	frames           map[a11y.WindowToken]a11y.Rect
	keyguardLocked   bool
	touchExploration []bool
	inputFilter      []bool
	globalActions    []a11y.GlobalAction
}

func (w *fakeWindowManager) FocusedWindow() (a11y.WindowToken, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.focused, w.focused != ""
}

func (w *fakeWindowManager) WindowFrame(token a11y.WindowToken) (a11y.Rect, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.frames[token]
	return r, ok
}

func (w *fakeWindowManager) MagnificationSpec(a11y.WindowToken) a11y.MagnificationSpec {
	return a11y.MagnificationSpec{}
}

func (w *fakeWindowManager) IsKeyguardLocked() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.keyguardLocked
}

func (w *fakeWindowManager) SetTouchExplorationEnabled(enabled bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touchExploration = append(w.touchExploration, enabled)
}

func (w *fakeWindowManager) SetInputFilterEnabled(enabled bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inputFilter = append(w.inputFilter, enabled)
}

func (w *fakeWindowManager) PerformGlobalAction(action a11y.GlobalAction) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.globalActions = append(w.globalActions, action)
	return true
}

func (w *fakeWindowManager) setFocused(token a11y.WindowToken) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.focused = token
}

func (w *fakeWindowManager) lastTouchExploration() (bool, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.touchExploration) == 0 {
		return false, false
	}
	return w.touchExploration[len(w.touchExploration)-1], true
}

type injectCall struct {
	ev    a11y.KeyEvent
	flags uint32
}

type fakeInput struct {
	mu       sync.Mutex
	features []a11y.InputFeature
	injected []injectCall
	events   []*a11y.Event
}

func (f *fakeInput) SetFeatures(features a11y.InputFeature) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.features = append(f.features, features)
}

func (f *fakeInput) InjectKeyEvent(ev a11y.KeyEvent, flags uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.injected = append(f.injected, injectCall{ev: ev, flags: flags})
}

func (f *fakeInput) NotifyAccessibilityEvent(ev *a11y.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeInput) Injected() []injectCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]injectCall(nil), f.injected...)
}

func (f *fakeInput) lastFeatures() a11y.InputFeature {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.features) == 0 {
		return 0
	}
	return f.features[len(f.features)-1]
}

type fakePrompter struct {
	mu       sync.Mutex
	requests []a11y.PromptRequest
	respond  []func(bool)
}

func (p *fakePrompter) PromptTouchExploration(req a11y.PromptRequest, respond func(bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	p.respond = append(p.respond, respond)
}

func (p *fakePrompter) Requests() []a11y.PromptRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]a11y.PromptRequest(nil), p.requests...)
}

func (p *fakePrompter) answer(i int, accepted bool) {
	p.mu.Lock()
	fn := p.respond[i]
	p.mu.Unlock()
	fn(accepted)
}

type fakeConn struct {
	peer

	mu      sync.Mutex
	queries []a11y.NodeQuery
}

func (c *fakeConn) record(q a11y.NodeQuery) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, q)
	return nil
}

func (c *fakeConn) FindByAccessibilityID(_ context.Context, q a11y.NodeQuery, _ a11y.InteractionCallback) error {
	return c.record(q)
}

func (c *fakeConn) FindByViewID(_ context.Context, q a11y.NodeQuery, _ a11y.InteractionCallback) error {
	return c.record(q)
}

func (c *fakeConn) FindByText(_ context.Context, q a11y.NodeQuery, _ a11y.InteractionCallback) error {
	return c.record(q)
}

func (c *fakeConn) FindFocus(_ context.Context, q a11y.NodeQuery, _ a11y.InteractionCallback) error {
	return c.record(q)
}

func (c *fakeConn) FocusSearch(_ context.Context, q a11y.NodeQuery, _ a11y.InteractionCallback) error {
	return c.record(q)
}

func (c *fakeConn) PerformAction(_ context.Context, q a11y.NodeQuery, _ a11y.InteractionCallback) error {
	return c.record(q)
}

func (c *fakeConn) Queries() []a11y.NodeQuery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]a11y.NodeQuery(nil), c.queries...)
}

type fakeStateClient struct {
	mu     sync.Mutex
	states []a11y.ClientState
}

func (c *fakeStateClient) SetState(state a11y.ClientState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states = append(c.states, state)
	return nil
}

func (c *fakeStateClient) last() (a11y.ClientState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.states) == 0 {
		return 0, false
	}
	return c.states[len(c.states)-1], true
}

func testService(pkg string) *a11y.ServiceInfo {
	return &a11y.ServiceInfo{
		Component:     a11y.ComponentName{Package: pkg, Class: pkg + ".Service"},
		Label:         pkg,
		Permission:    a11y.BindServicePermission,
		TargetVersion: 18,
		Capabilities:  a11y.CapabilityRetrieveWindowContent,
		EventTypes:    a11y.EventTypesAll,
		FeedbackType:  a11y.FeedbackSpoken,
	}
}

type harness struct {
	t         *testing.T
	broker    *Broker
	settings  *store.MockStore
	inventory *inventory.Static
	connector *loopback.Connector
	wm        *fakeWindowManager
	input     *fakeInput
	prompter  *fakePrompter

	mu      sync.Mutex
	clients map[a11y.ComponentName][]*fakeClient
}

type harnessOption func(*Config)

func withKeyTimeout(d time.Duration) harnessOption {
	return func(c *Config) { c.KeyEventTimeout = d }
}

func newHarness(t *testing.T, infos []*a11y.ServiceInfo, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		settings:  store.NewMockStore(),
		inventory: inventory.NewStatic(infos...),
		connector: loopback.New(testLogger()),
		wm:        &fakeWindowManager{frames: make(map[a11y.WindowToken]a11y.Rect)},
		input:     &fakeInput{},
		prompter:  &fakePrompter{},
		clients:   make(map[a11y.ComponentName][]*fakeClient),
	}
	for _, info := range infos {
		h.registerFactory(info.Component)
	}

	cfg := Config{
		Settings:        h.settings,
		Inventory:       h.inventory,
		Connector:       h.connector,
		Windows:         h.wm,
		Input:           h.input,
		Prompter:        h.prompter,
		KeyEventTimeout: time.Second,
		Logger:          testLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	b, err := New(cfg)
	require.NoError(t, err)
	h.broker = b
	t.Cleanup(func() { _ = b.Close() })
	return h
}

func (h *harness) registerFactory(c a11y.ComponentName) {
	h.connector.Register(c, func(int) a11y.ServiceClient {
		client := &fakeClient{}
		h.mu.Lock()
		h.clients[c] = append(h.clients[c], client)
		h.mu.Unlock()
		return client
	})
}

// enable persists the enabled set and turns accessibility on for userID.
func (h *harness) enable(userID int, components ...a11y.ComponentName) {
	h.t.Helper()
	set := make(a11y.ComponentSet)
	for _, c := range components {
		set.Add(c)
	}
	ctx := context.Background()
	require.NoError(h.t, h.settings.PutString(ctx, store.SettingEnabledServices, set.String(), userID))
	require.NoError(h.t, store.PutBool(ctx, h.settings, store.SettingAccessibilityEnabled, true, userID))
}

// client returns the newest client built for c, or nil.
func (h *harness) client(c a11y.ComponentName) *fakeClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.clients[c]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

func (h *harness) clientCount(c a11y.ComponentName) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[c])
}

// waitBound waits until c completed its handshake and returns its client.
func (h *harness) waitBound(c a11y.ComponentName) *fakeClient {
	h.t.Helper()
	var client *fakeClient
	require.Eventually(h.t, func() bool {
		client = h.client(c)
		return client != nil && client.Handle() != nil && !client.Released()
	}, waitFor, tick, "service %s never bound", c)
	return client
}

func (h *harness) sync() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(h.t, h.broker.Sync(ctx))
}

// service returns the broker's record of c for the current user.
func (h *harness) service(c a11y.ComponentName) *Service {
	h.broker.mu.Lock()
	defer h.broker.mu.Unlock()
	return h.broker.currentUserLocked().services[c]
}

func (h *harness) snapshot() *Snapshot {
	h.t.Helper()
	snap, err := h.broker.Dump(systemCtx())
	require.NoError(h.t, err)
	return snap
}

func (h *harness) user(snap *Snapshot, userID int) UserSnapshot {
	h.t.Helper()
	for _, u := range snap.Users {
		if u.UserID == userID {
			return u
		}
	}
	h.t.Fatalf("user %d not in snapshot", userID)
	return UserSnapshot{}
}

// addWindow registers a window and makes it the focused, active window.
func (h *harness) addWindow(token a11y.WindowToken) (int, *fakeConn) {
	h.t.Helper()
	conn := &fakeConn{}
	id, err := h.broker.AddInteractionConnection(systemCtx(), token, conn, a11y.UserCurrent)
	require.NoError(h.t, err)
	h.wm.setFocused(token)
	require.NoError(h.t, h.broker.SendAccessibilityEvent(systemCtx(), &a11y.Event{
		Type:     a11y.EventWindowStateChanged,
		WindowID: id,
	}, a11y.UserCurrent))
	return id, conn
}
