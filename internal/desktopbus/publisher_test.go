// ABOUTME: Tests for the D-Bus state publisher
// ABOUTME: Uses a recording emitter in place of a live bus connection

package desktopbus

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/a11y-gateway/internal/a11y"
)

type emitted struct {
	path   dbus.ObjectPath
	name   string
	values []interface{}
}

type recordingEmitter struct {
	mu   sync.Mutex
	sent []emitted
	err  error
}

func (e *recordingEmitter) Emit(path dbus.ObjectPath, name string, values ...interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.sent = append(e.sent, emitted{path, name, values})
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSetState_EmitsSignal(t *testing.T) {
	em := &recordingEmitter{}
	p := New(em, testLogger())

	state := a11y.StateAccessibilityEnabled | a11y.StateTouchExplorationEnabled
	require.NoError(t, p.SetState(state))

	require.Len(t, em.sent, 1)
	assert.Equal(t, Path, em.sent[0].path)
	assert.Equal(t, "org.a11y.Gateway.StateChanged", em.sent[0].name)
	assert.Equal(t, []interface{}{int32(3)}, em.sent[0].values)
}

func TestGetters_ReflectLastState(t *testing.T) {
	p := New(&recordingEmitter{}, testLogger())

	got, dErr := p.GetState()
	assert.Nil(t, dErr)
	assert.Equal(t, int32(0), got)

	require.NoError(t, p.SetState(a11y.StateAccessibilityEnabled))

	got, _ = p.GetState()
	assert.Equal(t, int32(1), got)
	enabled, _ := p.IsAccessibilityEnabled()
	assert.True(t, enabled)
	touch, _ := p.IsTouchExplorationEnabled()
	assert.False(t, touch)
}

func TestSetState_EmitFailure(t *testing.T) {
	em := &recordingEmitter{err: errors.New("bus gone")}
	p := New(em, testLogger())

	err := p.SetState(a11y.StateAccessibilityEnabled)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bus gone")

	// The state is still recorded for pollers.
	got, _ := p.GetState()
	assert.Equal(t, int32(1), got)
}

func TestConnect_UnknownBus(t *testing.T) {
	_, err := Connect("starship", testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown bus")
}

func TestClose_WithoutConnection(t *testing.T) {
	p := New(&recordingEmitter{}, testLogger())
	assert.NoError(t, p.Close())
}
