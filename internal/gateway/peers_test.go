// ABOUTME: Tests for the stream outbox, death notification and remote peer adapters
// ABOUTME: Exercises them directly without a gRPC transport

package gateway

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/a11y-gateway/internal/a11y"
	"github.com/2389/a11y-gateway/internal/rpc"
)

func TestOutbox_FullAndClosed(t *testing.T) {
	out := newOutbox[rpc.Empty]()
	for i := 0; i < outboxSize; i++ {
		require.NoError(t, out.send(&rpc.Empty{}))
	}
	assert.ErrorIs(t, out.send(&rpc.Empty{}), errOutboxFull)

	out.close()
	out.close()
	assert.ErrorIs(t, out.send(&rpc.Empty{}), errPeerGone)
}

func TestOutbox_DrainStopsOnWriteError(t *testing.T) {
	out := newOutbox[rpc.Empty]()
	require.NoError(t, out.send(&rpc.Empty{}))

	boom := errors.New("broken pipe")
	err := out.drain(context.Background(), func(*rpc.Empty) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, out.send(&rpc.Empty{}), errPeerGone)
}

func TestStartWriter_StopsOnClose(t *testing.T) {
	out := newOutbox[rpc.Empty]()
	var written atomic.Int32
	stop := startWriter(context.Background(), out, func(*rpc.Empty) error {
		written.Add(1)
		return nil
	})

	require.NoError(t, out.send(&rpc.Empty{}))
	assert.Eventually(t, func() bool { return written.Load() == 1 }, time.Second, 5*time.Millisecond)

	stop()
	assert.ErrorIs(t, out.send(&rpc.Empty{}), errPeerGone)
}

func TestLifeline(t *testing.T) {
	var l lifeline
	var first, second, late atomic.Int32

	l.LinkToDeath(func() { first.Add(1) })
	unlink := l.LinkToDeath(func() { second.Add(1) })
	unlink()

	l.die()
	l.die()
	assert.Equal(t, int32(1), first.Load())
	assert.Equal(t, int32(0), second.Load(), "unlinked callbacks never run")

	l.LinkToDeath(func() { late.Add(1) })
	assert.Equal(t, int32(1), late.Load(), "linking a dead peer reports death at once")
}

type recordedResults struct {
	interactionID int
	nodes         []a11y.Node
	succeeded     bool
	calls         int
}

func (r *recordedResults) SetNodeResults(interactionID int, nodes []a11y.Node) {
	r.interactionID, r.nodes = interactionID, nodes
	r.calls++
}

func (r *recordedResults) SetActionResult(interactionID int, succeeded bool) {
	r.interactionID, r.succeeded = interactionID, succeeded
	r.calls++
}

func TestRemoteWindow_MatchesAnswersByRequest(t *testing.T) {
	w := newRemoteWindow(testLogger())
	cb := &recordedResults{}

	require.NoError(t, w.PerformAction(context.Background(), a11y.NodeQuery{NodeID: 5, Action: a11y.ActionClick, InteractionID: 9}, cb))
	cmd := <-w.out.ch
	require.NotNil(t, cmd.Query)
	assert.Equal(t, rpc.QueryPerformAction, cmd.Query.Kind)
	assert.Equal(t, int(a11y.ActionClick), cmd.Query.Query.Action)

	w.handleActionResult(&rpc.ActionResult{RequestID: cmd.Query.RequestID + 1, Succeeded: true})
	assert.Equal(t, 0, cb.calls, "unknown request ids are ignored")

	w.handleActionResult(&rpc.ActionResult{RequestID: cmd.Query.RequestID, InteractionID: 9, Succeeded: true})
	assert.Equal(t, 1, cb.calls)
	assert.Equal(t, 9, cb.interactionID)
	assert.True(t, cb.succeeded)

	w.handleActionResult(&rpc.ActionResult{RequestID: cmd.Query.RequestID, InteractionID: 9})
	assert.Equal(t, 1, cb.calls, "each request is answered once")
}

func TestRemoteWindow_ClosedOutboxForgetsRequest(t *testing.T) {
	w := newRemoteWindow(testLogger())
	w.out.close()

	err := w.FindFocus(context.Background(), a11y.NodeQuery{}, &recordedResults{})
	assert.ErrorIs(t, err, errPeerGone)
	assert.Empty(t, w.pending)
}

func TestRemoteService_FactoryAndHandshake(t *testing.T) {
	svc := newRemoteService(readerComponent, 2, testLogger())
	assert.Nil(t, svc.factory(3))
	assert.Same(t, svc, svc.factory(2))

	everyone := newRemoteService(readerComponent, a11y.UserAll, testLogger())
	assert.Same(t, everyone, everyone.factory(7))

	handle := &stubHandle{}
	require.NoError(t, svc.SetConnection(handle, 4))
	assert.Equal(t, 4, (<-svc.out.ch).Connected.ConnectionID)
	assert.Same(t, handle, svc.current())

	// A release for an older connection keeps the current handle.
	require.NoError(t, svc.SetConnection(nil, 3))
	assert.Equal(t, 3, (<-svc.out.ch).Released.ConnectionID)
	assert.Same(t, handle, svc.current())

	require.NoError(t, svc.SetConnection(nil, 4))
	<-svc.out.ch
	assert.Nil(t, svc.current())

	require.NoError(t, svc.OnKeyEvent(a11y.KeyEvent{KeyCode: 24}, 12))
	offer := (<-svc.out.ch).KeyEvent
	require.NotNil(t, offer)
	assert.Equal(t, 24, offer.Event.KeyCode)
	assert.Equal(t, 12, offer.Sequence)
}

// stubHandle stands in for the broker handle; only its identity matters.
type stubHandle struct {
	a11y.ServiceHandle
}
