// ABOUTME: Broker-facing adapters for windows and services connected over gRPC streams
// ABOUTME: Outbound calls are queued to the stream writer; stream end fires death callbacks

package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/2389/a11y-gateway/internal/a11y"
	"github.com/2389/a11y-gateway/internal/rpc"
)

var (
	errPeerGone   = errors.New("peer stream closed")
	errOutboxFull = errors.New("peer outbox full")
)

// outboxSize bounds how many commands may wait for a slow peer.
const outboxSize = 64

// outbox queues messages for the single goroutine allowed to write a stream.
type outbox[T any] struct {
	ch   chan *T
	done chan struct{}
	once sync.Once
}

func newOutbox[T any]() *outbox[T] {
	return &outbox[T]{
		ch:   make(chan *T, outboxSize),
		done: make(chan struct{}),
	}
}

// send queues msg without blocking.
func (o *outbox[T]) send(msg *T) error {
	select {
	case <-o.done:
		return errPeerGone
	default:
	}
	select {
	case o.ch <- msg:
		return nil
	default:
		return errOutboxFull
	}
}

func (o *outbox[T]) close() {
	o.once.Do(func() { close(o.done) })
}

// drain writes queued messages until ctx ends, the outbox closes or a write
// fails.
func (o *outbox[T]) drain(ctx context.Context, write func(*T) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-o.done:
			return nil
		case msg := <-o.ch:
			if err := write(msg); err != nil {
				o.close()
				return err
			}
		}
	}
}

// lifeline implements a11y.Peer for a stream. Callbacks run once, when die
// is called; linking after that runs the callback immediately.
type lifeline struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]func()
	dead   bool
}

func (l *lifeline) LinkToDeath(onDeath func()) func() {
	l.mu.Lock()
	if l.dead {
		l.mu.Unlock()
		onDeath()
		return func() {}
	}
	if l.fns == nil {
		l.fns = make(map[int]func())
	}
	l.nextID++
	id := l.nextID
	l.fns[id] = onDeath
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.fns, id)
	}
}

func (l *lifeline) die() {
	l.mu.Lock()
	if l.dead {
		l.mu.Unlock()
		return
	}
	l.dead = true
	fns := l.fns
	l.fns = nil
	l.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// remoteWindow is the interaction connection of a window on a WindowStream.
// Queries get a stream-local request id; answers are matched back to the
// broker's callback by that id.
type remoteWindow struct {
	lifeline
	out    *outbox[rpc.WindowCommand]
	logger *slog.Logger

	mu      sync.Mutex
	nextReq int64
	pending map[int64]a11y.InteractionCallback
}

var _ a11y.InteractionConnection = (*remoteWindow)(nil)

func newRemoteWindow(logger *slog.Logger) *remoteWindow {
	return &remoteWindow{
		out:     newOutbox[rpc.WindowCommand](),
		logger:  logger,
		pending: make(map[int64]a11y.InteractionCallback),
	}
}

func (w *remoteWindow) query(kind string, q a11y.NodeQuery, cb a11y.InteractionCallback) error {
	w.mu.Lock()
	w.nextReq++
	id := w.nextReq
	w.pending[id] = cb
	w.mu.Unlock()

	err := w.out.send(&rpc.WindowCommand{Query: &rpc.WindowQuery{
		RequestID: id,
		Kind:      kind,
		Query:     rpc.FromNodeQuery(q),
	}})
	if err != nil {
		w.take(id)
	}
	return err
}

func (w *remoteWindow) take(id int64) (a11y.InteractionCallback, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	cb, ok := w.pending[id]
	delete(w.pending, id)
	return cb, ok
}

func (w *remoteWindow) FindByAccessibilityID(_ context.Context, q a11y.NodeQuery, cb a11y.InteractionCallback) error {
	return w.query(rpc.QueryFindByAccessibilityID, q, cb)
}

func (w *remoteWindow) FindByViewID(_ context.Context, q a11y.NodeQuery, cb a11y.InteractionCallback) error {
	return w.query(rpc.QueryFindByViewID, q, cb)
}

func (w *remoteWindow) FindByText(_ context.Context, q a11y.NodeQuery, cb a11y.InteractionCallback) error {
	return w.query(rpc.QueryFindByText, q, cb)
}

func (w *remoteWindow) FindFocus(_ context.Context, q a11y.NodeQuery, cb a11y.InteractionCallback) error {
	return w.query(rpc.QueryFindFocus, q, cb)
}

func (w *remoteWindow) FocusSearch(_ context.Context, q a11y.NodeQuery, cb a11y.InteractionCallback) error {
	return w.query(rpc.QueryFocusSearch, q, cb)
}

func (w *remoteWindow) PerformAction(_ context.Context, q a11y.NodeQuery, cb a11y.InteractionCallback) error {
	return w.query(rpc.QueryPerformAction, q, cb)
}

func (w *remoteWindow) handleNodeResults(res *rpc.NodeResults) {
	cb, ok := w.take(res.RequestID)
	if !ok {
		w.logger.Warn("received results for unknown request", "request_id", res.RequestID)
		return
	}
	cb.SetNodeResults(res.InteractionID, rpc.ToNodes(res.Nodes))
}

func (w *remoteWindow) handleActionResult(res *rpc.ActionResult) {
	cb, ok := w.take(res.RequestID)
	if !ok {
		w.logger.Warn("received action result for unknown request", "request_id", res.RequestID)
		return
	}
	cb.SetActionResult(res.InteractionID, res.Succeeded)
}

// remoteService is the reverse channel to a service on a ServiceStream.
// The latest handshake wins when several users bind the same stream.
type remoteService struct {
	lifeline
	component a11y.ComponentName
	userID    int
	out       *outbox[rpc.ServiceCommand]
	logger    *slog.Logger

	mu     sync.Mutex
	handle a11y.ServiceHandle
	connID int
}

var _ a11y.ServiceClient = (*remoteService)(nil)

func newRemoteService(component a11y.ComponentName, userID int, logger *slog.Logger) *remoteService {
	return &remoteService{
		component: component,
		userID:    userID,
		out:       newOutbox[rpc.ServiceCommand](),
		logger:    logger,
	}
}

// factory serves bind requests for the announced user only, or for every
// user when the service announced a11y.UserAll.
func (r *remoteService) factory(userID int) a11y.ServiceClient {
	if r.userID != a11y.UserAll && r.userID != userID {
		return nil
	}
	return r
}

func (r *remoteService) current() a11y.ServiceHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle
}

// push queues a command the broker does not wait on.
func (r *remoteService) push(cmd *rpc.ServiceCommand) {
	if err := r.out.send(cmd); err != nil {
		r.logger.Debug("dropping command", "error", err)
	}
}

func (r *remoteService) SetConnection(h a11y.ServiceHandle, connectionID int) error {
	r.mu.Lock()
	if h == nil {
		if r.connID == connectionID {
			r.handle = nil
		}
		r.mu.Unlock()
		return r.out.send(&rpc.ServiceCommand{Released: &rpc.Released{ConnectionID: connectionID}})
	}
	r.handle = h
	r.connID = connectionID
	r.mu.Unlock()
	return r.out.send(&rpc.ServiceCommand{Connected: &rpc.Connected{ConnectionID: connectionID}})
}

func (r *remoteService) OnAccessibilityEvent(ev *a11y.Event) error {
	return r.out.send(&rpc.ServiceCommand{Event: rpc.FromEvent(ev)})
}

func (r *remoteService) OnInterrupt() error {
	return r.out.send(&rpc.ServiceCommand{Interrupt: &rpc.Interrupt{}})
}

func (r *remoteService) OnKeyEvent(ev a11y.KeyEvent, sequence int) error {
	return r.out.send(&rpc.ServiceCommand{KeyEvent: &rpc.KeyEventOffer{
		Event:    rpc.FromKeyEvent(ev),
		Sequence: sequence,
	}})
}

func (r *remoteService) OnGesture(gestureID int) error {
	return r.out.send(&rpc.ServiceCommand{Gesture: &rpc.Gesture{GestureID: gestureID}})
}

func (r *remoteService) ClearNodeCache() error {
	return r.out.send(&rpc.ServiceCommand{ClearCache: &rpc.ClearCache{}})
}

// serviceCallback relays a window's answer to the service that asked.
type serviceCallback struct {
	svc       *remoteService
	requestID int64
}

func (c serviceCallback) SetNodeResults(interactionID int, nodes []a11y.Node) {
	c.svc.push(&rpc.ServiceCommand{NodeResults: &rpc.NodeResults{
		RequestID:     c.requestID,
		InteractionID: interactionID,
		Nodes:         rpc.FromNodes(nodes),
	}})
}

func (c serviceCallback) SetActionResult(interactionID int, succeeded bool) {
	c.svc.push(&rpc.ServiceCommand{ActionResult: &rpc.ActionResult{
		RequestID:     c.requestID,
		InteractionID: interactionID,
		Succeeded:     succeeded,
	}})
}
