// ABOUTME: Key event offer/acknowledge protocol for one key-filtering service
// ABOUTME: Each offered event resolves exactly once by ack, timeout or flush

package keys

import (
	"log/slog"
	"sync"
	"time"

	"github.com/2389/a11y-gateway/internal/a11y"
	"github.com/2389/a11y-gateway/internal/worker"
)

// DefaultTimeout is how long a service has to acknowledge a key event.
const DefaultTimeout = 500 * time.Millisecond

// Injector re-injects unhandled key events into the input pipeline.
type Injector func(ev a11y.KeyEvent, policyFlags uint32)

// Target returns the listener to offer events to, or nil when the service is
// not connected. It is called with the shared lock held.
type Target func() a11y.InputListener

// Config configures a Dispatcher.
type Config struct {
	// Lock is the broker mutex. Dispatch and Acknowledge take it;
	// FlushLocked expects it held.
	Lock    sync.Locker
	Queue   *worker.Queue
	Target  Target
	Inject  Injector
	Timeout time.Duration
	Logger  *slog.Logger
}

type pendingEvent struct {
	event       a11y.KeyEvent
	policyFlags uint32
	sequence    int
	handled     bool
	timer       worker.Handle
	next        *pendingEvent
}

// Dispatcher tracks key events offered to one service.
type Dispatcher struct {
	mu      sync.Locker
	queue   *worker.Queue
	target  Target
	inject  Injector
	timeout time.Duration
	logger  *slog.Logger

	// Newest first.
	pending      *pendingEvent
	nextSequence int
}

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		mu:      cfg.Lock,
		queue:   cfg.Queue,
		target:  cfg.Target,
		inject:  cfg.Inject,
		timeout: timeout,
		logger:  logger.With("component", "key-dispatcher"),
	}
}

// Dispatch offers ev to the target. The event is resolved later through
// Acknowledge, the timeout, or FlushLocked. It returns the assigned sequence.
func (d *Dispatcher) Dispatch(ev a11y.KeyEvent, policyFlags uint32) int {
	d.mu.Lock()
	p := &pendingEvent{
		event:       ev,
		policyFlags: policyFlags,
		sequence:    d.nextSequence,
		next:        d.pending,
	}
	d.nextSequence++
	d.pending = p
	seq := p.sequence
	p.timer = d.queue.PostDelayed(d.timeout, func() {
		d.logger.Debug("key event timed out", "sequence", seq)
		d.Acknowledge(false, seq)
	})
	listener := d.target()
	d.mu.Unlock()

	if listener == nil {
		d.Acknowledge(false, seq)
		return seq
	}
	if err := listener.OnKeyEvent(ev, seq); err != nil {
		d.logger.Warn("key event delivery failed", "sequence", seq, "error", err)
		d.Acknowledge(false, seq)
	}
	return seq
}

// Acknowledge resolves the event with the given sequence. Unknown or already
// resolved sequences are ignored and report false.
func (d *Dispatcher) Acknowledge(handled bool, sequence int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	p := d.removeLocked(sequence)
	if p == nil {
		return false
	}
	d.queue.Cancel(p.timer)
	p.handled = handled
	d.finishLocked(p)
	return true
}

// FlushLocked resolves every pending event as unhandled. The caller holds the
// shared lock.
func (d *Dispatcher) FlushLocked() {
	for d.pending != nil {
		p := d.pending
		d.pending = p.next
		p.next = nil
		d.queue.Cancel(p.timer)
		p.handled = false
		d.finishLocked(p)
	}
}

// PendingLocked returns the number of unresolved events.
func (d *Dispatcher) PendingLocked() int {
	n := 0
	for p := d.pending; p != nil; p = p.next {
		n++
	}
	return n
}

func (d *Dispatcher) removeLocked(sequence int) *pendingEvent {
	var prev *pendingEvent
	for p := d.pending; p != nil; p = p.next {
		if p.sequence == sequence {
			if prev == nil {
				d.pending = p.next
			} else {
				prev.next = p.next
			}
			p.next = nil
			return p
		}
		prev = p
	}
	return nil
}

// finishLocked hands unhandled events back to the input pipeline on the
// worker, never under the lock.
func (d *Dispatcher) finishLocked(p *pendingEvent) {
	if p.handled {
		return
	}
	ev, flags := p.event, p.policyFlags|a11y.PolicyFlagPassToUser
	d.queue.Post(func() { d.inject(ev, flags) })
}
