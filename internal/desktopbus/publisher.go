// ABOUTME: D-Bus publisher that mirrors the aggregate accessibility state onto the desktop bus
// ABOUTME: Registers as a broker state client, emits StateChanged and answers state queries

package desktopbus

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/2389/a11y-gateway/internal/a11y"
)

// D-Bus names used by the publisher.
const (
	BusName            = "org.a11y.Gateway"
	Path               = dbus.ObjectPath("/org/a11y/Gateway")
	Interface          = "org.a11y.Gateway"
	SignalStateChanged = Interface + ".StateChanged"
)

// ErrNameTaken is returned when another process owns BusName.
var ErrNameTaken = errors.New("bus name already owned")

// emitter is the part of *dbus.Conn the publisher uses after setup.
type emitter interface {
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
}

// Publisher implements a11y.StateClient over D-Bus. Methods returning
// *dbus.Error are exported on the bus.
type Publisher struct {
	mu    sync.Mutex
	state a11y.ClientState

	conn   emitter
	close  func() error
	logger *slog.Logger
}

// New wraps an already connected bus. Pass nil logger for default.
func New(conn emitter, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger.With("component", "desktopbus"),
	}
}

// Connect opens the session or system bus, claims BusName and exports the
// publisher at Path.
func Connect(bus string, logger *slog.Logger) (*Publisher, error) {
	var conn *dbus.Conn
	var err error
	switch bus {
	case "", "session":
		conn, err = dbus.ConnectSessionBus()
	case "system":
		conn, err = dbus.ConnectSystemBus()
	default:
		return nil, fmt.Errorf("unknown bus %q", bus)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to %s bus: %w", bus, err)
	}

	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("requesting bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, ErrNameTaken
	}

	p := New(conn, logger)
	p.close = conn.Close
	if err := conn.Export(p, Path, Interface); err != nil {
		conn.Close()
		return nil, fmt.Errorf("exporting %s: %w", Path, err)
	}

	p.logger.Info("desktop bus connected", "bus", bus, "name", BusName)
	return p, nil
}

// SetState implements a11y.StateClient by emitting StateChanged.
func (p *Publisher) SetState(state a11y.ClientState) error {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()

	if err := p.conn.Emit(Path, SignalStateChanged, int32(state)); err != nil {
		return fmt.Errorf("emitting %s: %w", SignalStateChanged, err)
	}
	p.logger.Debug("state emitted", "state", int(state))
	return nil
}

// GetState returns the last published state bitmask.
func (p *Publisher) GetState() (int32, *dbus.Error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int32(p.state), nil
}

// IsAccessibilityEnabled reports the accessibility bit of the last state.
func (p *Publisher) IsAccessibilityEnabled() (bool, *dbus.Error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state&a11y.StateAccessibilityEnabled != 0, nil
}

// IsTouchExplorationEnabled reports the touch exploration bit of the last state.
func (p *Publisher) IsTouchExplorationEnabled() (bool, *dbus.Error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state&a11y.StateTouchExplorationEnabled != 0, nil
}

// Close releases the bus connection opened by Connect.
func (p *Publisher) Close() error {
	if p.close == nil {
		return nil
	}
	return p.close()
}
