// ABOUTME: Broker coordinates assistive services, application windows and clients
// ABOUTME: Owns the single lock, the worker queue, per-user state and user switching

package broker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/a11y-gateway/internal/a11y"
	"github.com/2389/a11y-gateway/internal/clients"
	"github.com/2389/a11y-gateway/internal/inventory"
	"github.com/2389/a11y-gateway/internal/keys"
	"github.com/2389/a11y-gateway/internal/policy"
	"github.com/2389/a11y-gateway/internal/registry"
	"github.com/2389/a11y-gateway/internal/store"
	"github.com/2389/a11y-gateway/internal/worker"
)

// ErrMissingDependency is returned by New when a required collaborator is nil.
var ErrMissingDependency = errors.New("missing broker dependency")

// ErrProtocolViolation is returned when a peer calls out of sequence.
var ErrProtocolViolation = errors.New("protocol violation")

// Config holds the collaborators and tunables of a Broker.
type Config struct {
	Settings  store.SettingsStore
	Inventory inventory.Inventory
	Connector a11y.Connector
	Windows   a11y.WindowManager
	Input     a11y.InputFilter

	// Prompter is optional; without one legacy services never get the
	// touch-exploration grant interactively.
	Prompter a11y.Prompter

	InitialUser     int
	KeyEventTimeout time.Duration
	Logger          *slog.Logger
}

// Broker is the accessibility coordinator. All mutable state is guarded by mu.
type Broker struct {
	mu sync.Mutex

	settings  store.SettingsStore
	inventory inventory.Inventory
	connector a11y.Connector
	windows   a11y.WindowManager
	input     a11y.InputFilter
	prompter  a11y.Prompter

	queue    *worker.Queue
	policy   *policy.Policy
	registry *registry.Registry
	clients  *clients.Broadcaster

	keyTimeout time.Duration
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	users          map[int]*userState
	currentUser    int
	initialized    bool
	nextServiceID  int
	hasInputFilter bool
	promptShowing  bool

	unsubscribe []func()
}

// New creates a Broker. Call Start to load the initial user.
func New(cfg Config) (*Broker, error) {
	switch {
	case cfg.Settings == nil:
		return nil, errors.Join(ErrMissingDependency, errors.New("settings store"))
	case cfg.Inventory == nil:
		return nil, errors.Join(ErrMissingDependency, errors.New("inventory"))
	case cfg.Connector == nil:
		return nil, errors.Join(ErrMissingDependency, errors.New("connector"))
	case cfg.Windows == nil:
		return nil, errors.Join(ErrMissingDependency, errors.New("window manager"))
	case cfg.Input == nil:
		return nil, errors.Join(ErrMissingDependency, errors.New("input filter"))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.KeyEventTimeout
	if timeout == 0 {
		timeout = keys.DefaultTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		settings:    cfg.Settings,
		inventory:   cfg.Inventory,
		connector:   cfg.Connector,
		windows:     cfg.Windows,
		input:       cfg.Input,
		prompter:    cfg.Prompter,
		queue:       worker.New(logger),
		policy:      policy.New(),
		registry:    registry.New(),
		clients:     clients.NewBroadcaster(logger),
		keyTimeout:  timeout,
		logger:      logger.With("component", "broker"),
		ctx:         ctx,
		cancel:      cancel,
		users:       make(map[int]*userState),
		currentUser: cfg.InitialUser,
	}, nil
}

// Start subscribes to settings and inventory changes and loads the initial
// user.
func (b *Broker) Start() {
	b.unsubscribe = append(b.unsubscribe,
		b.settings.Watch(func(c store.Change) {
			b.queue.Post(func() { b.onSettingChanged(c) })
		}),
		b.inventory.Subscribe(func(c inventory.Change) {
			b.queue.Post(func() { b.onInventoryChanged(c) })
		}),
	)

	b.mu.Lock()
	initial := b.currentUser
	b.mu.Unlock()
	b.SwitchUser(initial)
}

// Ready reports whether the broker finished loading a user.
func (b *Broker) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initialized
}

// CurrentUser returns the foreground user id.
func (b *Broker) CurrentUser() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentUser
}

// Sync waits until every task queued so far has run.
func (b *Broker) Sync(ctx context.Context) error {
	return b.queue.Sync(ctx)
}

// Close unbinds every service and stops the worker.
func (b *Broker) Close() error {
	for _, unsub := range b.unsubscribe {
		unsub()
	}
	b.unsubscribe = nil

	b.mu.Lock()
	for _, u := range b.users {
		b.killAutomationLocked(u)
		b.unbindAllLocked(u)
	}
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := b.queue.Sync(ctx)

	b.cancel()
	b.queue.Close()
	b.clients.Close()
	if errors.Is(err, worker.ErrClosed) {
		return nil
	}
	return err
}

// userLocked returns the state of userID, creating it on first use.
func (b *Broker) userLocked(userID int) *userState {
	u, ok := b.users[userID]
	if !ok {
		u = newUserState(userID)
		b.users[userID] = u
	}
	return u
}

func (b *Broker) currentUserLocked() *userState {
	return b.userLocked(b.currentUser)
}

// SwitchUser makes userID the foreground user.
func (b *Broker) SwitchUser(userID int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.currentUser == userID && b.initialized {
		return
	}

	old := b.currentUserLocked()
	b.killAutomationLocked(old)
	b.resetUserLocked(old)

	if b.clients.Count(clients.User(old.userID)) > 0 {
		oldScope := clients.User(old.userID)
		b.queue.Post(func() { b.clients.Publish(oldScope, 0) })
	}

	previous := b.currentUser
	b.currentUser = userID

	u := b.currentUserLocked()
	b.killAutomationLocked(u)
	b.readConfigurationLocked(u)
	b.onUserStateChangedLocked(u)

	b.logger.Info("=== USER SWITCHED ===",
		"from_user", previous,
		"to_user", userID,
		"accessibility_enabled", u.accessibilityEnabled,
		"enabled_services", len(u.enabled),
	)
}

// RemoveUser forgets all state of a deleted user.
func (b *Broker) RemoveUser(userID int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if u, ok := b.users[userID]; ok {
		b.killAutomationLocked(u)
		b.unbindAllLocked(u)
		delete(b.users, userID)
	}
	b.registry.DropUser(userID)
	b.logger.Info("user removed", "user_id", userID)
}

// onSettingChanged re-reads a single changed setting of the current user.
func (b *Broker) onSettingChanged(c store.Change) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c.UserID != b.currentUser {
		return
	}
	u := b.currentUserLocked()
	// Automation overrides the persisted state until it goes away.
	if u.automation != nil {
		return
	}

	var changed bool
	switch c.Name {
	case store.SettingAccessibilityEnabled:
		changed = b.readAccessibilityEnabledLocked(u)
	case store.SettingTouchExplorationEnabled:
		changed = b.readTouchExplorationEnabledLocked(u)
	case store.SettingMagnificationEnabled:
		changed = b.readMagnificationEnabledLocked(u)
	case store.SettingEnabledServices:
		changed = b.readEnabledServicesLocked(u)
	case store.SettingTouchExplorationGrantedServices:
		changed = b.readGrantedServicesLocked(u)
	case store.SettingScriptInjection:
		changed = b.readEnhancedWebLocked(u)
	}
	if changed {
		b.logger.Debug("setting changed", "name", c.Name, "user_id", c.UserID)
		b.onUserStateChangedLocked(u)
	}
}
