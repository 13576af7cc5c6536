// ABOUTME: In-process Connector binding service components to local client factories
// ABOUTME: Connections complete asynchronously, mirroring a remote bind

package loopback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/2389/a11y-gateway/internal/a11y"
)

// ErrComponentUnavailable is returned when no factory serves a component.
var ErrComponentUnavailable = errors.New("component unavailable")

// Factory builds a client for a bind request. A nil client means the
// component does not serve userID.
type Factory func(userID int) a11y.ServiceClient

type binding struct {
	component a11y.ComponentName
	userID    int
}

// Connector implements a11y.Connector for clients living in this process.
type Connector struct {
	mu        sync.Mutex
	factories map[a11y.ComponentName]Factory
	live      map[binding]a11y.ServiceClient
	logger    *slog.Logger
}

// New creates an empty Connector. Pass nil logger for default.
func New(logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{
		factories: make(map[a11y.ComponentName]Factory),
		live:      make(map[binding]a11y.ServiceClient),
		logger:    logger.With("component", "loopback"),
	}
}

// Register makes component bindable.
func (c *Connector) Register(component a11y.ComponentName, factory Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[component] = factory
}

// Unregister makes component unbindable and forgets its live clients. The
// clients are not closed.
func (c *Connector) Unregister(component a11y.ComponentName) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.factories, component)
	for key := range c.live {
		if key.component == component {
			delete(c.live, key)
		}
	}
}

// Connect builds a client and hands it to sink on a separate goroutine.
func (c *Connector) Connect(ctx context.Context, component a11y.ComponentName, userID int, sink a11y.ConnectionSink) error {
	c.mu.Lock()
	factory, ok := c.factories[component]
	c.mu.Unlock()
	if !ok {
		return ErrComponentUnavailable
	}

	client := factory(userID)
	if client == nil {
		return ErrComponentUnavailable
	}

	c.mu.Lock()
	c.live[binding{component, userID}] = client
	c.mu.Unlock()

	go func() {
		if ctx.Err() != nil {
			return
		}
		if err := sink.OnConnected(client); err != nil {
			c.logger.Warn("connection rejected",
				"service", component.String(),
				"user_id", userID,
				"error", err)
		}
	}()
	return nil
}

// Disconnect releases the client bound for component, closing it when it
// implements io.Closer.
func (c *Connector) Disconnect(component a11y.ComponentName, userID int) {
	key := binding{component, userID}

	c.mu.Lock()
	client, ok := c.live[key]
	delete(c.live, key)
	c.mu.Unlock()

	if !ok {
		return
	}
	if closer, ok := client.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			c.logger.Debug("closing client", "service", component.String(), "error", err)
		}
	}
}

// Bound reports whether component currently has a live client for userID.
func (c *Connector) Bound(component a11y.ComponentName, userID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.live[binding{component, userID}]
	return ok
}
