// Package gateway wires the accessibility broker into a running server.
//
// # Overview
//
// The Gateway is the composition root. It opens the settings store, loads
// the service inventory, creates the broker and exposes health and state
// over HTTP and gRPC.
//
// # Components
//
//   - store.SQLiteStore persists per-user accessibility settings. The
//     A11Y_DB_PATH environment variable overrides database.path.
//   - inventory.Dir reads TOML service manifests and, with inventory.watch,
//     follows the directory for installs and removals.
//   - loopback.Connector binds enabled services to in-process clients
//     registered through Connector().
//   - desktopbus.Publisher, with dbus.enabled, re-emits every client state
//     change on the session or system bus. A missing bus is logged and
//     the gateway runs without it.
//   - Desktop stands in for the window manager and input filter when no
//     compositor is attached. It records what the broker pushes.
//
// # HTTP Endpoints
//
//	GET /health        200 while the process is alive
//	GET /health/ready  200 once the broker has loaded its current user
//	GET /debug/state   JSON broker dump plus the Desktop view
//
// # gRPC
//
// The standard grpc.health.v1.Health service reports SERVING from the
// moment New returns until Shutdown.
//
// The a11y.v1.Broker service (see package rpc) serves the broker to peers
// in other processes, behind the same auth interceptors as health:
//
//   - AddClient streams the client state bitmask until the caller hangs up.
//   - SendAccessibilityEvent, Interrupt and ActiveWindowBounds map onto the
//     broker calls of the same name.
//   - WindowStream registers an application window. The broker's content
//     queries go out as WindowQuery commands and the window answers with the
//     request id it was given. Ending the stream drops the window.
//   - ServiceStream hosts an assistive service. The announced component is
//     registered with the loopback connector, so the broker binds it like an
//     in-process service once it is enabled. Ending the stream counts as the
//     service dying.
//
// Commands to a peer are queued per stream and written by one goroutine; a
// peer that falls too far behind gets errors instead of blocking the broker.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	return gw.Run(ctx) // blocks until ctx is canceled
//
// Shutdown stops the servers, unbinds every service through the broker and
// closes the inventory and store.
package gateway
