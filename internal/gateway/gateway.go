// ABOUTME: Gateway orchestrator that coordinates the accessibility broker with GRPC and HTTP servers
// ABOUTME: Manages the settings store, service inventory, health endpoints and shutdown

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/2389/a11y-gateway/internal/a11y"
	"github.com/2389/a11y-gateway/internal/auth"
	"github.com/2389/a11y-gateway/internal/broker"
	"github.com/2389/a11y-gateway/internal/config"
	"github.com/2389/a11y-gateway/internal/desktopbus"
	"github.com/2389/a11y-gateway/internal/inventory"
	"github.com/2389/a11y-gateway/internal/loopback"
	"github.com/2389/a11y-gateway/internal/rpc"
	"github.com/2389/a11y-gateway/internal/store"
)

// closer is implemented by inventories that hold resources.
type closer interface {
	Close() error
}

// Gateway orchestrates the a11y-gateway server components.
// It owns the broker, serves it to out-of-process peers over GRPC and
// exposes health and state over GRPC and HTTP.
type Gateway struct {
	config     *config.Config
	store      store.SettingsStore
	inventory  inventory.Inventory
	connector  *loopback.Connector
	desktop    *Desktop
	broker     *broker.Broker
	grpcServer *grpc.Server
	health     *health.Server
	httpServer *http.Server
	logger     *slog.Logger

	// bus mirrors client state on D-Bus when dbus.enabled is set
	bus      *desktopbus.Publisher
	busSubID string

	// serverID identifies this gateway instance
	serverID string
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, path[2:])
}

// initStore creates the settings store based on config and environment.
func initStore(cfg *config.Config) (store.SettingsStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("A11Y_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(expandHome(dbPath))
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// initInventory loads service manifests, starting a directory watch if configured.
// Without a manifest directory the inventory is empty.
func initInventory(cfg *config.Config, logger *slog.Logger) (inventory.Inventory, error) {
	if cfg.Inventory.ManifestDir == "" {
		logger.Warn("inventory.manifest_dir not set - no services are installed")
		return inventory.NewStatic(), nil
	}

	dir := inventory.NewDir(expandHome(cfg.Inventory.ManifestDir), logger)
	if err := dir.Load(); err != nil {
		return nil, fmt.Errorf("loading inventory: %w", err)
	}
	if cfg.Inventory.Watch {
		if err := dir.Watch(); err != nil {
			_ = dir.Close()
			return nil, fmt.Errorf("watching inventory: %w", err)
		}
	}
	return dir, nil
}

// createGRPCServer creates a gRPC server carrying the standard health service.
// Every call, including the broker service registered by New, gets a Caller
// from the auth interceptors.
func createGRPCServer(logger *slog.Logger) (*grpc.Server, *health.Server) {
	server := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(auth.UnaryInterceptor(logger)),
		grpc.ChainStreamInterceptor(auth.StreamInterceptor(logger)),
	)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(server, hs)
	return server, hs
}

// New creates a new Gateway instance with the given configuration.
// The broker is started and loads the configured initial user before New returns.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	inv, err := initInventory(cfg, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	connector := loopback.New(logger)
	desktop := NewDesktop(logger)

	b, err := broker.New(broker.Config{
		Settings:        s,
		Inventory:       inv,
		Connector:       connector,
		Windows:         desktop,
		Input:           desktop,
		InitialUser:     cfg.Broker.InitialUser,
		KeyEventTimeout: cfg.Broker.KeyEventTimeout,
		Logger:          logger,
	})
	if err != nil {
		_ = s.Close()
		if c, ok := inv.(closer); ok {
			_ = c.Close()
		}
		return nil, fmt.Errorf("creating broker: %w", err)
	}

	grpcServer, hs := createGRPCServer(logger)
	rpc.RegisterBrokerServer(grpcServer, newBrokerServer(b, connector, logger.With("component", "grpc")))
	gw := &Gateway{
		config:     cfg,
		store:      s,
		inventory:  inv,
		connector:  connector,
		desktop:    desktop,
		broker:     b,
		grpcServer: grpcServer,
		health:     hs,
		logger:     logger.With("component", "gateway"),
		serverID:   generateServerID(),
	}

	// Create HTTP server for health checks and state
	mux := http.NewServeMux()
	gw.registerRoutes(mux)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	b.Start()

	if cfg.DBus.Enabled {
		pub, err := desktopbus.Connect(cfg.DBus.Bus, logger)
		if err != nil {
			// The broker works without a desktop bus; clients can still poll /debug/state
			gw.logger.Warn("desktop bus unavailable", "bus", cfg.DBus.Bus, "error", err)
		} else if err := gw.attachBus(pub); err != nil {
			_ = pub.Close()
			gw.logger.Warn("failed to register desktop bus publisher", "error", err)
		}
	}

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	gw.logger.Info("broker started",
		"server_id", gw.serverID,
		"user", b.CurrentUser(),
		"key_event_timeout", cfg.Broker.KeyEventTimeout,
	)

	return gw, nil
}

// attachBus registers pub as a global state client and publishes the
// current state once.
func (g *Gateway) attachBus(pub *desktopbus.Publisher) error {
	ctx := auth.WithCaller(context.Background(), auth.System())
	state, id, err := g.broker.AddClient(ctx, pub, a11y.UserAll)
	if err != nil {
		return fmt.Errorf("registering desktop bus client: %w", err)
	}
	g.bus = pub
	g.busSubID = id
	if err := pub.SetState(state); err != nil {
		g.logger.Warn("failed to publish initial state", "error", err)
	}
	return nil
}

// detachBus unregisters and closes the desktop bus publisher, if any.
func (g *Gateway) detachBus() error {
	if g.bus == nil {
		return nil
	}
	g.broker.RemoveClient(g.busSubID)
	err := g.bus.Close()
	g.bus = nil
	return err
}

// Broker returns the broker owned by the gateway.
func (g *Gateway) Broker() *broker.Broker {
	return g.broker
}

// Connector returns the in-process connector so embedded services can register.
func (g *Gateway) Connector() *loopback.Connector {
	return g.connector
}

// Desktop returns the headless window manager and input filter.
func (g *Gateway) Desktop() *Desktop {
	return g.desktop
}

func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	// Health endpoints - no caller required
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)

	withCaller := auth.HTTPMiddleware(g.logger)
	mux.Handle("GET /debug/state", withCaller(http.HandlerFunc(g.handleState)))
}

// setupTCPListeners creates standard TCP listeners for gRPC and HTTP.
func (g *Gateway) setupTCPListeners() (grpcLn, httpLn net.Listener, err error) {
	g.logger.Info("starting gateway",
		"grpc_addr", g.config.Server.GRPCAddr,
		"http_addr", g.config.Server.HTTPAddr,
	)

	grpcLn, err = net.Listen("tcp", g.config.Server.GRPCAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
	}

	httpLn, err = net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		_ = grpcLn.Close()
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}

	return grpcLn, httpLn, nil
}

// startServers starts gRPC and HTTP servers in goroutines, returning error channel.
func (g *Gateway) startServers(grpcLn, httpLn net.Listener) chan error {
	errCh := make(chan error, 2)

	go func() {
		g.logger.Info("gRPC server listening", "addr", grpcLn.Addr().String())
		if err := g.grpcServer.Serve(grpcLn); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	go func() {
		g.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := g.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		g.drainErrors(errCh)
		return err
	}
}

// drainErrors drains any remaining errors from the channel.
func (g *Gateway) drainErrors(errCh chan error) {
	select {
	case additionalErr := <-errCh:
		g.logger.Error("additional server error", "error", additionalErr)
	default:
	}
}

// Run starts the gateway servers and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if a server fails.
func (g *Gateway) Run(ctx context.Context) error {
	grpcListener, httpListener, err := g.setupTCPListeners()
	if err != nil {
		_ = g.gracefulShutdown()
		return err
	}

	errCh := g.startServers(grpcListener, httpListener)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
func (g *Gateway) shutdownGRPCServer(ctx context.Context) {
	stopped := make(chan struct{})
	go func() {
		g.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		g.grpcServer.Stop()
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the servers, unbinds every service and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")
	g.health.Shutdown()

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	g.shutdownGRPCServer(ctx)

	errs = appendCloseError(errs, "desktop bus close", g.detachBus())
	errs = appendCloseError(errs, "broker close", g.broker.Close())
	if c, ok := g.inventory.(closer); ok {
		errs = appendCloseError(errs, "inventory close", c.Close())
	}
	errs = appendCloseError(errs, "store close", g.store.Close())

	return errors.Join(errs...)
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the broker has loaded its current user.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if !g.broker.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("broker not initialized"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (user %d)", g.broker.CurrentUser())
}

// stateResponse is the body of /debug/state.
type stateResponse struct {
	ServerID string           `json:"server_id"`
	Broker   *broker.Snapshot `json:"broker"`
	Desktop  DesktopState     `json:"desktop"`
}

// handleState writes the broker dump and desktop view as JSON. The caller
// needs the dump permission.
func (g *Gateway) handleState(w http.ResponseWriter, r *http.Request) {
	snap, err := g.broker.Dump(r.Context())
	if err != nil {
		g.logger.Warn("state dump refused", "error", err, "remote_addr", r.RemoteAddr)
		http.Error(w, status.Convert(err).Message(), auth.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stateResponse{
		ServerID: g.serverID,
		Broker:   snap,
		Desktop:  g.desktop.State(),
	}); err != nil {
		g.logger.Warn("failed to write state response", "error", err)
	}
}

// generateServerID creates a unique identifier for this gateway instance.
func generateServerID() string {
	return fmt.Sprintf("a11y-gateway-%d", time.Now().UnixNano()%1000000)
}
