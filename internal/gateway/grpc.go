// ABOUTME: a11y.v1.Broker gRPC service implementation for out-of-process peers
// ABOUTME: Handles state client streams, window registration streams and service streams

package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/2389/a11y-gateway/internal/a11y"
	"github.com/2389/a11y-gateway/internal/auth"
	"github.com/2389/a11y-gateway/internal/broker"
	"github.com/2389/a11y-gateway/internal/loopback"
	"github.com/2389/a11y-gateway/internal/rpc"
)

// brokerServer implements the a11y.v1.Broker gRPC service.
type brokerServer struct {
	rpc.UnimplementedBrokerServer
	broker    *broker.Broker
	connector *loopback.Connector
	logger    *slog.Logger

	mu       sync.Mutex
	services map[a11y.ComponentName]*remoteService
}

// newBrokerServer creates a new broker service instance.
func newBrokerServer(b *broker.Broker, connector *loopback.Connector, logger *slog.Logger) *brokerServer {
	return &brokerServer{
		broker:    b,
		connector: connector,
		logger:    logger,
		services:  make(map[a11y.ComponentName]*remoteService),
	}
}

func (s *brokerServer) SendAccessibilityEvent(ctx context.Context, req *rpc.SendEventRequest) (*rpc.Empty, error) {
	if req.Event == nil {
		return nil, status.Error(codes.InvalidArgument, "event is required")
	}
	if err := s.broker.SendAccessibilityEvent(ctx, req.Event.A11y(), req.UserID); err != nil {
		return nil, err
	}
	return &rpc.Empty{}, nil
}

func (s *brokerServer) Interrupt(ctx context.Context, req *rpc.InterruptRequest) (*rpc.Empty, error) {
	if err := s.broker.Interrupt(ctx, req.UserID); err != nil {
		return nil, err
	}
	return &rpc.Empty{}, nil
}

func (s *brokerServer) ActiveWindowBounds(ctx context.Context, _ *rpc.Empty) (*rpc.BoundsResponse, error) {
	bounds, found, err := s.broker.ActiveWindowBounds(ctx)
	if err != nil {
		return nil, err
	}
	return &rpc.BoundsResponse{Found: found, Bounds: rpc.FromRect(bounds)}, nil
}

// stateStream is a state client whose updates go out on an AddClient stream.
type stateStream struct {
	out *outbox[rpc.ClientStateUpdate]
}

func (c stateStream) SetState(state a11y.ClientState) error {
	return c.out.send(rpc.FromClientState(state))
}

// AddClient registers the caller as a state client. The stream carries the
// starting state followed by every change until the caller hangs up.
func (s *brokerServer) AddClient(req *rpc.AddClientRequest, stream rpc.Broker_AddClientServer) error {
	ctx := stream.Context()
	client := stateStream{out: newOutbox[rpc.ClientStateUpdate]()}

	state, id, err := s.broker.AddClient(ctx, client, req.UserID)
	if err != nil {
		return err
	}
	defer s.broker.RemoveClient(id)
	defer client.out.close()

	if err := stream.Send(rpc.FromClientState(state)); err != nil {
		return status.Errorf(codes.Internal, "sending initial state: %v", err)
	}
	s.logger.Debug("state client connected", "client_id", id, "user_id", req.UserID)

	return client.out.drain(ctx, stream.Send)
}

// WindowStream handles an application window's interaction connection.
// Protocol flow:
// 1. Window sends RegisterWindow
// 2. Server responds with WindowWelcome carrying the window id
// 3. Server sends WindowQuery messages; the window answers with NodeResults
// or ActionResult echoing the request id
func (s *brokerServer) WindowStream(stream rpc.Broker_WindowStreamServer) error {
	ctx := stream.Context()

	msg, err := stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return status.Errorf(codes.Internal, "receiving first message: %v", err)
	}
	reg := msg.Register
	if reg == nil {
		return status.Error(codes.InvalidArgument, "first message must be RegisterWindow")
	}
	if reg.Token == "" {
		return status.Error(codes.InvalidArgument, "token is required")
	}

	token := a11y.WindowToken(reg.Token)
	win := newRemoteWindow(s.logger.With("token", reg.Token))
	windowID, err := s.broker.AddInteractionConnection(ctx, token, win, reg.UserID)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.broker.RemoveInteractionConnection(ctx, token); err != nil {
			s.logger.Debug("removing interaction connection", "token", reg.Token, "error", err)
		}
		win.die()
	}()

	if err := stream.Send(&rpc.WindowCommand{Welcome: &rpc.WindowWelcome{WindowID: windowID}}); err != nil {
		return status.Errorf(codes.Internal, "sending welcome: %v", err)
	}

	stopWriter := startWriter(ctx, win.out, stream.Send)
	defer stopWriter()

	s.logger.Info("window connected", "window_id", windowID, "token", reg.Token, "user_id", reg.UserID)

	for {
		msg, err := stream.Recv()
		if err != nil {
			return s.streamEnded(err, "window_id", windowID)
		}

		switch {
		case msg.NodeResults != nil:
			win.handleNodeResults(msg.NodeResults)
		case msg.ActionResult != nil:
			win.handleActionResult(msg.ActionResult)
		case msg.Register != nil:
			s.logger.Warn("received duplicate registration", "window_id", windowID)
		default:
			s.logger.Warn("received unknown message type", "window_id", windowID)
		}
	}
}

// canHostService reports whether c may serve a component for userID.
// Unidentified peers never may.
func canHostService(c *auth.Caller, userID int) bool {
	if c.UID == auth.NobodyUID {
		return false
	}
	if c.IsPrivileged() || c.HasPermission(auth.PermissionInteractAcrossUsers) {
		return true
	}
	return userID == c.UserID
}

// ServiceStream handles an assistive service hosted outside the gateway.
// Protocol flow:
// 1. Service sends AnnounceService; its component becomes bindable
// 2. When the broker binds it, the server sends Connected
// 3. Server sends Event, Interrupt, KeyEvent, Gesture, ClearCache and
// Released; the service sends KeyEventResult, ServiceQuery,
// GlobalActionRequest and ServiceInfoUpdate
func (s *brokerServer) ServiceStream(stream rpc.Broker_ServiceStreamServer) error {
	ctx := stream.Context()
	caller, err := auth.RequireCaller(ctx)
	if err != nil {
		return err
	}

	msg, err := stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return status.Errorf(codes.Internal, "receiving first message: %v", err)
	}
	ann := msg.Announce
	if ann == nil {
		return status.Error(codes.InvalidArgument, "first message must be AnnounceService")
	}
	component, err := a11y.ParseComponentName(ann.Component)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if !canHostService(caller, ann.UserID) {
		return status.Errorf(codes.PermissionDenied, "caller may not host services for user %d", ann.UserID)
	}

	svc := newRemoteService(component, ann.UserID, s.logger.With("service", component.String()))
	s.mu.Lock()
	if _, dup := s.services[component]; dup {
		s.mu.Unlock()
		return status.Errorf(codes.AlreadyExists, "service %s already connected", component)
	}
	s.services[component] = svc
	s.mu.Unlock()

	s.connector.Register(component, svc.factory)
	defer func() {
		s.connector.Unregister(component)
		s.mu.Lock()
		delete(s.services, component)
		s.mu.Unlock()
		svc.die()
	}()

	stopWriter := startWriter(ctx, svc.out, stream.Send)
	defer stopWriter()

	s.logger.Info("service connected", "service", component.String(), "user_id", ann.UserID)
	s.broker.OnComponentAvailable(component)

	for {
		msg, err := stream.Recv()
		if err != nil {
			return s.streamEnded(err, "service", component.String())
		}

		switch {
		case msg.KeyEventResult != nil:
			if h := svc.current(); h != nil {
				h.SetKeyEventResult(msg.KeyEventResult.Handled, msg.KeyEventResult.Sequence)
			}
		case msg.Query != nil:
			s.handleServiceQuery(ctx, svc, msg.Query)
		case msg.GlobalAction != nil:
			s.handleGlobalAction(ctx, svc, msg.GlobalAction)
		case msg.SetServiceInfo != nil:
			if h := svc.current(); h != nil {
				info := h.ServiceInfo()
				msg.SetServiceInfo.Apply(info)
				h.SetServiceInfo(info)
			}
		case msg.Announce != nil:
			s.logger.Warn("received duplicate announcement", "service", component.String())
		default:
			s.logger.Warn("received unknown message type", "service", component.String())
		}
	}
}

// handleServiceQuery runs a content query for svc and replies with whether
// it was accepted. Results arrive separately, possibly before the reply.
func (s *brokerServer) handleServiceQuery(ctx context.Context, svc *remoteService, q *rpc.ServiceQuery) {
	reply := &rpc.QueryReply{RequestID: q.RequestID}
	h := svc.current()
	if h == nil {
		reply.Error = "service is not connected"
		svc.push(&rpc.ServiceCommand{QueryReply: reply})
		return
	}

	cb := serviceCallback{svc: svc, requestID: q.RequestID}
	query := q.Query.A11y()
	var err error
	switch q.Kind {
	case rpc.QueryFindByAccessibilityID:
		reply.Accepted, err = h.FindByAccessibilityID(ctx, q.WindowID, query, cb)
	case rpc.QueryFindByViewID:
		reply.Accepted, err = h.FindByViewID(ctx, q.WindowID, query, cb)
	case rpc.QueryFindByText:
		reply.Accepted, err = h.FindByText(ctx, q.WindowID, query, cb)
	case rpc.QueryFindFocus:
		reply.Accepted, err = h.FindFocus(ctx, q.WindowID, query, cb)
	case rpc.QueryFocusSearch:
		reply.Accepted, err = h.FocusSearch(ctx, q.WindowID, query, cb)
	case rpc.QueryPerformAction:
		reply.Accepted, err = h.PerformAction(ctx, q.WindowID, query, cb)
	default:
		err = status.Errorf(codes.InvalidArgument, "unknown query kind %q", q.Kind)
	}
	if err != nil {
		reply.Error = status.Convert(err).Message()
	}
	svc.push(&rpc.ServiceCommand{QueryReply: reply})
}

func (s *brokerServer) handleGlobalAction(ctx context.Context, svc *remoteService, req *rpc.GlobalActionRequest) {
	reply := &rpc.QueryReply{RequestID: req.RequestID}
	if h := svc.current(); h == nil {
		reply.Error = "service is not connected"
	} else {
		ok, err := h.PerformGlobalAction(ctx, a11y.GlobalAction(req.Action))
		reply.Accepted = ok
		if err != nil {
			reply.Error = status.Convert(err).Message()
		}
	}
	svc.push(&rpc.ServiceCommand{QueryReply: reply})
}

// startWriter drains out onto the stream from its own goroutine. The
// returned func stops the writer and waits for it, so nothing writes to the
// stream after the handler returns.
func startWriter[T any](ctx context.Context, out *outbox[T], write func(*T) error) func() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = out.drain(ctx, write)
	}()
	return func() {
		out.close()
		<-done
	}
}

// streamEnded maps a receive error to the handler's return value.
func (s *brokerServer) streamEnded(err error, attrs ...any) error {
	if errors.Is(err, io.EOF) {
		s.logger.Info("peer disconnected (EOF)", attrs...)
		return nil
	}
	if status.Code(err) == codes.Canceled {
		s.logger.Info("peer stream cancelled", attrs...)
		return nil
	}
	s.logger.Error("receiving message", append([]any{"error", err}, attrs...)...)
	return status.Errorf(codes.Internal, "receiving message: %v", err)
}
