// ABOUTME: gRPC interceptors and HTTP middleware that attach a Caller to incoming requests
// ABOUTME: Loopback peers declare their identity in headers; remote peers are anonymous

package auth

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// NobodyUID is the uid given to callers that cannot be identified.
const NobodyUID = 65534

// Identity headers. gRPC metadata uses the lower-cased names.
const (
	HeaderUID         = "X-A11y-Uid"
	HeaderPID         = "X-A11y-Pid"
	HeaderUserID      = "X-A11y-User-Id"
	HeaderPermissions = "X-A11y-Permissions"
)

// Anonymous returns the Caller for an unidentified remote peer. It holds no
// permissions.
func Anonymous() *Caller {
	return &Caller{UID: NobodyUID}
}

// IsLoopback reports whether addr is a loopback TCP/IP address or a unix
// socket.
func IsLoopback(addr net.Addr) bool {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP.IsLoopback()
	case *net.UnixAddr:
		return true
	default:
		return false
	}
}

func isLoopbackHostPort(hostport string) bool {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		host = hostport
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// CallerFromHeaders builds the Caller for a request. get returns a header
// value or "". Local requests without a uid header act as System().
func CallerFromHeaders(get func(string) string, local bool) (*Caller, error) {
	if !local {
		return Anonymous(), nil
	}

	rawUID := get(HeaderUID)
	if rawUID == "" {
		return System(), nil
	}

	uid, err := strconv.Atoi(rawUID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid %s %q", HeaderUID, rawUID)
	}
	c := &Caller{UID: uid}

	if raw := get(HeaderPID); raw != "" {
		if c.PID, err = strconv.Atoi(raw); err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid %s %q", HeaderPID, raw)
		}
	}
	if raw := get(HeaderUserID); raw != "" {
		if c.UserID, err = strconv.Atoi(raw); err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid %s %q", HeaderUserID, raw)
		}
	}
	for _, p := range strings.Split(get(HeaderPermissions), ",") {
		if p = strings.TrimSpace(p); p != "" {
			c.Permissions = append(c.Permissions, p)
		}
	}
	return c, nil
}

func callerFromIncoming(ctx context.Context) (*Caller, error) {
	local := false
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		local = IsLoopback(p.Addr)
	}
	md, _ := metadata.FromIncomingContext(ctx)
	get := func(key string) string {
		if vals := md.Get(strings.ToLower(key)); len(vals) > 0 {
			return vals[0]
		}
		return ""
	}
	return CallerFromHeaders(get, local)
}

// logRejected logs a request whose identity headers could not be parsed.
func logRejected(logger *slog.Logger, ctx context.Context, err error) {
	if logger == nil {
		return
	}
	attrs := []any{"error", err}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		attrs = append(attrs, "peer_addr", p.Addr.String())
	}
	logger.Warn("caller rejected", attrs...)
}

// UnaryInterceptor returns a gRPC unary interceptor that attaches the Caller.
func UnaryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		c, err := callerFromIncoming(ctx)
		if err != nil {
			logRejected(logger, ctx, err)
			return nil, err
		}
		return handler(WithCaller(ctx, c), req)
	}
}

// callerStream wraps a ServerStream to carry the Caller in its context.
type callerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *callerStream) Context() context.Context {
	return s.ctx
}

// StreamInterceptor returns a gRPC stream interceptor that attaches the Caller.
func StreamInterceptor(logger *slog.Logger) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		c, err := callerFromIncoming(ss.Context())
		if err != nil {
			logRejected(logger, ss.Context(), err)
			return err
		}
		return handler(srv, &callerStream{ServerStream: ss, ctx: WithCaller(ss.Context(), c)})
	}
}

// HTTPMiddleware attaches the Caller to each request context. Malformed
// identity headers are answered with 400.
func HTTPMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := CallerFromHeaders(r.Header.Get, isLoopbackHostPort(r.RemoteAddr))
			if err != nil {
				if logger != nil {
					logger.Warn("caller rejected", "error", err, "remote_addr", r.RemoteAddr)
				}
				http.Error(w, status.Convert(err).Message(), http.StatusBadRequest)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), c)))
		})
	}
}

// HTTPStatus maps a broker error to an HTTP status code.
func HTTPStatus(err error) int {
	switch status.Code(err) {
	case codes.OK:
		return http.StatusOK
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.FailedPrecondition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
