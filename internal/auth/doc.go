// Package auth carries caller identity through broker operations.
//
// # Overview
//
// Every externally reachable broker operation takes a context.Context. The
// transport that accepted the call attaches a Caller describing who made it:
//
//	ctx = auth.WithCaller(ctx, &auth.Caller{UID: uid, PID: pid, UserID: user})
//
// The broker's security policy reads the Caller back to resolve which user a
// call acts for and whether it may touch other users' state.
//
// # Errors
//
// Authorization failures are reported as gRPC status errors so transports can
// forward them unchanged:
//
//   - codes.Unauthenticated: no Caller in the context
//   - codes.PermissionDenied: the Caller lacks a required permission
//
// # Transports
//
// UnaryInterceptor, StreamInterceptor and HTTPMiddleware attach the Caller
// for gRPC and HTTP requests. Loopback peers are trusted to declare who they
// are with the X-A11y-Uid, X-A11y-Pid, X-A11y-User-Id and X-A11y-Permissions
// headers (gRPC metadata keys are the lower-cased names). A loopback peer
// that sends no uid acts as System(). Every other peer is Anonymous() and
// holds no permissions.
//
// # In-process calls
//
// System() returns the Caller the broker uses for its own work. It holds every
// permission and resolves to the current user.
package auth
