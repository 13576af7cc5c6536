// ABOUTME: Caller identity carried through broker operations via context
// ABOUTME: Provides WithCaller/FromContext and permission checks for incoming calls

package auth

import (
	"context"
	"slices"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Well-known uids.
const (
	RootUID   = 0
	SystemUID = 1000
	ShellUID  = 2000
)

// Permissions checked by the broker.
const (
	PermissionInteractAcrossUsers   = "interact_across_users"
	PermissionRetrieveWindowContent = "retrieve_window_content"
	PermissionTemporaryEnable       = "temporary_enable_accessibility"
	PermissionDump                  = "dump"
)

// Caller identifies whoever invoked a broker operation.
type Caller struct {
	UID    int
	PID    int
	UserID int

	// InProcess is true for calls originating inside the broker's own
	// process; such callers hold every permission.
	InProcess bool

	Permissions []string
}

// System returns the in-process caller used by the broker itself.
func System() *Caller {
	return &Caller{UID: SystemUID, InProcess: true}
}

// IsPrivileged reports whether the caller acts for whichever user is current.
func (c *Caller) IsPrivileged() bool {
	return c.UID == RootUID || c.UID == SystemUID || c.UID == ShellUID
}

// HasPermission reports whether the caller holds perm.
func (c *Caller) HasPermission(perm string) bool {
	return c.InProcess || slices.Contains(c.Permissions, perm)
}

// callerContextKey is the key type for storing a Caller in context.Context.
type callerContextKey struct{}

// WithCaller returns a new context with the Caller attached.
func WithCaller(ctx context.Context, c *Caller) context.Context {
	return context.WithValue(ctx, callerContextKey{}, c)
}

// FromContext retrieves the Caller from the context, returning nil if not present.
func FromContext(ctx context.Context) *Caller {
	val := ctx.Value(callerContextKey{})
	if val == nil {
		return nil
	}
	c, ok := val.(*Caller)
	if !ok {
		return nil
	}
	return c
}

// RequireCaller returns the Caller or an Unauthenticated status error.
func RequireCaller(ctx context.Context) (*Caller, error) {
	c := FromContext(ctx)
	if c == nil {
		return nil, status.Error(codes.Unauthenticated, "caller identity required")
	}
	return c, nil
}

// RequirePermission returns a PermissionDenied status error unless the caller
// in ctx holds perm. function names the guarded operation in the message.
func RequirePermission(ctx context.Context, perm, function string) (*Caller, error) {
	c, err := RequireCaller(ctx)
	if err != nil {
		return nil, err
	}
	if !c.HasPermission(perm) {
		return nil, status.Errorf(codes.PermissionDenied, "%s requires %s", function, perm)
	}
	return c, nil
}
