package core

import "context"

// Role classifies what an authenticated user may do.
type Role string

const (
	RoleCitizen Role = "citizen"
	RoleStaff   Role = "staff"
	RoleAdmin   Role = "admin"
)

// Identity is the acting user attached to a request after authentication.
// The zero value means anonymous.
type Identity struct {
	UserID string
	Role   Role
}

// IsAnonymous reports whether no authenticated user is attached.
func (id Identity) IsAnonymous() bool {
	return id.UserID == ""
}

// IsStaff reports whether the user may perform triage operations.
func (id Identity) IsStaff() bool {
	return id.Role == RoleStaff || id.Role == RoleAdmin
}

// CacheScope returns the identity component used in cache key derivation:
// the user ID, or "anon" for unauthenticated callers.
func (id Identity) CacheScope() string {
	if id.UserID == "" {
		return "anon"
	}
	return id.UserID
}

type identityCtxKey struct{}

// WithIdentity returns a context carrying the acting user.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFrom extracts the acting user from the context.
// Returns the zero (anonymous) Identity when none is attached.
func IdentityFrom(ctx context.Context) Identity {
	id, _ := ctx.Value(identityCtxKey{}).(Identity)
	return id
}
