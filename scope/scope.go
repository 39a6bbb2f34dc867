// Package scope carries the resolved caller identity (tenant and user)
// through context.Context. The engine trusts this context for identity but
// still verifies that any referenced workflow belongs to the caller's
// tenant before acting.
package scope

import "context"

type contextKey struct{}

// Scope is the resolved caller identity attached to every public operation.
type Scope struct {
	TenantID string
	UserID   string
}

// WithScope attaches a caller scope to the context.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext extracts the caller scope from the context.
// Returns false if no scope is present.
func FromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(contextKey{}).(Scope)
	return s, ok
}

// Capture extracts the tenant and user identifiers from the context.
// Returns empty strings if no scope is present.
func Capture(ctx context.Context) (tenantID, userID string) {
	s, ok := FromContext(ctx)
	if !ok {
		return "", ""
	}
	return s.TenantID, s.UserID
}

// Restore attaches a scope to the context using the given tenant and user
// IDs. If both are empty, the context is returned unchanged (no-op).
func Restore(ctx context.Context, tenantID, userID string) context.Context {
	if tenantID == "" && userID == "" {
		return ctx
	}
	return WithScope(ctx, Scope{TenantID: tenantID, UserID: userID})
}
