// Package tenantctx carries the resolved tenant identity through a request.
package tenantctx

import "context"

// IsolationMode selects how a tenant's data is isolated.
type IsolationMode string

const (
	IsolationSchema   IsolationMode = "SCHEMA"
	IsolationDatabase IsolationMode = "DATABASE"
)

// Identity is the immutable tenant identity resolved for a request.
type Identity struct {
	Slug string
	Mode IsolationMode
}

type identityKey struct{}

// WithIdentity stores the resolved identity in the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the resolved identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
