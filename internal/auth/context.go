package auth

import "context"

type ctxKey int

const identityKey ctxKey = iota

// Identity is the resolved acting user for one request. The ledger core only
// ever sees the id; how it was derived (default user or PIN session) stays in
// this package.
type Identity struct {
	UserID int64
	Name   string
}

// WithIdentity stores the acting user in a context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the acting user from a context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
