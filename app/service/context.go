package service

import "context"

type identityKey struct{}

// Identity is the authenticated caller of a lock operation.
type Identity struct {
	HolderID   string
	Privileged bool
}

// WithIdentity stores the caller identity in the context.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext extracts the caller identity from the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	value := ctx.Value(identityKey{})
	if value == nil {
		return Identity{}, false
	}
	identity, ok := value.(Identity)
	return identity, ok && identity.HolderID != ""
}
