package auth

import (
	"context"
	"slices"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// HasRole reports whether the identity holds one of roles. An empty
// list admits every identity.
func (i *Identity) HasRole(roles ...string) bool {
	if i == nil {
		return false
	}
	if len(roles) == 0 {
		return true
	}
	return slices.Contains(roles, i.Role)
}

type identityKey struct{}

// ContextWithIdentity returns a context carrying id.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity stored by ContextWithIdentity.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}
