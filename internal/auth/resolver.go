package auth

import (
	"context"
	"strings"
)

// Resolver turns a token into a caller identity. Every failure is
// reported as ErrAuthInvalid.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*Identity, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, token string) (*Identity, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, token string) (*Identity, error) {
	return f(ctx, token)
}

const bearerPrefix = "bearer "

// ExtractBearerToken returns the token of an "Authorization: Bearer <token>"
// header value. The scheme is matched case-insensitively.
func ExtractBearerToken(header string) (string, error) {
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", ErrAuthInvalid
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", ErrAuthInvalid
	}
	return token, nil
}
