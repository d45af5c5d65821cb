package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		expected  string
		expectErr bool
	}{
		{name: "valid", header: "Bearer abc.def", expected: "abc.def"},
		{name: "lowercase scheme", header: "bearer tok", expected: "tok"},
		{name: "surrounding spaces", header: "Bearer   tok  ", expected: "tok"},
		{name: "empty", header: "", expectErr: true},
		{name: "scheme only", header: "Bearer ", expectErr: true},
		{name: "blank token", header: "Bearer    ", expectErr: true},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := ExtractBearerToken(tt.header)
			if tt.expectErr {
				assert.ErrorIs(t, err, ErrAuthInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, token)
		})
	}
}

func TestIdentity_HasRole(t *testing.T) {
	seller := &Identity{UserID: "u1", Role: "seller"}

	assert.True(t, seller.HasRole())
	assert.True(t, seller.HasRole("admin", "seller"))
	assert.False(t, seller.HasRole("admin"))

	var anonymous *Identity
	assert.False(t, anonymous.HasRole())
}

func TestIdentityContext(t *testing.T) {
	ctx := context.Background()

	_, ok := IdentityFromContext(ctx)
	assert.False(t, ok)

	id := &Identity{UserID: "u1"}
	got, ok := IdentityFromContext(ContextWithIdentity(ctx, id))
	require.True(t, ok)
	assert.Same(t, id, got)

	_, ok = IdentityFromContext(ContextWithIdentity(ctx, nil))
	assert.False(t, ok)
}

func TestResolverFunc(t *testing.T) {
	r := ResolverFunc(func(_ context.Context, token string) (*Identity, error) {
		return &Identity{UserID: token}, nil
	})

	id, err := r.Resolve(context.Background(), "u9")

	require.NoError(t, err)
	assert.Equal(t, "u9", id.UserID)
}
