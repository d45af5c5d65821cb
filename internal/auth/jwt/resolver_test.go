package jwt

import (
	"context"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/marketgw/internal/auth"
)

const testSecret = "test-secret-with-enough-entropy"

func sign(t *testing.T, alg jwa.SignatureAlgorithm, secret string, build func(*jwt.Builder) *jwt.Builder) string {
	t.Helper()

	tok, err := build(jwt.NewBuilder()).Build()
	require.NoError(t, err)

	signed, err := jwt.Sign(tok, jwt.WithKey(alg, []byte(secret)))
	require.NoError(t, err)
	return string(signed)
}

func validClaims(b *jwt.Builder) *jwt.Builder {
	return b.Subject("u1").
		Claim(ClaimEmail, "u1@example.com").
		Claim(ClaimRole, "seller").
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(time.Hour))
}

func TestNewLocalResolver(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		expectErr bool
	}{
		{name: "defaults to HS256", cfg: Config{Secret: testSecret}},
		{name: "HS512", cfg: Config{Secret: testSecret, Algorithm: "HS512"}},
		{name: "missing secret", cfg: Config{}, expectErr: true},
		{name: "asymmetric algorithm", cfg: Config{Secret: testSecret, Algorithm: "RS256"}, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewLocalResolver(tt.cfg)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, r)
		})
	}
}

func TestLocalResolver_ValidToken(t *testing.T) {
	r, err := NewLocalResolver(Config{Secret: testSecret})
	require.NoError(t, err)

	id, err := r.Resolve(context.Background(), sign(t, jwa.HS256, testSecret, validClaims))

	require.NoError(t, err)
	assert.Equal(t, &auth.Identity{UserID: "u1", Email: "u1@example.com", Role: "seller"}, id)
}

func TestLocalResolver_UserIDClaim(t *testing.T) {
	r, err := NewLocalResolver(Config{Secret: testSecret})
	require.NoError(t, err)

	token := sign(t, jwa.HS256, testSecret, func(b *jwt.Builder) *jwt.Builder {
		return b.Claim(ClaimUserID, "u7").Claim(ClaimRole, "buyer").Expiration(time.Now().Add(time.Hour))
	})

	id, err := r.Resolve(context.Background(), token)

	require.NoError(t, err)
	assert.Equal(t, "u7", id.UserID)
	assert.Equal(t, "buyer", id.Role)
}

func TestLocalResolver_Rejects(t *testing.T) {
	r, err := NewLocalResolver(Config{Secret: testSecret, Issuer: "users-service"})
	require.NoError(t, err)

	withIssuer := func(b *jwt.Builder) *jwt.Builder { return validClaims(b).Issuer("users-service") }

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "malformed", token: "not.a.jwt"},
		{name: "wrong secret", token: sign(t, jwa.HS256, "other-secret", withIssuer)},
		{name: "wrong algorithm", token: sign(t, jwa.HS384, testSecret, withIssuer)},
		{name: "wrong issuer", token: sign(t, jwa.HS256, testSecret, func(b *jwt.Builder) *jwt.Builder {
			return validClaims(b).Issuer("someone-else")
		})},
		{name: "expired", token: sign(t, jwa.HS256, testSecret, func(b *jwt.Builder) *jwt.Builder {
			return withIssuer(b).Expiration(time.Now().Add(-time.Hour))
		})},
		{name: "no subject", token: sign(t, jwa.HS256, testSecret, func(b *jwt.Builder) *jwt.Builder {
			return b.Issuer("users-service").Claim(ClaimRole, "admin").Expiration(time.Now().Add(time.Hour))
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := r.Resolve(context.Background(), tt.token)
			assert.Nil(t, id)
			assert.ErrorIs(t, err, auth.ErrAuthInvalid)
		})
	}
}

func TestLocalResolver_ClockSkew(t *testing.T) {
	r, err := NewLocalResolver(Config{Secret: testSecret, ClockSkew: time.Minute})
	require.NoError(t, err)

	token := sign(t, jwa.HS256, testSecret, func(b *jwt.Builder) *jwt.Builder {
		return validClaims(b).Expiration(time.Now().Add(-10 * time.Second))
	})

	id, err := r.Resolve(context.Background(), token)

	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
}
