// Package jwt resolves identities from signed JSON Web Tokens.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/vyrodovalexey/marketgw/internal/auth"
	"github.com/vyrodovalexey/marketgw/internal/observability"
)

// Claim names read from verified tokens.
const (
	ClaimEmail  = "email"
	ClaimRole   = "role"
	ClaimUserID = "userId"
)

var supportedAlgorithms = map[string]jwa.SignatureAlgorithm{
	"HS256": jwa.HS256,
	"HS384": jwa.HS384,
	"HS512": jwa.HS512,
}

// Config configures local token verification.
type Config struct {
	Secret    string
	Algorithm string
	Issuer    string
	Audience  string
	ClockSkew time.Duration
}

// LocalResolver verifies HMAC-signed tokens in-process.
type LocalResolver struct {
	parseOpts []jwt.ParseOption
	logger    observability.Logger
}

// Option configures a LocalResolver.
type Option func(*LocalResolver)

// WithLogger sets the logger used for rejected tokens.
func WithLogger(logger observability.Logger) Option {
	return func(r *LocalResolver) {
		r.logger = logger
	}
}

// NewLocalResolver creates a resolver for cfg.
func NewLocalResolver(cfg Config, opts ...Option) (*LocalResolver, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = "HS256"
	}
	alg, ok := supportedAlgorithms[cfg.Algorithm]
	if !ok {
		return nil, fmt.Errorf("unsupported jwt algorithm %q", cfg.Algorithm)
	}

	parseOpts := []jwt.ParseOption{
		jwt.WithKey(alg, []byte(cfg.Secret)),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(cfg.ClockSkew),
	}
	if cfg.Issuer != "" {
		parseOpts = append(parseOpts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		parseOpts = append(parseOpts, jwt.WithAudience(cfg.Audience))
	}

	r := &LocalResolver{
		parseOpts: parseOpts,
		logger:    observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve verifies token and maps its claims to an identity.
func (r *LocalResolver) Resolve(_ context.Context, token string) (*auth.Identity, error) {
	if token == "" {
		return nil, auth.ErrAuthInvalid
	}

	parsed, err := jwt.ParseString(token, r.parseOpts...)
	if err != nil {
		r.logger.Debug("token rejected", observability.Error(err))
		return nil, auth.ErrAuthInvalid
	}

	id := &auth.Identity{
		UserID: parsed.Subject(),
		Email:  stringClaim(parsed, ClaimEmail),
		Role:   stringClaim(parsed, ClaimRole),
	}
	if id.UserID == "" {
		id.UserID = stringClaim(parsed, ClaimUserID)
	}
	if id.UserID == "" {
		r.logger.Debug("token rejected", observability.String("reason", "missing subject"))
		return nil, auth.ErrAuthInvalid
	}

	return id, nil
}

func stringClaim(tok jwt.Token, name string) string {
	v, ok := tok.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
