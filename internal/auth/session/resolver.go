package session

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/marketgw/internal/auth"
	"github.com/vyrodovalexey/marketgw/internal/observability"
)

// validation is the identity backend's answer to a session lookup.
type validation struct {
	Valid bool `json:"valid"`
	User  *struct {
		ID    userID `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
}

// userID accepts both string and numeric ids.
type userID string

func (u *userID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*u = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*u = userID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*u = userID(n.String())
	return nil
}

// RemoteResolver validates session tokens against the identity backend.
type RemoteResolver struct {
	client *client
}

// NewRemoteResolver creates a resolver for the identity backend in cfg.
func NewRemoteResolver(cfg Config, opts ...Option) *RemoteResolver {
	return &RemoteResolver{client: newClient("identity-sessions", cfg, opts...)}
}

// Resolve looks the token up with GET /sessions/validate/<token>.
func (r *RemoteResolver) Resolve(ctx context.Context, token string) (*auth.Identity, error) {
	if token == "" {
		return nil, auth.ErrAuthInvalid
	}

	rep, err := r.client.do(ctx, http.MethodGet, "/sessions/validate/"+url.PathEscape(token), nil)
	if err != nil {
		r.client.logger.Debug("session validation failed", observability.Error(err))
		return nil, auth.ErrAuthInvalid
	}
	if rep.status < 200 || rep.status >= 300 {
		r.client.logger.Debug("session rejected", observability.Int("status", rep.status))
		return nil, auth.ErrAuthInvalid
	}

	var v validation
	if err := json.Unmarshal(rep.body, &v); err != nil {
		r.client.logger.Debug("malformed session validation response", observability.Error(err))
		return nil, auth.ErrAuthInvalid
	}
	if !v.Valid || v.User == nil || v.User.ID == "" {
		return nil, auth.ErrAuthInvalid
	}

	return &auth.Identity{
		UserID: string(v.User.ID),
		Email:  v.User.Email,
		Role:   v.User.Role,
	}, nil
}

// BreakerState reports the identity backend breaker state.
func (r *RemoteResolver) BreakerState() gobreaker.State {
	return r.client.State()
}
