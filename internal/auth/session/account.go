package session

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/vyrodovalexey/marketgw/internal/auth"
	"github.com/vyrodovalexey/marketgw/internal/observability"
)

// AccountClient forwards login and registration to the identity backend.
// Bodies are passed through unchanged.
type AccountClient struct {
	client *client
}

// NewAccountClient creates an account client for the identity backend in cfg.
func NewAccountClient(cfg Config, opts ...Option) *AccountClient {
	return &AccountClient{client: newClient("identity-accounts", cfg, opts...)}
}

// Login posts credentials to /login and returns the backend's answer.
// Any failure is ErrAuthInvalid.
func (a *AccountClient) Login(ctx context.Context, credentials json.RawMessage) (json.RawMessage, error) {
	rep, err := a.client.do(ctx, http.MethodPost, "/login", credentials)
	if err != nil {
		a.client.logger.Debug("login failed", observability.Error(err))
		return nil, auth.ErrAuthInvalid
	}
	if rep.status < 200 || rep.status >= 300 {
		a.client.logger.Debug("login rejected", observability.Int("status", rep.status))
		return nil, auth.ErrAuthInvalid
	}
	return rep.body, nil
}

// Register posts a new account to /auth/register. A conflict is
// ErrRegistrationConflict, any other failure ErrAuthInvalid.
func (a *AccountClient) Register(ctx context.Context, account json.RawMessage) (json.RawMessage, error) {
	rep, err := a.client.do(ctx, http.MethodPost, "/auth/register", account)
	if err != nil {
		a.client.logger.Debug("registration failed", observability.Error(err))
		return nil, auth.ErrAuthInvalid
	}
	switch {
	case rep.status == http.StatusConflict:
		return nil, auth.ErrRegistrationConflict
	case rep.status < 200 || rep.status >= 300:
		a.client.logger.Debug("registration rejected", observability.Int("status", rep.status))
		return nil, auth.ErrAuthInvalid
	}
	return rep.body, nil
}
