package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/marketgw/internal/auth"
)

func newIdentityBackend(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteResolver_ValidSession(t *testing.T) {
	var gotPath string
	srv := newIdentityBackend(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"valid":true,"user":{"id":"u1","email":"u1@example.com","role":"seller","status":"active"}}`))
	})
	r := NewRemoteResolver(Config{BaseURL: srv.URL + "/"})

	id, err := r.Resolve(context.Background(), "tok/123")

	require.NoError(t, err)
	assert.Equal(t, &auth.Identity{UserID: "u1", Email: "u1@example.com", Role: "seller"}, id)
	assert.Equal(t, "/sessions/validate/tok%2F123", gotPath)
}

func TestRemoteResolver_NumericUserID(t *testing.T) {
	srv := newIdentityBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"valid":true,"user":{"id":42,"email":"a@b.c","role":"admin"}}`))
	})
	r := NewRemoteResolver(Config{BaseURL: srv.URL})

	id, err := r.Resolve(context.Background(), "tok")

	require.NoError(t, err)
	assert.Equal(t, "42", id.UserID)
}

func TestRemoteResolver_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		token   string
		timeout time.Duration
		delay   time.Duration
	}{
		{name: "empty token", status: http.StatusOK, body: `{"valid":true,"user":{"id":"u1"}}`},
		{name: "invalid session", status: http.StatusOK, body: `{"valid":false,"user":null}`, token: "t"},
		{name: "missing user", status: http.StatusOK, body: `{"valid":true}`, token: "t"},
		{name: "not found", status: http.StatusNotFound, body: `{}`, token: "t"},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{}`, token: "t"},
		{name: "server error", status: http.StatusInternalServerError, body: `{}`, token: "t"},
		{name: "malformed body", status: http.StatusOK, body: `not json`, token: "t"},
		{
			name: "timeout", status: http.StatusOK, body: `{"valid":true,"user":{"id":"u1"}}`, token: "t",
			timeout: 20 * time.Millisecond, delay: 200 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newIdentityBackend(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.delay > 0 {
					select {
					case <-time.After(tt.delay):
					case <-r.Context().Done():
						return
					}
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			r := NewRemoteResolver(Config{BaseURL: srv.URL, Timeout: tt.timeout})

			id, err := r.Resolve(context.Background(), tt.token)

			assert.Nil(t, id)
			assert.ErrorIs(t, err, auth.ErrAuthInvalid)
		})
	}
}

func TestRemoteResolver_UnreachableBackendOpensBreaker(t *testing.T) {
	var calls int32
	srv := newIdentityBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})
	r := NewRemoteResolver(Config{BaseURL: srv.URL, FailureThreshold: 2, OpenTimeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := r.Resolve(ctx, "t")
		assert.ErrorIs(t, err, auth.ErrAuthInvalid)
	}
	assert.Equal(t, gobreaker.StateOpen, r.BreakerState())

	_, err := r.Resolve(ctx, "t")
	assert.ErrorIs(t, err, auth.ErrAuthInvalid)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "open breaker fails fast")
}

func TestRemoteResolver_RejectedTokensDoNotTripBreaker(t *testing.T) {
	srv := newIdentityBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	r := NewRemoteResolver(Config{BaseURL: srv.URL, FailureThreshold: 1})

	for i := 0; i < 3; i++ {
		_, err := r.Resolve(context.Background(), "t")
		assert.ErrorIs(t, err, auth.ErrAuthInvalid)
	}

	assert.Equal(t, gobreaker.StateClosed, r.BreakerState())
}

func TestAccountClient_Login(t *testing.T) {
	var gotBody map[string]string
	srv := newIdentityBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/login", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"accessToken":"tok","user":{"id":"u1"}}`))
	})
	a := NewAccountClient(Config{BaseURL: srv.URL})

	body, err := a.Login(context.Background(), json.RawMessage(`{"email":"a@b.c","password":"secret"}`))

	require.NoError(t, err)
	assert.JSONEq(t, `{"accessToken":"tok","user":{"id":"u1"}}`, string(body))
	assert.Equal(t, "a@b.c", gotBody["email"])
}

func TestAccountClient_LoginRejected(t *testing.T) {
	srv := newIdentityBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	a := NewAccountClient(Config{BaseURL: srv.URL})

	_, err := a.Login(context.Background(), json.RawMessage(`{}`))

	assert.ErrorIs(t, err, auth.ErrAuthInvalid)
}

func TestAccountClient_Register(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		expectErr error
	}{
		{name: "created", status: http.StatusCreated},
		{name: "conflict", status: http.StatusConflict, expectErr: auth.ErrRegistrationConflict},
		{name: "bad request", status: http.StatusBadRequest, expectErr: auth.ErrAuthInvalid},
		{name: "server error", status: http.StatusServiceUnavailable, expectErr: auth.ErrAuthInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newIdentityBackend(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/auth/register", r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"id":"u2"}`))
			})
			a := NewAccountClient(Config{BaseURL: srv.URL})

			body, err := a.Register(context.Background(), json.RawMessage(`{"email":"n@b.c"}`))

			if tt.expectErr != nil {
				assert.ErrorIs(t, err, tt.expectErr)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, `{"id":"u2"}`, string(body))
		})
	}
}
