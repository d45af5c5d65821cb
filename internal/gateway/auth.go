package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/marketgw/internal/auth"
	"github.com/vyrodovalexey/marketgw/internal/middleware"
	"github.com/vyrodovalexey/marketgw/internal/observability"
)

const identityKey = "identity"

// authenticate resolves the bearer token of the request. Every failure
// collapses to ErrAuthInvalid; the cause is logged at debug.
func (g *Gateway) authenticate(c *gin.Context) (*auth.Identity, error) {
	if g.resolver == nil {
		return nil, auth.ErrAuthInvalid
	}

	token, err := auth.ExtractBearerToken(c.GetHeader("Authorization"))
	if err != nil {
		g.logger.Debug("missing bearer token", observability.String("path", c.Request.URL.Path))
		return nil, auth.ErrAuthInvalid
	}

	id, err := g.resolver.Resolve(c.Request.Context(), token)
	if err != nil || id == nil {
		g.logger.Debug("token rejected",
			observability.String("path", c.Request.URL.Path),
			observability.Error(err))
		return nil, auth.ErrAuthInvalid
	}

	ctx := auth.ContextWithIdentity(c.Request.Context(), id)
	ctx = observability.ContextWithUserID(ctx, id.UserID)
	middleware.SetUserID(ctx, id.UserID)
	c.Request = c.Request.WithContext(ctx)
	c.Set(identityKey, id)

	return id, nil
}

// RequireIdentity returns a gin middleware that rejects requests
// without a valid bearer token with 401.
func (g *Gateway) RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := g.authenticate(c); err != nil {
			abortWithError(c, http.StatusUnauthorized, auth.ErrAuthInvalid.Error())
			return
		}
		c.Next()
	}
}

// RequireRoles returns a gin middleware that rejects authenticated
// callers whose role is not among roles with 403. It must run after
// RequireIdentity.
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identityFrom(c)
		if !id.HasRole(roles...) {
			abortWithError(c, http.StatusForbidden, auth.ErrForbidden.Error())
			return
		}
		c.Next()
	}
}

func identityFrom(c *gin.Context) *auth.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	id, _ := v.(*auth.Identity)
	return id
}
