package gateway

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/marketgw/internal/auth"
	"github.com/vyrodovalexey/marketgw/internal/cache"
	"github.com/vyrodovalexey/marketgw/internal/circuitbreaker"
	"github.com/vyrodovalexey/marketgw/internal/middleware"
	"github.com/vyrodovalexey/marketgw/internal/proxy"
)

// Forwarding headers added to dispatched calls.
const (
	headerXForwardedFor   = "X-Forwarded-For"
	headerXForwardedHost  = "X-Forwarded-Host"
	headerXForwardedProto = "X-Forwarded-Proto"
)

// handleProxy serves configured prefix routes.
func (g *Gateway) handleProxy(c *gin.Context) {
	rt, ok := g.routes.match(c.Request.URL.Path)
	if !ok {
		abortWithError(c, http.StatusNotFound, "no route for "+c.Request.URL.Path)
		return
	}
	middleware.SetRoute(c.Request.Context(), rt.Prefix)

	var identity *auth.Identity
	if !rt.Public {
		id, err := g.authenticate(c)
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, auth.ErrAuthInvalid.Error())
			return
		}
		if len(rt.Roles) > 0 && !id.HasRole(rt.Roles...) {
			abortWithError(c, http.StatusForbidden, auth.ErrForbidden.Error())
			return
		}
		identity = id
	}

	body, ok := readBody(c)
	if !ok {
		return
	}

	req := proxy.Request{
		Backend:  rt.Backend,
		Method:   c.Request.Method,
		Path:     rt.target(c.Request.URL.Path),
		Query:    c.Request.URL.RawQuery,
		Body:     body,
		Header:   forwardedHeader(c.Request),
		Identity: identity,
		Retries:  rt.Retries,
	}
	if rt.Cache && isCacheable(c.Request.Method) {
		var userID string
		if identity != nil {
			userID = identity.UserID
		}
		req.CacheKey = cache.ResponseKey(rt.Backend, req.Method, req.Path, req.Query, userID)
	}

	out := g.dispatcher.Dispatch(c.Request.Context(), req)
	switch out.Kind {
	case circuitbreaker.OutcomeSuccess:
		writeResponse(c, out.Value)
	case circuitbreaker.OutcomeFallbackUsed:
		c.Header(HeaderFallback, "true")
		writeResponse(c, out.Value)
	default:
		abortWithError(c, statusFor(out.Err), publicMessage(out.Err))
	}
}

func writeResponse(c *gin.Context, resp *proxy.Response) {
	if resp == nil {
		c.Status(http.StatusNoContent)
		return
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}

	header := c.Writer.Header()
	for name, values := range resp.Header {
		if strings.EqualFold(name, "Content-Length") {
			continue
		}
		for _, v := range values {
			header.Add(name, v)
		}
	}

	c.Status(status)
	c.Writer.WriteHeaderNow()
	if len(resp.Body) > 0 && c.Request.Method != http.MethodHead {
		_, _ = c.Writer.Write(resp.Body)
	}
}

// forwardedHeader copies the inbound headers and appends the
// X-Forwarded-* set.
func forwardedHeader(r *http.Request) http.Header {
	h := r.Header.Clone()

	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		if prior := h.Get(headerXForwardedFor); prior != "" {
			ip = prior + ", " + ip
		}
		h.Set(headerXForwardedFor, ip)
	}
	if h.Get(headerXForwardedHost) == "" {
		h.Set(headerXForwardedHost, r.Host)
	}
	if h.Get(headerXForwardedProto) == "" {
		proto := "http"
		if r.TLS != nil {
			proto = "https"
		}
		h.Set(headerXForwardedProto, proto)
	}
	return h
}

func isCacheable(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}
