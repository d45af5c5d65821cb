package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/marketgw/internal/auth"
	"github.com/vyrodovalexey/marketgw/internal/circuitbreaker"
	"github.com/vyrodovalexey/marketgw/internal/middleware"
	"github.com/vyrodovalexey/marketgw/internal/observability"
	"github.com/vyrodovalexey/marketgw/internal/proxy"
)

// Gateway health statuses.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
)

type healthResponse struct {
	Status   string               `json:"status"`
	Backends []proxy.HealthResult `json:"backends"`
}

func (g *Gateway) handleLogin(c *gin.Context) {
	middleware.SetRoute(c.Request.Context(), "/auth/login")
	g.forwardAccount(c, http.StatusOK, AccountService.Login)
}

func (g *Gateway) handleRegister(c *gin.Context) {
	middleware.SetRoute(c.Request.Context(), "/auth/register")
	g.forwardAccount(c, http.StatusCreated, AccountService.Register)
}

type accountCall func(AccountService, context.Context, json.RawMessage) (json.RawMessage, error)

func (g *Gateway) forwardAccount(c *gin.Context, status int, call accountCall) {
	if g.accounts == nil {
		abortWithError(c, http.StatusServiceUnavailable, "identity backend is not configured")
		return
	}

	body, ok := readBody(c)
	if !ok {
		return
	}
	if !json.Valid(body) {
		abortWithError(c, http.StatusBadRequest, "request body must be JSON")
		return
	}

	answer, err := call(g.accounts, c.Request.Context(), body)
	if err != nil {
		if errors.Is(err, auth.ErrRegistrationConflict) {
			abortWithError(c, http.StatusConflict, err.Error())
			return
		}
		abortWithError(c, http.StatusUnauthorized, auth.ErrAuthInvalid.Error())
		return
	}

	c.Data(status, "application/json", answer)
}

func (g *Gateway) handleHealthAll(c *gin.Context) {
	middleware.SetRoute(c.Request.Context(), "/health")

	results := g.dispatcher.HealthCheckAll(c.Request.Context())
	status := statusOK
	for _, r := range results {
		if !r.Healthy() {
			status = statusDegraded
			break
		}
	}

	c.JSON(http.StatusOK, healthResponse{Status: status, Backends: results})
}

func (g *Gateway) handleHealth(c *gin.Context) {
	middleware.SetRoute(c.Request.Context(), "/health/:backend")

	backend := c.Param("backend")
	if _, ok := g.dispatcher.Table().Lookup(backend); !ok {
		abortWithError(c, http.StatusNotFound, "backend "+backend+" is not configured")
		return
	}

	result := g.dispatcher.HealthCheck(c.Request.Context(), backend)
	status := http.StatusOK
	if !result.Healthy() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, result)
}

func (g *Gateway) handleListCircuits(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"circuits": g.circuits.Snapshots()})
}

func (g *Gateway) handleGetCircuit(c *gin.Context) {
	snap, ok := g.circuits.Snapshot(c.Param("key"))
	if !ok {
		abortWithError(c, http.StatusNotFound, "no circuit named "+c.Param("key"))
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (g *Gateway) handleResetCircuit(c *gin.Context) {
	key := c.Param("key")
	if !g.circuits.Reset(key) {
		abortWithError(c, http.StatusNotFound, "no circuit named "+key)
		return
	}

	g.logger.Info("circuit reset",
		observability.String("name", key),
		observability.String("by", identityFrom(c).UserID))
	c.JSON(http.StatusOK, gin.H{"key": key, "state": circuitbreaker.StateClosed})
}

func (g *Gateway) handleResetAllCircuits(c *gin.Context) {
	g.circuits.ResetAll()
	g.logger.Info("all circuits reset", observability.String("by", identityFrom(c).UserID))
	c.Status(http.StatusNoContent)
}

// readBody buffers the request body. An oversized body aborts with 413.
func readBody(c *gin.Context) ([]byte, bool) {
	if c.Request.Body == nil {
		return nil, true
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abortWithError(c, http.StatusRequestEntityTooLarge, err.Error())
			return nil, false
		}
		abortWithError(c, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}
	return body, true
}
