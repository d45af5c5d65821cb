package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vyrodovalexey/marketgw/internal/observability"
)

// DefaultHealthTimeout bounds a single backend health probe.
const DefaultHealthTimeout = 3 * time.Second

// Health statuses.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

const maxHealthBody = 64 << 10

// HealthResult is the outcome of probing one backend.
type HealthResult struct {
	Backend string          `json:"backend"`
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Healthy reports whether the backend answered its probe.
func (r HealthResult) Healthy() bool {
	return r.Status == StatusHealthy
}

// HealthCheck probes GET <backend>/health. It never returns an error:
// unknown backends, transport failures and non-2xx answers all yield an
// unhealthy result. Probes bypass the circuit breaker.
func (d *Dispatcher) HealthCheck(ctx context.Context, backend string) HealthResult {
	result := HealthResult{Backend: backend, Status: StatusUnhealthy}

	b, ok := d.table.Lookup(backend)
	if !ok {
		result.Error = newUnknownBackendError(backend).Message
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, d.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.URL+"/health", http.NoBody)
	if err != nil {
		result.Error = err.Error()
		d.setHealth(backend, false)
		return result
	}

	resp, err := d.client.Do(req)
	if err != nil {
		result.Error = classify(ctx, b, req.URL.String(), err).Error()
		d.setHealth(backend, false)
		return result
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxHealthBody))
	if json.Valid(body) {
		result.Data = body
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result.Error = fmt.Sprintf("health endpoint answered %d", resp.StatusCode)
		d.setHealth(backend, false)
		return result
	}

	result.Status = StatusHealthy
	d.setHealth(backend, true)
	return result
}

// HealthCheckAll probes every configured backend concurrently. Results
// are ordered by backend name.
func (d *Dispatcher) HealthCheckAll(ctx context.Context) []HealthResult {
	names := d.table.Names()
	results := make([]HealthResult, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			results[i] = d.HealthCheck(gctx, name)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if !r.Healthy() {
			d.logger.Warn("backend unhealthy",
				observability.String("backend", r.Backend),
				observability.String("error", r.Error))
		}
	}
	return results
}

func (d *Dispatcher) setHealth(backend string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	d.metrics.healthStatus.WithLabelValues(backend).Set(v)
}
