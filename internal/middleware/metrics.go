package middleware

import (
	"net/http"
	"time"

	"github.com/vyrodovalexey/marketgw/internal/observability"
)

// Metrics returns a middleware that records request counts and
// latencies by route label.
func Metrics(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			r = r.WithContext(withRequestInfo(r.Context()))
			rw := wrap(w)

			metrics.RequestStarted()
			next.ServeHTTP(rw, r)
			metrics.RecordRequest(r.Method, RouteFromContext(r.Context()), rw.status, time.Since(start))
		})
	}
}
