// Package middleware provides the net/http middleware chain that wraps
// the gateway router.
//
// The chain is applied outermost first:
//
//	Recovery -> RequestID -> Logging -> Tracing -> Metrics -> BodyLimit -> router
//
// Route labels for logs and metrics are filled in by the router through
// SetRoute, so dynamic path segments never become label values.
package middleware
