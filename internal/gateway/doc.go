// Package gateway serves the public HTTP surface: authentication
// endpoints, backend health, circuit administration and the configured
// prefix routes that are dispatched to backends.
package gateway
