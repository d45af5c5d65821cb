// Package proxy dispatches calls to named backend services through the
// circuit breaker engine and probes backend health.
//
// Every call to backend "orders" is guarded by the circuit
// "proxy-orders". A completed HTTP exchange is a success for the
// circuit whatever its status code; transport failures and timeouts are
// failures. WithServerErrorsAsFailures also counts 5xx answers.
package proxy
