// Package circuitbreaker provides the per-key circuit breaker engine
// that guards calls to backend services.
package circuitbreaker

import "time"

// Default option values.
const (
	DefaultFailureThreshold   = 5
	DefaultOpenDuration       = 60 * time.Second
	DefaultProbeResetDuration = 30 * time.Second
)

// Options configures a single guarded call.
type Options struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int

	// OpenDuration is how long a freshly opened circuit rejects calls
	// before admitting a probe.
	OpenDuration time.Duration

	// ProbeResetDuration is the cool-down reapplied on every failure
	// that does not itself open the circuit, including a failed probe.
	ProbeResetDuration time.Duration
}

// DefaultOptions returns Options with default values.
func DefaultOptions() Options {
	return Options{
		FailureThreshold:   DefaultFailureThreshold,
		OpenDuration:       DefaultOpenDuration,
		ProbeResetDuration: DefaultProbeResetDuration,
	}
}

// normalized replaces unset or invalid values with defaults.
func (o Options) normalized() Options {
	if o.FailureThreshold < 1 {
		o.FailureThreshold = DefaultFailureThreshold
	}
	if o.OpenDuration <= 0 {
		o.OpenDuration = DefaultOpenDuration
	}
	if o.ProbeResetDuration <= 0 {
		o.ProbeResetDuration = DefaultProbeResetDuration
	}
	return o
}

// WithFailureThreshold returns a copy with the failure threshold set.
func (o Options) WithFailureThreshold(n int) Options {
	o.FailureThreshold = n
	return o
}

// WithOpenDuration returns a copy with the open duration set.
func (o Options) WithOpenDuration(d time.Duration) Options {
	o.OpenDuration = d
	return o
}

// WithProbeResetDuration returns a copy with the probe reset duration set.
func (o Options) WithProbeResetDuration(d time.Duration) Options {
	o.ProbeResetDuration = d
	return o
}
