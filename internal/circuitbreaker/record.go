package circuitbreaker

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time copy of one circuit's record.
type Snapshot struct {
	Key             string    `json:"key"`
	State           State     `json:"state"`
	FailureCount    int       `json:"failureCount"`
	LastFailureTime time.Time `json:"lastFailureTime,omitempty"`
	NextAttemptTime time.Time `json:"nextAttemptTime,omitempty"`
}

// transition describes a state change to be reported once the record
// lock is released.
type transition struct {
	from, to State
}

func (t transition) changed() bool {
	return t.from != t.to
}

// circuit is the mutable record behind one key. All fields are guarded by mu.
type circuit struct {
	key string

	mu           sync.Mutex
	state        State
	failureCount int
	lastFailure  time.Time
	nextAttempt  time.Time

	// probing is set while the single HALF_OPEN trial call is in flight.
	probing bool

	// lastUsed is guarded by Engine.mu.
	lastUsed time.Time
}

func newCircuit(key string) *circuit {
	return &circuit{key: key, state: StateClosed}
}

// admit decides whether a call may run the operation. probe reports
// whether the admitted call is the HALF_OPEN trial.
func (c *circuit) admit(now time.Time) (allowed, probe bool, tr transition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tr = transition{from: c.state, to: c.state}

	switch c.state {
	case StateClosed:
		return true, false, tr
	case StateOpen:
		if now.Before(c.nextAttempt) {
			return false, false, tr
		}
		c.state = StateHalfOpen
		c.probing = true
		tr.to = StateHalfOpen
		return true, true, tr
	case StateHalfOpen:
		if c.probing {
			return false, false, tr
		}
		c.probing = true
		return true, true, tr
	default:
		return false, false, tr
	}
}

// onSuccess closes the circuit and clears the failure count.
func (c *circuit) onSuccess(probe bool) transition {
	c.mu.Lock()
	defer c.mu.Unlock()

	tr := transition{from: c.state, to: StateClosed}
	c.state = StateClosed
	c.failureCount = 0
	if probe {
		c.probing = false
	}
	return tr
}

// onFailure counts a failure and opens the circuit when required.
func (c *circuit) onFailure(now time.Time, opts Options, probe bool) transition {
	c.mu.Lock()
	defer c.mu.Unlock()

	tr := transition{from: c.state, to: c.state}
	c.failureCount++
	c.lastFailure = now

	if probe {
		c.probing = false
	}

	switch {
	case probe && c.state == StateHalfOpen:
		c.state = StateOpen
		c.nextAttempt = now.Add(opts.ProbeResetDuration)
	case c.state == StateClosed && c.failureCount >= opts.FailureThreshold:
		c.state = StateOpen
		c.nextAttempt = now.Add(opts.OpenDuration)
	case c.state == StateHalfOpen:
		// A probe is in flight and decides the next state.
	default:
		next := now.Add(opts.ProbeResetDuration)
		if c.state == StateClosed || next.After(c.nextAttempt) {
			c.nextAttempt = next
		}
	}

	tr.to = c.state
	return tr
}

// release gives back a probe slot without recording an outcome.
func (c *circuit) release(probe bool) {
	if !probe {
		return
	}
	c.mu.Lock()
	c.probing = false
	c.mu.Unlock()
}

func (c *circuit) snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		Key:             c.key,
		State:           c.state,
		FailureCount:    c.failureCount,
		LastFailureTime: c.lastFailure,
		NextAttemptTime: c.nextAttempt,
	}
}

func (c *circuit) currentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
