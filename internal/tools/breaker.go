// Package tools catalogs invocable tools, ranks them against task
// requirements, and tracks per-tool circuit breaker state.
package tools

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker state for a tool.
type BreakerState string

const (
	// BreakerClosed admits all calls.
	BreakerClosed BreakerState = "closed"
	// BreakerOpen rejects all calls until the cooldown elapses.
	BreakerOpen BreakerState = "open"
	// BreakerHalfOpen admits exactly one trial call.
	BreakerHalfOpen BreakerState = "half_open"
)

// breaker is the shared per-tool failure-tracking state. There is exactly
// one breaker per tool ID, shared by every executor invoking that tool.
type breaker struct {
	state               BreakerState
	consecutiveFailures int
	lastTransition      time.Time
	probeInFlight       bool
}

// BreakerRegistry holds one internally-synchronized breaker per tool ID.
type BreakerRegistry struct {
	threshold int
	cooldown  time.Duration

	// breakers maps tool IDs to their single shared breaker.
	breakers map[string]*breaker
	// mu protects breakers and each breaker's fields.
	mu sync.Mutex

	// now is replaceable for tests.
	now func() time.Time
	// onTransition, if set, is called after open/close transitions.
	onTransition func(toolID string, state BreakerState)
}

// NewBreakerRegistry creates a BreakerRegistry. The breaker for a tool opens
// after threshold consecutive failures and allows one trial call after
// cooldown.
func NewBreakerRegistry(threshold int, cooldown time.Duration) *BreakerRegistry {
	if threshold < 1 {
		threshold = 1
	}
	return &BreakerRegistry{
		threshold: threshold,
		cooldown:  cooldown,
		breakers:  make(map[string]*breaker),
		now:       time.Now,
	}
}

// Retune replaces the threshold and cooldown, for config hot reload.
// Existing breaker state is kept; the new values apply from the next
// failure or cooldown check.
func (r *BreakerRegistry) Retune(threshold int, cooldown time.Duration) {
	if threshold < 1 {
		threshold = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.threshold = threshold
	r.cooldown = cooldown
}

// OnTransition registers a callback invoked after a breaker opens or closes.
func (r *BreakerRegistry) OnTransition(fn func(toolID string, state BreakerState)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onTransition = fn
}

func (r *BreakerRegistry) get(toolID string) *breaker {
	b := r.breakers[toolID]
	if b == nil {
		b = &breaker{state: BreakerClosed}
		r.breakers[toolID] = b
	}
	return b
}

// State returns the current breaker state for a tool. An open breaker whose
// cooldown has elapsed reports half_open.
func (r *BreakerRegistry) State(toolID string) BreakerState {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.get(toolID)
	if b.state == BreakerOpen && r.now().Sub(b.lastTransition) >= r.cooldown {
		return BreakerHalfOpen
	}
	return b.state
}

// Selectable reports whether the selector may offer the tool: closed tools
// always, half-open tools only while no trial call is in flight.
func (r *BreakerRegistry) Selectable(toolID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.get(toolID)
	switch b.state {
	case BreakerClosed:
		return true
	case BreakerHalfOpen:
		return !b.probeInFlight
	case BreakerOpen:
		return r.now().Sub(b.lastTransition) >= r.cooldown
	default:
		return false
	}
}

// Allow reports whether a call to the tool may proceed now. When an open
// breaker's cooldown has elapsed, the first Allow claims the single
// half-open trial slot; further calls are rejected until the trial resolves.
func (r *BreakerRegistry) Allow(toolID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.get(toolID)
	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if r.now().Sub(b.lastTransition) < r.cooldown {
			return false
		}
		b.state = BreakerHalfOpen
		b.lastTransition = r.now()
		b.probeInFlight = true
		return true
	case BreakerHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	default:
		return false
	}
}

// RecordSuccess resets the failure count and closes the breaker. A
// successful half-open trial closes it.
func (r *BreakerRegistry) RecordSuccess(toolID string) {
	r.mu.Lock()
	b := r.get(toolID)
	wasOpen := b.state != BreakerClosed
	b.consecutiveFailures = 0
	b.probeInFlight = false
	b.state = BreakerClosed
	if wasOpen {
		b.lastTransition = r.now()
	}
	fn := r.onTransition
	r.mu.Unlock()

	if wasOpen && fn != nil {
		fn(toolID, BreakerClosed)
	}
}

// RecordFailure increments the consecutive failure count. Crossing the
// threshold opens the breaker; a failed half-open trial re-opens it.
func (r *BreakerRegistry) RecordFailure(toolID string) {
	r.mu.Lock()
	b := r.get(toolID)
	b.consecutiveFailures++
	b.probeInFlight = false

	opened := false
	if b.state == BreakerHalfOpen || b.consecutiveFailures >= r.threshold {
		if b.state != BreakerOpen {
			opened = true
		}
		b.state = BreakerOpen
		b.lastTransition = r.now()
	}
	fn := r.onTransition
	r.mu.Unlock()

	if opened && fn != nil {
		fn(toolID, BreakerOpen)
	}
}

// setNow replaces the clock for tests.
func (r *BreakerRegistry) setNow(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}
