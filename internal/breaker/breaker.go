// Package breaker implements the per-provider circuit breaker pattern: after
// a threshold of failures inside a sliding window the circuit opens, rejecting
// calls for a cool-down period, then admits a probe in half-open state.
package breaker

import (
	"sync"
	"time"

	"github.com/Shivay00001/aria-runtime/pkg/models"
)

// State is the breaker state.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Config configures a circuit breaker.
type Config struct {
	// FailureThreshold is the number of failures inside WindowSeconds that
	// open the circuit. Default 3.
	FailureThreshold int

	// Window is the sliding window over which failures are counted.
	// Default 60s.
	Window time.Duration

	// Recovery is how long the circuit stays open before the next state
	// query moves it to half-open. Default 120s.
	Recovery time.Duration
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.Window <= 0 {
		c.Window = 60 * time.Second
	}
	if c.Recovery <= 0 {
		c.Recovery = 120 * time.Second
	}
	return c
}

// CircuitBreaker guards one provider. Safe for concurrent use, though the
// kernel loop is single-threaded; the lock keeps the type reusable.
type CircuitBreaker struct {
	provider string
	config   Config

	mu       sync.Mutex
	state    State
	failures []time.Time
	openedAt time.Time
	now      func() time.Time
}

// New creates a closed breaker for the named provider.
func New(provider string, config Config) *CircuitBreaker {
	return &CircuitBreaker{
		provider: provider,
		config:   config.withDefaults(),
		state:    StateClosed,
		now:      time.Now,
	}
}

// Provider returns the guarded provider name.
func (cb *CircuitBreaker) Provider() string { return cb.provider }

// State returns the current state, lazily transitioning OPEN to HALF_OPEN
// once the recovery period has elapsed.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stateLocked()
}

func (cb *CircuitBreaker) stateLocked() State {
	if cb.state == StateOpen && !cb.openedAt.IsZero() {
		if cb.now().Sub(cb.openedAt) >= cb.config.Recovery {
			cb.state = StateHalfOpen
		}
	}
	return cb.state
}

// AllowRequest returns CircuitBreakerOpenError while the circuit is open.
// Closed and half-open circuits admit the request.
func (cb *CircuitBreaker) AllowRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.stateLocked() == StateOpen {
		return &models.CircuitBreakerOpenError{Provider: cb.provider}
	}
	return nil
}

// RecordSuccess clears the failure window. In half-open state it closes the
// circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = cb.failures[:0]
	if cb.state == StateHalfOpen {
		cb.state = StateClosed
		cb.openedAt = time.Time{}
	}
}

// RecordFailure appends a failure timestamp, evicting entries older than the
// window. Crossing the threshold opens the circuit. A half-open failure
// reopens immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	now := cb.now()

	if cb.stateLocked() == StateHalfOpen {
		cb.openedAt = now
		cb.state = StateOpen
		return
	}

	kept := cb.failures[:0]
	for _, t := range cb.failures {
		if now.Sub(t) < cb.config.Window {
			kept = append(kept, t)
		}
	}
	cb.failures = append(kept, now)

	if len(cb.failures) >= cb.config.FailureThreshold {
		cb.openedAt = now
		cb.state = StateOpen
		cb.failures = cb.failures[:0]
	}
}

// Reset forces the breaker closed and clears all counters. Idempotent.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = cb.failures[:0]
	cb.openedAt = time.Time{}
}

// Stats is a point-in-time snapshot for diagnostics.
type Stats struct {
	Provider     string
	State        State
	FailureCount int
	OpenedAt     time.Time
}

// Stats returns a snapshot of the breaker.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Stats{
		Provider:     cb.provider,
		State:        cb.stateLocked(),
		FailureCount: len(cb.failures),
		OpenedAt:     cb.openedAt,
	}
}
