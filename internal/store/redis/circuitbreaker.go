package redis

import (
	"errors"
	"sync"
	"time"
)

// State is the position of a CircuitBreaker. The numeric values are what the
// breaker gauge exports.
type State int

const (
	StateClosed   State = 0
	StateOpen     State = 1
	StateHalfOpen State = 2
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrCircuitOpen is returned without calling Redis while the breaker is open,
// or while a half-open probe is already in flight.
var ErrCircuitOpen = errors.New("redis circuit breaker is open")

// BreakerStats is a point-in-time view of a CircuitBreaker.
type BreakerStats struct {
	State        State     `json:"state"`
	Failures     int       `json:"consecutive_failures"`
	Trips        int64     `json:"trips"`
	Rejected     int64     `json:"rejected"`
	LastFailure  time.Time `json:"last_failure,omitempty"`
	LastErrorMsg string    `json:"last_error,omitempty"`
}

// CircuitBreaker guards the mirror's Redis calls so an unreachable server
// costs one failed round trip per cool-down instead of one per event.
//
// Closed counts consecutive failures and opens at maxFailures. Open rejects
// until cooldown has passed since the last failure, then admits a single
// half-open probe whose outcome closes or reopens the breaker.
type CircuitBreaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	maxFailures int
	cooldown    time.Duration
	probing     bool
	lastFailure time.Time
	lastErr     error
	trips       int64
	rejected    int64
	now         func() time.Time

	// OnStateChange, when set, runs after every transition outside the lock.
	OnStateChange func(from, to State)
}

// NewCircuitBreaker opens after maxFailures consecutive failures and probes
// again once cooldown has elapsed.
func NewCircuitBreaker(maxFailures int, cooldown time.Duration) *CircuitBreaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// Execute calls fn unless the breaker rejects it, and records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, changes, err := cb.admit()
	cb.notify(changes)
	if err != nil {
		return err
	}
	err = fn()
	cb.notify(cb.record(probe, err))
	return err
}

type transition struct{ from, to State }

func (cb *CircuitBreaker) admit() (probe bool, changes []transition, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.lastFailure) >= cb.cooldown {
		changes = append(changes, cb.setState(StateHalfOpen))
	}
	switch cb.state {
	case StateOpen:
		cb.rejected++
		return false, changes, ErrCircuitOpen
	case StateHalfOpen:
		if cb.probing {
			cb.rejected++
			return false, changes, ErrCircuitOpen
		}
		cb.probing = true
		return true, changes, nil
	}
	return false, changes, nil
}

func (cb *CircuitBreaker) record(probe bool, err error) []transition {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.probing = false
	}
	if err == nil {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			return []transition{cb.setState(StateClosed)}
		}
		return nil
	}

	cb.failures++
	cb.lastFailure = cb.now()
	cb.lastErr = err
	if cb.state == StateHalfOpen || (cb.state == StateClosed && cb.failures >= cb.maxFailures) {
		cb.trips++
		return []transition{cb.setState(StateOpen)}
	}
	return nil
}

func (cb *CircuitBreaker) setState(to State) transition {
	t := transition{from: cb.state, to: to}
	cb.state = to
	return t
}

func (cb *CircuitBreaker) notify(changes []transition) {
	if cb.OnStateChange == nil {
		return
	}
	for _, t := range changes {
		cb.OnStateChange(t.from, t.to)
	}
}

// CurrentState reports the breaker state without advancing it.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns counters for the health report.
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	s := BreakerStats{
		State:       cb.state,
		Failures:    cb.failures,
		Trips:       cb.trips,
		Rejected:    cb.rejected,
		LastFailure: cb.lastFailure,
	}
	if cb.lastErr != nil {
		s.LastErrorMsg = cb.lastErr.Error()
	}
	return s
}
