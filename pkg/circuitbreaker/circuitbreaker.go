// Package circuitbreaker stops calls to a dependency that keeps failing and
// lets a single trial through after a cooldown. The service puts one in
// front of the event broker so a broker outage does not stall event
// handlers on retries.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State of a breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
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

// ErrCircuitOpen is returned without calling the dependency.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Settings configures New.
type Settings struct {
	Name string

	// Threshold consecutive failures open the breaker. Default 5.
	Threshold int

	// Cooldown is how long the breaker stays open before a trial. Default 30s.
	Cooldown time.Duration

	OnStateChange func(name string, from, to State)
}

// CircuitBreaker is safe for concurrent use.
type CircuitBreaker struct {
	settings Settings
	now      func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	inTrial  bool
}

func New(s Settings) *CircuitBreaker {
	if s.Threshold <= 0 {
		s.Threshold = 5
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	return &CircuitBreaker{settings: s, now: time.Now}
}

// ForBroker is the breaker used by the event forwarder.
func ForBroker(onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New(Settings{
		Name:          "event-broker",
		Threshold:     5,
		Cooldown:      30 * time.Second,
		OnStateChange: onStateChange,
	})
}

// Execute calls fn unless the breaker is open. A fn that fails because the
// caller's ctx ended is not held against the dependency.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	trial, err := cb.admit()
	if err != nil {
		return err
	}

	err = fn(ctx)
	cb.record(trial, err, ctx.Err() != nil)
	return err
}

func (cb *CircuitBreaker) admit() (trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return false, nil
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.settings.Cooldown {
			return false, ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
	}

	// Half-open: one trial at a time.
	if cb.inTrial {
		return false, ErrCircuitOpen
	}
	cb.inTrial = true
	return true, nil
}

func (cb *CircuitBreaker) record(trial bool, err error, callerGaveUp bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if trial {
		cb.inTrial = false
	}

	switch {
	case err == nil:
		cb.failures = 0
		if trial {
			cb.transition(StateClosed)
		}
	case callerGaveUp:
		// Neither success nor failure; a trial slot is simply released.
	case trial:
		cb.trip()
	default:
		cb.failures++
		if cb.state == StateClosed && cb.failures >= cb.settings.Threshold {
			cb.trip()
		}
	}
}

func (cb *CircuitBreaker) trip() {
	cb.openedAt = cb.now()
	cb.failures = 0
	cb.transition(StateOpen)
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.settings.OnStateChange != nil {
		cb.settings.OnStateChange(cb.settings.Name, from, to)
	}
}

// State reports the current state without admitting a trial.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Name() string { return cb.settings.Name }
