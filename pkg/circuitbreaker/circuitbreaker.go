// Package circuitbreaker stops calling a dependency that keeps failing and
// probes it again after a cooldown. The engine wraps each notification sink
// in one so a dead webhook or queue fails fast instead of holding workers.
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
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned without calling through while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrTooManyRequests is returned while a half-open probe is already in flight.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// ══════════════════════════════════════════════════════════════════════════════
// SETTINGS
// ══════════════════════════════════════════════════════════════════════════════

// Settings tunes a breaker. Zero fields take the defaults of DefaultSettings.
type Settings struct {
	Name string

	// TripAfter consecutive failures open a closed breaker.
	TripAfter int

	// CloseAfter consecutive half-open successes close it again.
	CloseAfter int

	// Cooldown is how long an open breaker rejects calls before probing.
	Cooldown time.Duration

	// Probes is how many calls may run at once while half-open.
	Probes int

	// OnStateChange runs under the breaker's lock; keep it short.
	OnStateChange func(name string, from, to State)

	// Counts decides whether an error is the dependency's fault. Context
	// cancellation never counts.
	Counts func(error) bool
}

// DefaultSettings returns the defaults used for unset fields.
func DefaultSettings(name string) Settings {
	return Settings{
		Name:       name,
		TripAfter:  5,
		CloseAfter: 2,
		Cooldown:   30 * time.Second,
		Probes:     1,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BREAKER
// ══════════════════════════════════════════════════════════════════════════════

// CircuitBreaker is safe for concurrent use.
type CircuitBreaker struct {
	s Settings

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	probes    int
	openedAt  time.Time
}

// New creates a closed breaker.
func New(s Settings) *CircuitBreaker {
	def := DefaultSettings(s.Name)
	if s.TripAfter <= 0 {
		s.TripAfter = def.TripAfter
	}
	if s.CloseAfter <= 0 {
		s.CloseAfter = def.CloseAfter
	}
	if s.Cooldown <= 0 {
		s.Cooldown = def.Cooldown
	}
	if s.Probes <= 0 {
		s.Probes = def.Probes
	}
	return &CircuitBreaker{s: s}
}

// NotifierBreaker guards one notification sink. A single successful probe
// closes it; while open, deliveries fail fast and get parked for redelivery.
func NotifierBreaker(sink string, cooldown time.Duration, onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New(Settings{
		Name:          "notifier-" + sink,
		TripAfter:     5,
		CloseAfter:    1,
		Cooldown:      cooldown,
		Probes:        1,
		OnStateChange: onStateChange,
	})
}

// Execute calls fn unless the breaker is open, and records the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(time.Now()); err != nil {
		return err
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit(now time.Time) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if now.Sub(cb.openedAt) < cb.s.Cooldown {
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		cb.probes = 1
		return nil
	default:
		if cb.probes >= cb.s.Probes {
			return ErrTooManyRequests
		}
		cb.probes++
		return nil
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	failed := err != nil && !errors.Is(err, context.Canceled)
	if failed && cb.s.Counts != nil {
		failed = cb.s.Counts(err)
	}

	if cb.state == StateHalfOpen && cb.probes > 0 {
		cb.probes--
	}

	if !failed {
		cb.failures = 0
		cb.successes++
		if cb.state == StateHalfOpen && cb.successes >= cb.s.CloseAfter {
			cb.transition(StateClosed)
		}
		return
	}

	cb.successes = 0
	cb.failures++
	if cb.state == StateHalfOpen || (cb.state == StateClosed && cb.failures >= cb.s.TripAfter) {
		cb.transition(StateOpen)
		cb.openedAt = time.Now()
	}
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.failures, cb.successes, cb.probes = 0, 0, 0
	if cb.s.OnStateChange != nil {
		cb.s.OnStateChange(cb.s.Name, from, to)
	}
}

// State returns the current state. An open breaker whose cooldown has
// elapsed still reports open until the next call probes it.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Name returns the breaker's name.
func (cb *CircuitBreaker) Name() string {
	return cb.s.Name
}
