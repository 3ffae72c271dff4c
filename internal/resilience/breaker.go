// Package resilience provides the circuit breaker that guards calls to the
// remote conversation service. When the service fails repeatedly, the breaker
// opens and callers fail fast instead of paying a full timeout on every turn —
// the voice layer then substitutes its canned fallback responses.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] without invoking the call while the
// breaker is open and the cool-down has not yet elapsed.
var ErrOpen = errors.New("backend circuit is open")

// State represents the current operating mode of a [Breaker].
type State int

const (
	// StateClosed is the normal operating state — calls are forwarded.
	StateClosed State = iota

	// StateOpen means the breaker has tripped; calls are rejected with
	// [ErrOpen] until the cool-down elapses.
	StateOpen

	// StateHalfOpen allows a single probe call after the cool-down. Success
	// closes the breaker, failure re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
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

// Config holds tuning knobs for a [Breaker].
type Config struct {
	// Name is a human-readable label used in log messages.
	Name string

	// MaxFailures is the number of consecutive failures before the breaker
	// opens. Default: 5.
	MaxFailures int

	// CoolDown is how long the breaker stays open before allowing a probe.
	// Default: 15s.
	CoolDown time.Duration
}

// Breaker is a three-state circuit breaker (closed → open → half-open) with a
// single-probe half-open phase. It is safe for concurrent use.
type Breaker struct {
	name        string
	maxFailures int
	coolDown    time.Duration

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// New creates a [Breaker]. Zero-value config fields get defaults.
func New(cfg Config) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 15 * time.Second
	}
	return &Breaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		coolDown:    cfg.CoolDown,
		state:       StateClosed,
	}
}

// Do runs fn if the breaker allows it. In the open state it returns [ErrOpen]
// without calling fn. After the cool-down a single concurrent probe is let
// through; its outcome decides whether the breaker closes or re-opens.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case StateOpen:
		if time.Since(b.openedAt) < b.coolDown {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.probing = false
		slog.Info("circuit half-open, probing", "name", b.name)
		fallthrough
	case StateHalfOpen:
		if b.probing {
			// Another goroutine holds the probe slot.
			b.mu.Unlock()
			return ErrOpen
		}
		b.probing = true
	}
	probe := b.state == StateHalfOpen
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.probing = false
	}

	if err != nil {
		b.failures++
		if probe || b.failures >= b.maxFailures {
			if b.state != StateOpen {
				slog.Warn("circuit opened", "name", b.name, "consecutive_failures", b.failures)
			}
			b.state = StateOpen
			b.openedAt = time.Now()
		}
		return err
	}

	if b.state != StateClosed {
		slog.Info("circuit closed", "name", b.name)
	}
	b.state = StateClosed
	b.failures = 0
	return nil
}

// State returns the breaker's current state. An open breaker whose cool-down
// has elapsed reports [StateHalfOpen]; the transition itself happens on the
// next [Breaker.Do] call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && time.Since(b.openedAt) >= b.coolDown {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker back to closed, clearing failure counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.probing = false
}
