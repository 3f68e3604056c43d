package resilience

import (
	"sync"
	"time"

	errspkg "github.com/docuflow/docuflow/internal/runtime/errors"
)

// State is the circuit breaker state.
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

// BreakerConfig customises the circuit breaker behaviour.
type BreakerConfig struct {
	// WindowSize is the number of recent call outcomes kept for the failure
	// rate computation.
	WindowSize int

	// FailureThreshold is the failure rate at or above which the breaker
	// opens, once MinSamples outcomes have been observed.
	FailureThreshold float64

	// MinSamples is the minimum number of recorded outcomes before the
	// failure rate is evaluated.
	MinSamples int

	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration

	// MaxProbes is the number of probe calls permitted in half-open state.
	// All probes must succeed for the breaker to close.
	MaxProbes int
}

func (cfg BreakerConfig) withDefaults() BreakerConfig {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 10
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 0.5
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 5
	}
	if cfg.MinSamples > cfg.WindowSize {
		cfg.MinSamples = cfg.WindowSize
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.MaxProbes <= 0 {
		cfg.MaxProbes = 2
	}
	return cfg
}

// Breaker is a sliding-window circuit breaker. It is scoped to one adapter
// binding: only calls through that binding's policy feed its window, so there
// is no cross-adapter contention.
type Breaker struct {
	mu  sync.Mutex
	cfg BreakerConfig

	state  State
	window []bool // true = failure
	next   int
	filled int

	openedAt       time.Time
	probesIssued   int
	probeSuccesses int

	now      func() time.Time
	onChange func(from, to State)
}

// NewBreaker creates a breaker in the closed state. onChange, when non-nil,
// is invoked outside the hot path locks for every state transition.
func NewBreaker(cfg BreakerConfig, onChange func(from, to State)) *Breaker {
	cfg = cfg.withDefaults()
	return &Breaker{
		cfg:      cfg,
		window:   make([]bool, cfg.WindowSize),
		now:      time.Now,
		onChange: onChange,
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. While open it fails with
// ErrCircuitOpen until the cooldown elapses, after which a bounded number of
// probe calls is admitted in half-open state.
func (b *Breaker) Allow() error {
	b.mu.Lock()

	switch b.state {
	case StateClosed:
		b.mu.Unlock()
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			b.mu.Unlock()
			return errspkg.ErrCircuitOpen
		}
		from := b.transitionLocked(StateHalfOpen)
		b.probesIssued = 1
		b.mu.Unlock()
		b.notify(from, StateHalfOpen)
		return nil
	default: // StateHalfOpen
		if b.probesIssued >= b.cfg.MaxProbes {
			b.mu.Unlock()
			return errspkg.ErrCircuitOpen
		}
		b.probesIssued++
		b.mu.Unlock()
		return nil
	}
}

// RecordSuccess feeds a successful call outcome into the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()

	switch b.state {
	case StateHalfOpen:
		b.probeSuccesses++
		if b.probeSuccesses >= b.cfg.MaxProbes {
			from := b.transitionLocked(StateClosed)
			b.resetWindowLocked()
			b.mu.Unlock()
			b.notify(from, StateClosed)
			return
		}
		b.mu.Unlock()
	case StateClosed:
		b.recordOutcomeLocked(false)
		b.mu.Unlock()
	default:
		b.mu.Unlock()
	}
}

// RecordFailure feeds a failed call outcome into the breaker. In closed state
// it may trip the breaker; in half-open state it reopens immediately and the
// cooldown restarts.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()

	switch b.state {
	case StateHalfOpen:
		from := b.transitionLocked(StateOpen)
		b.openedAt = b.now()
		b.mu.Unlock()
		b.notify(from, StateOpen)
	case StateClosed:
		b.recordOutcomeLocked(true)
		if b.filled >= b.cfg.MinSamples && b.failureRateLocked() >= b.cfg.FailureThreshold {
			from := b.transitionLocked(StateOpen)
			b.openedAt = b.now()
			b.mu.Unlock()
			b.notify(from, StateOpen)
			return
		}
		b.mu.Unlock()
	default:
		b.mu.Unlock()
	}
}

func (b *Breaker) recordOutcomeLocked(failure bool) {
	b.window[b.next] = failure
	b.next = (b.next + 1) % len(b.window)
	if b.filled < len(b.window) {
		b.filled++
	}
}

func (b *Breaker) failureRateLocked() float64 {
	if b.filled == 0 {
		return 0
	}
	failures := 0
	for i := 0; i < b.filled; i++ {
		idx := b.next - b.filled + i
		if idx < 0 {
			idx += len(b.window)
		}
		if b.window[idx] {
			failures++
		}
	}
	return float64(failures) / float64(b.filled)
}

func (b *Breaker) resetWindowLocked() {
	b.next = 0
	b.filled = 0
	b.probesIssued = 0
	b.probeSuccesses = 0
}

// transitionLocked switches the state and resets per-state counters, returning
// the previous state for notification.
func (b *Breaker) transitionLocked(to State) State {
	from := b.state
	b.state = to
	if to == StateHalfOpen {
		b.probesIssued = 0
		b.probeSuccesses = 0
	}
	return from
}

func (b *Breaker) notify(from, to State) {
	if b.onChange != nil && from != to {
		b.onChange(from, to)
	}
}
