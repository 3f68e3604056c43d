package resilience

import (
	"errors"
	"testing"
	"time"

	errspkg "github.com/docuflow/docuflow/internal/runtime/errors"
)

func TestBreakerStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestBreakerStartsClosed(t *testing.T) {
	b := NewBreaker(BreakerConfig{}, nil)
	if b.State() != StateClosed {
		t.Fatalf("expected closed, got %v", b.State())
	}
	if err := b.Allow(); err != nil {
		t.Fatalf("expected call to be allowed, got %v", err)
	}
}

func TestBreakerTripsAtThreshold(t *testing.T) {
	// Defaults: window 10, min samples 5, threshold 0.5. Five consecutive
	// failures reach rate 1.0 with exactly the minimum sample count.
	b := NewBreaker(BreakerConfig{}, nil)

	for i := 0; i < 4; i++ {
		b.RecordFailure()
		if b.State() != StateClosed {
			t.Fatalf("breaker opened after %d failures, want 5", i+1)
		}
	}
	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("expected open after 5 failures, got %v", b.State())
	}

	if err := b.Allow(); !errors.Is(err, errspkg.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if err := b.Allow(); !errors.Is(err, errspkg.ErrProviderUnavailable) {
		t.Fatalf("expected open breaker error to match ErrProviderUnavailable, got %v", err)
	}
}

func TestBreakerStaysClosedBelowThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{WindowSize: 10, MinSamples: 5, FailureThreshold: 0.5}, nil)

	// 4 failures and 6 successes: rate 0.4, below the threshold.
	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	for i := 0; i < 6; i++ {
		b.RecordSuccess()
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed at failure rate 0.4, got %v", b.State())
	}
}

func TestBreakerSlidingWindowEvictsOldOutcomes(t *testing.T) {
	b := NewBreaker(BreakerConfig{WindowSize: 4, MinSamples: 4, FailureThreshold: 0.5}, nil)

	// Two early failures followed by enough successes to push them out.
	b.RecordFailure()
	b.RecordFailure()
	for i := 0; i < 4; i++ {
		b.RecordSuccess()
	}
	// Window now holds 4 successes; one more failure is rate 0.25.
	b.RecordFailure()
	if b.State() != StateClosed {
		t.Fatalf("expected closed after old failures slid out, got %v", b.State())
	}
}

func TestBreakerHalfOpenProbes(t *testing.T) {
	cfg := BreakerConfig{WindowSize: 10, MinSamples: 5, FailureThreshold: 0.5, Cooldown: time.Minute, MaxProbes: 2}
	b := NewBreaker(cfg, nil)

	clock := time.Now()
	b.now = func() time.Time { return clock }

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %v", b.State())
	}

	// Before the cooldown elapses every call is rejected.
	if err := b.Allow(); !errors.Is(err, errspkg.ErrCircuitOpen) {
		t.Fatalf("expected rejection during cooldown, got %v", err)
	}

	clock = clock.Add(cfg.Cooldown)

	// Exactly MaxProbes calls get through, the next one is rejected.
	if err := b.Allow(); err != nil {
		t.Fatalf("expected first probe to be admitted, got %v", err)
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %v", b.State())
	}
	if err := b.Allow(); err != nil {
		t.Fatalf("expected second probe to be admitted, got %v", err)
	}
	if err := b.Allow(); !errors.Is(err, errspkg.ErrCircuitOpen) {
		t.Fatalf("expected third call to be rejected, got %v", err)
	}

	// One probe success is not enough to close.
	b.RecordSuccess()
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open after one probe success, got %v", b.State())
	}
	b.RecordSuccess()
	if b.State() != StateClosed {
		t.Fatalf("expected closed after all probes succeeded, got %v", b.State())
	}
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	cfg := BreakerConfig{Cooldown: time.Minute}
	b := NewBreaker(cfg, nil)

	clock := time.Now()
	b.now = func() time.Time { return clock }

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	clock = clock.Add(cfg.Cooldown)
	if err := b.Allow(); err != nil {
		t.Fatalf("expected probe to be admitted, got %v", err)
	}

	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("expected reopen after probe failure, got %v", b.State())
	}

	// The cooldown restarts from the probe failure.
	if err := b.Allow(); !errors.Is(err, errspkg.ErrCircuitOpen) {
		t.Fatalf("expected rejection after reopen, got %v", err)
	}
	clock = clock.Add(cfg.Cooldown)
	if err := b.Allow(); err != nil {
		t.Fatalf("expected probe after second cooldown, got %v", err)
	}
}

func TestBreakerCloseResetsWindow(t *testing.T) {
	cfg := BreakerConfig{Cooldown: time.Minute, MaxProbes: 1}
	b := NewBreaker(cfg, nil)

	clock := time.Now()
	b.now = func() time.Time { return clock }

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	clock = clock.Add(cfg.Cooldown)
	if err := b.Allow(); err != nil {
		t.Fatalf("expected probe, got %v", err)
	}
	b.RecordSuccess()
	if b.State() != StateClosed {
		t.Fatalf("expected closed, got %v", b.State())
	}

	// The old failures must not count anymore: four more failures stay below
	// the minimum sample count.
	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed with a reset window, got %v", b.State())
	}
}

func TestBreakerOnChangeNotifications(t *testing.T) {
	type change struct{ from, to State }
	var changes []change

	cfg := BreakerConfig{Cooldown: time.Minute, MaxProbes: 1}
	b := NewBreaker(cfg, func(from, to State) {
		changes = append(changes, change{from, to})
	})

	clock := time.Now()
	b.now = func() time.Time { return clock }

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	clock = clock.Add(cfg.Cooldown)
	if err := b.Allow(); err != nil {
		t.Fatalf("expected probe, got %v", err)
	}
	b.RecordSuccess()

	want := []change{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}
	if len(changes) != len(want) {
		t.Fatalf("expected %d transitions, got %d: %v", len(want), len(changes), changes)
	}
	for i, w := range want {
		if changes[i] != w {
			t.Errorf("transition %d = %v, want %v", i, changes[i], w)
		}
	}
}
