package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/docuflow/docuflow/adapter"
	errspkg "github.com/docuflow/docuflow/internal/runtime/errors"
)

func newTestPolicy(cfg PolicyConfig) *Policy {
	p := NewPolicy("test", cfg, nil, nil)
	p.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return p
}

func TestPolicySuccessFirstAttempt(t *testing.T) {
	p := newTestPolicy(PolicyConfig{})

	calls := 0
	err := p.Execute(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestPolicyRetriesTransientErrors(t *testing.T) {
	p := newTestPolicy(PolicyConfig{MaxAttempts: 3})

	calls := 0
	err := p.Execute(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return adapter.MarkTransient(errors.New("connection reset"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestPolicyDoesNotRetryPermanentErrors(t *testing.T) {
	p := newTestPolicy(PolicyConfig{MaxAttempts: 3})

	permanent := errors.New("access denied")
	calls := 0
	err := p.Execute(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if errors.Is(err, errspkg.ErrProviderUnavailable) {
		t.Fatal("permanent failure must not map to ErrProviderUnavailable")
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestPolicyExhaustedRetriesMapToUnavailable(t *testing.T) {
	p := newTestPolicy(PolicyConfig{MaxAttempts: 3})

	cause := adapter.MarkTransient(errors.New("503"))
	calls := 0
	err := p.Execute(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return cause
	})
	if !errors.Is(err, errspkg.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if !errors.Is(err, adapter.ErrTransient) {
		t.Fatalf("expected the cause to remain wrapped, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestPolicyAttemptTimeoutIsRetryable(t *testing.T) {
	p := newTestPolicy(PolicyConfig{CallTimeout: 10 * time.Millisecond, MaxAttempts: 2})

	calls := 0
	err := p.Execute(context.Background(), "op", func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, errspkg.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable after timeouts, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestPolicyTimeoutsOpenBreaker(t *testing.T) {
	// Window 10, min samples 5, threshold 0.5: five timed-out calls must leave
	// the breaker open, by the fifth call at the latest.
	p := newTestPolicy(PolicyConfig{
		CallTimeout: 5 * time.Millisecond,
		MaxAttempts: 1,
	})

	for i := 0; i < 5; i++ {
		err := p.Execute(context.Background(), "op", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
		if err == nil {
			t.Fatalf("call %d: expected error", i+1)
		}
	}
	if p.State() != StateOpen {
		t.Fatalf("expected open breaker after 5 timeouts, got %v", p.State())
	}

	// While open, calls are rejected without reaching the adapter.
	calls := 0
	err := p.Execute(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, errspkg.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("open breaker must not invoke the adapter, got %d calls", calls)
	}
}

func TestPolicyCallerCancellationNotCounted(t *testing.T) {
	p := newTestPolicy(PolicyConfig{MaxAttempts: 3})

	ctx, cancel := context.WithCancel(context.Background())
	err := p.Execute(ctx, "op", func(ctx context.Context) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if p.State() != StateClosed {
		t.Fatalf("cancellation must not trip the breaker, got %v", p.State())
	}
	if p.breaker.filled != 0 {
		t.Fatalf("cancellation must not feed the breaker window, got %d outcomes", p.breaker.filled)
	}
}

func TestPolicyRecoversThroughProbes(t *testing.T) {
	p := newTestPolicy(PolicyConfig{
		MaxAttempts: 1,
		Breaker:     BreakerConfig{Cooldown: time.Minute, MaxProbes: 2},
	})

	clock := time.Now()
	p.breaker.now = func() time.Time { return clock }

	cause := adapter.MarkTransient(errors.New("down"))
	for i := 0; i < 5; i++ {
		_ = p.Execute(context.Background(), "op", func(ctx context.Context) error {
			return cause
		})
	}
	if p.State() != StateOpen {
		t.Fatalf("expected open, got %v", p.State())
	}

	clock = clock.Add(time.Minute)

	// Both probes succeed and the breaker closes.
	for i := 0; i < 2; i++ {
		if err := p.Execute(context.Background(), "op", func(ctx context.Context) error {
			return nil
		}); err != nil {
			t.Fatalf("probe %d failed: %v", i+1, err)
		}
	}
	if p.State() != StateClosed {
		t.Fatalf("expected closed after successful probes, got %v", p.State())
	}
}

func TestExecuteValue(t *testing.T) {
	p := newTestPolicy(PolicyConfig{})

	got, err := ExecuteValue(p, context.Background(), "op", func(ctx context.Context) (string, error) {
		return "external-42", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "external-42" {
		t.Fatalf("expected external-42, got %q", got)
	}

	boom := errors.New("boom")
	_, err = ExecuteValue(p, context.Background(), "op", func(ctx context.Context) (string, error) {
		return "", boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestPolicyDefaults(t *testing.T) {
	cfg := PolicyConfig{}.withDefaults()
	if cfg.CallTimeout != 30*time.Second {
		t.Errorf("CallTimeout = %v, want 30s", cfg.CallTimeout)
	}
	if cfg.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.MaxAttempts)
	}
	if cfg.InitialInterval != 500*time.Millisecond {
		t.Errorf("InitialInterval = %v, want 500ms", cfg.InitialInterval)
	}
	if cfg.MaxInterval != 8*time.Second {
		t.Errorf("MaxInterval = %v, want 8s", cfg.MaxInterval)
	}
}
