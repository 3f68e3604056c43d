package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/docuflow/docuflow/adapter"
	errspkg "github.com/docuflow/docuflow/internal/runtime/errors"
	"github.com/docuflow/docuflow/internal/runtime/logging"
	metricspkg "github.com/docuflow/docuflow/internal/runtime/metrics"
)

// PolicyConfig customises the resilient invocation behaviour. Zero values
// fall back to library defaults.
type PolicyConfig struct {
	// CallTimeout bounds each individual attempt.
	CallTimeout time.Duration

	// MaxAttempts caps the total attempts per invocation, first try included.
	MaxAttempts int

	// InitialInterval and MaxInterval tune the exponential backoff between
	// retries.
	InitialInterval time.Duration
	MaxInterval     time.Duration

	Breaker BreakerConfig
}

func (cfg PolicyConfig) withDefaults() PolicyConfig {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 8 * time.Second
	}
	return cfg
}

// Policy executes remote provider operations under a per-attempt timeout, a
// bounded retry loop, and a circuit breaker. One Policy is attached per bound
// adapter instance, so breaker state is adapter-instance-scoped rather than
// call-scoped.
type Policy struct {
	adapterType string
	cfg         PolicyConfig
	breaker     *Breaker
	log         logging.ServiceLogger
	metrics     *metricspkg.Metrics

	// sleep is replaceable in tests so retry timing is deterministic.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPolicy creates a policy for one adapter binding.
func NewPolicy(adapterType string, cfg PolicyConfig, log logging.ServiceLogger, m *metricspkg.Metrics) *Policy {
	if log == nil {
		log = logging.Nop()
	}
	cfg = cfg.withDefaults()

	p := &Policy{
		adapterType: adapterType,
		cfg:         cfg,
		log:         log.With(logging.LogFields{"adapter": adapterType}),
		metrics:     m,
		sleep:       sleepContext,
	}
	p.breaker = NewBreaker(cfg.Breaker, func(from, to State) {
		m.SetBreakerState(adapterType, int(to))
		p.log.Info("circuit breaker state changed", logging.LogFields{
			"from": from.String(),
			"to":   to.String(),
		})
	})
	return p
}

// State returns the current circuit breaker state of this policy.
func (p *Policy) State() State {
	return p.breaker.State()
}

// Execute runs fn under the policy. Transient failures and attempt timeouts
// are retried with exponential backoff until MaxAttempts is reached or the
// breaker opens, after which the error matches ErrProviderUnavailable.
// Permanent failures are returned as-is without retry. A caller-initiated
// cancellation is returned immediately and is recorded as neither success nor
// failure.
func (p *Policy) Execute(ctx context.Context, op string, fn func(context.Context) error) error {
	tracer := otel.Tracer("docuflow/resilience")
	ctx, span := tracer.Start(ctx, op)
	defer span.End()
	span.SetAttributes(attribute.String("adapter.type", p.adapterType))

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.InitialInterval
	bo.MaxInterval = p.cfg.MaxInterval

	for attempt := 1; ; attempt++ {
		if err := p.breaker.Allow(); err != nil {
			p.metrics.RecordInvocation(p.adapterType, "rejected")
			span.RecordError(err)
			return err
		}

		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if p.cfg.CallTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.cfg.CallTimeout)
		}
		err := fn(attemptCtx)
		timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		cancel()

		if err == nil {
			p.breaker.RecordSuccess()
			p.metrics.RecordInvocation(p.adapterType, "success")
			return nil
		}

		if errors.Is(ctx.Err(), context.Canceled) {
			// The caller gave up: the remote outcome is undefined, so it is
			// never counted against the breaker window.
			p.metrics.RecordInvocation(p.adapterType, "canceled")
			return ctx.Err()
		}

		p.breaker.RecordFailure()
		span.RecordError(err)

		retryable := timedOut || adapter.IsTransient(err)
		if !retryable {
			p.metrics.RecordInvocation(p.adapterType, "failure")
			return err
		}

		if attempt >= p.cfg.MaxAttempts || p.breaker.State() == StateOpen {
			p.metrics.RecordInvocation(p.adapterType, "unavailable")
			return fmt.Errorf("docuflow: %s %s failed after %d attempts: %w: %w",
				p.adapterType, op, attempt, errspkg.ErrProviderUnavailable, err)
		}

		p.metrics.RecordRetry(p.adapterType)
		wait := bo.NextBackOff()
		p.log.Debug("retrying provider call", logging.LogFields{
			"operation": op,
			"attempt":   attempt,
			"backoff":   wait.String(),
		})
		if serr := p.sleep(ctx, wait); serr != nil {
			p.metrics.RecordInvocation(p.adapterType, "canceled")
			return serr
		}
	}
}

// ExecuteValue runs a value-returning operation under the policy.
func ExecuteValue[T any](p *Policy, ctx context.Context, op string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := p.Execute(ctx, op, func(ctx context.Context) error {
		var innerErr error
		out, innerErr = fn(ctx)
		return innerErr
	})
	return out, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
