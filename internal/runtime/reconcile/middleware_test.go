package reconcile

import (
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	configpkg "github.com/docuflow/docuflow/internal/runtime/config"
	"github.com/docuflow/docuflow/internal/runtime/correlation"
)

func TestCorrelationIDMiddleware(t *testing.T) {
	reg := CorrelationIDMiddleware()
	handler := reg.Middleware(func(msg *message.Message) ([]*message.Message, error) {
		return nil, nil
	})

	msg := message.NewMessage("m1", nil)
	if _, err := handler(msg); err != nil {
		t.Fatal(err)
	}
	if msg.Metadata["correlation_id"] == "" {
		t.Fatal("expected a correlation id to be stamped")
	}

	// An existing correlation id is left alone.
	msg = message.NewMessage("m2", nil)
	msg.Metadata["correlation_id"] = "given"
	if _, err := handler(msg); err != nil {
		t.Fatal(err)
	}
	if msg.Metadata["correlation_id"] != "given" {
		t.Fatal("expected the existing correlation id to survive")
	}
}

func TestRetryMiddlewareSkipsUnprocessable(t *testing.T) {
	reg := RetryMiddleware(RetryMiddlewareConfig{
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
	})

	calls := 0
	handler := reg.Middleware(func(*message.Message) ([]*message.Message, error) {
		calls++
		return nil, &UnprocessableStatusError{payload: "{}", err: errors.New("bad")}
	})

	if _, err := handler(message.NewMessage("m1", nil)); err == nil {
		t.Fatal("expected the error to surface")
	}
	if calls != 1 {
		t.Fatalf("handler called %d times, want 1 (no retries for unprocessable)", calls)
	}
}

func TestRetryMiddlewareRetriesTransientFailures(t *testing.T) {
	reg := RetryMiddleware(RetryMiddlewareConfig{
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
	})

	calls := 0
	handler := reg.Middleware(func(*message.Message) ([]*message.Message, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("store briefly behind")
		}
		return nil, nil
	})

	if _, err := handler(message.NewMessage("m1", nil)); err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Fatalf("handler called %d times, want 3", calls)
	}
}

func TestRetryMiddlewareConfigDefaults(t *testing.T) {
	cfg := RetryMiddlewareConfig{}.withDefaults()
	if cfg.MaxRetries != 5 {
		t.Errorf("max retries = %d, want 5", cfg.MaxRetries)
	}
	if cfg.InitialInterval != time.Second {
		t.Errorf("initial interval = %v, want 1s", cfg.InitialInterval)
	}
	if cfg.MaxInterval != 16*time.Second {
		t.Errorf("max interval = %v, want 16s", cfg.MaxInterval)
	}
}

func TestRegisterMiddlewareValidation(t *testing.T) {
	s := newTestService(t, &configpkg.Config{}, correlation.NewMemoryStore(nil))

	if err := s.RegisterMiddleware(MiddlewareRegistration{Name: "empty"}); err == nil {
		t.Fatal("expected an error for a registration without middleware or builder")
	}

	boom := errors.New("builder failed")
	err := s.RegisterMiddleware(MiddlewareRegistration{
		Name:    "failing",
		Builder: func(*Service) (message.HandlerMiddleware, error) { return nil, boom },
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the builder error, got %v", err)
	}

	// A builder returning nil middleware is a supported no-op.
	err = s.RegisterMiddleware(MiddlewareRegistration{
		Name:    "noop",
		Builder: func(*Service) (message.HandlerMiddleware, error) { return nil, nil },
	})
	if err != nil {
		t.Fatal(err)
	}
}
