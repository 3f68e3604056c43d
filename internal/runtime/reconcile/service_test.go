package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	configpkg "github.com/docuflow/docuflow/internal/runtime/config"
	"github.com/docuflow/docuflow/internal/runtime/correlation"
	errspkg "github.com/docuflow/docuflow/internal/runtime/errors"
	"github.com/docuflow/docuflow/statusbus"
	"github.com/docuflow/docuflow/statusbus/channel"
)

func newTestRegistry() *statusbus.Registry {
	r := statusbus.NewRegistry()
	r.Register(channel.BusName, channel.Build, channel.Guarantees())
	return r
}

func newTestService(t *testing.T, conf *configpkg.Config, store correlation.Store) *Service {
	t.Helper()
	s, err := NewService(context.Background(), conf, nil, ServiceDependencies{
		Store:       store,
		BusRegistry: newTestRegistry(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestNewServiceRequiresConfigAndStore(t *testing.T) {
	store := correlation.NewMemoryStore(nil)

	if _, err := NewService(context.Background(), nil, nil, ServiceDependencies{Store: store}); !errors.Is(err, errspkg.ErrConfigRequired) {
		t.Fatalf("expected ErrConfigRequired, got %v", err)
	}
	if _, err := NewService(context.Background(), &configpkg.Config{}, nil, ServiceDependencies{BusRegistry: newTestRegistry()}); err == nil {
		t.Fatal("expected an error for a missing store")
	}
}

func TestNewServiceUnknownBus(t *testing.T) {
	conf := &configpkg.Config{StatusBus: "carrier-pigeon"}
	_, err := NewService(context.Background(), conf, nil, ServiceDependencies{
		Store:       correlation.NewMemoryStore(nil),
		BusRegistry: newTestRegistry(),
	})
	if err == nil {
		t.Fatal("expected an error for an unregistered bus")
	}
}

func TestStatusTopicDefault(t *testing.T) {
	store := correlation.NewMemoryStore(nil)

	s := newTestService(t, &configpkg.Config{}, store)
	if got := s.StatusTopic(); got != DefaultStatusTopic {
		t.Fatalf("topic = %q, want %q", got, DefaultStatusTopic)
	}

	s = newTestService(t, &configpkg.Config{StatusTopic: "custom.status"}, store)
	if got := s.StatusTopic(); got != "custom.status" {
		t.Fatalf("topic = %q, want custom.status", got)
	}
}

func TestHandleStatusEventAppliesObservation(t *testing.T) {
	store := correlation.NewMemoryStore(nil)
	s := newTestService(t, &configpkg.Config{}, store)

	if err := store.CreatePending(context.Background(), "env_1", "docusign"); err != nil {
		t.Fatal(err)
	}
	if err := store.AttachExternalID(context.Background(), "env_1", "ext_1"); err != nil {
		t.Fatal(err)
	}

	msg, err := NewMessage(StatusEvent{
		Provider:   "docusign",
		ExternalID: "ext_1",
		Status:     "COMPLETED",
		ObservedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.handleStatusEvent(msg); err != nil {
		t.Fatal(err)
	}

	rec, err := store.Get(context.Background(), "env_1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.LastKnownStatus != correlation.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", rec.LastKnownStatus)
	}
}

func TestHandleStatusEventPrefersInternalID(t *testing.T) {
	store := correlation.NewMemoryStore(nil)
	s := newTestService(t, &configpkg.Config{}, store)

	// No external id is attached; the event carries the internal id directly.
	if err := store.CreatePending(context.Background(), "env_1", "docusign"); err != nil {
		t.Fatal(err)
	}

	msg, err := NewMessage(StatusEvent{InternalID: "env_1", Status: "DECLINED"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.handleStatusEvent(msg); err != nil {
		t.Fatal(err)
	}

	rec, _ := store.Get(context.Background(), "env_1")
	if rec.LastKnownStatus != correlation.StatusDeclined {
		t.Fatalf("status = %s, want DECLINED", rec.LastKnownStatus)
	}
}

func TestHandleStatusEventMalformedPayload(t *testing.T) {
	s := newTestService(t, &configpkg.Config{}, correlation.NewMemoryStore(nil))

	err := s.handleStatusEvent(message.NewMessage("m1", []byte("{not json")))
	var unprocessable *UnprocessableStatusError
	if !errors.As(err, &unprocessable) {
		t.Fatalf("expected UnprocessableStatusError, got %T: %v", err, err)
	}

	payload := []byte(`{"external_id":"ext_1","status":"SHIPPED"}`)
	err = s.handleStatusEvent(message.NewMessage("m2", payload))
	if !errors.As(err, &unprocessable) {
		t.Fatalf("expected UnprocessableStatusError for unknown status, got %v", err)
	}
}

func TestHandleStatusEventUnresolvedExternalIDIsRetryable(t *testing.T) {
	s := newTestService(t, &configpkg.Config{}, correlation.NewMemoryStore(nil))

	// The webhook may beat AttachExternalID; this must stay a plain error so
	// the retry middleware gets a chance to see the record appear.
	msg, err := NewMessage(StatusEvent{ExternalID: "ext_unseen", Status: "SENT"})
	if err != nil {
		t.Fatal(err)
	}
	err = s.handleStatusEvent(msg)
	if err == nil {
		t.Fatal("expected an error")
	}
	var unprocessable *UnprocessableStatusError
	if errors.As(err, &unprocessable) {
		t.Fatal("unresolved external ids must not be unprocessable")
	}
	if !errors.Is(err, errspkg.ErrNotFound) {
		t.Fatalf("expected ErrNotFound in the chain, got %v", err)
	}
}

func TestHandleStatusEventDiscardsStale(t *testing.T) {
	store := correlation.NewMemoryStore(nil)
	s := newTestService(t, &configpkg.Config{}, store)

	if err := store.CreatePending(context.Background(), "env_1", "docusign"); err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()
	if _, err := store.UpdateStatus(context.Background(), "env_1", correlation.StatusCompleted, now); err != nil {
		t.Fatal(err)
	}

	msg, err := NewMessage(StatusEvent{
		InternalID: "env_1",
		Status:     "SENT",
		ObservedAt: now.Add(-time.Minute),
	})
	if err != nil {
		t.Fatal(err)
	}
	// Stale observations are acknowledged, not retried.
	if err := s.handleStatusEvent(msg); err != nil {
		t.Fatal(err)
	}

	rec, _ := store.Get(context.Background(), "env_1")
	if rec.LastKnownStatus != correlation.StatusCompleted {
		t.Fatalf("status = %s, want the newer COMPLETED to survive", rec.LastKnownStatus)
	}
}

func TestServiceRoundTrip(t *testing.T) {
	store := correlation.NewMemoryStore(nil)
	s := newTestService(t, &configpkg.Config{}, store)

	if err := store.CreatePending(context.Background(), "env_1", "docusign"); err != nil {
		t.Fatal(err)
	}
	if err := store.AttachExternalID(context.Background(), "env_1", "ext_1"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	<-s.Running()

	err := s.PublishStatus(ctx, StatusEvent{
		Provider:   "docusign",
		ExternalID: "ext_1",
		Status:     "COMPLETED",
	})
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		rec, err := store.Get(context.Background(), "env_1")
		if err != nil {
			t.Fatal(err)
		}
		if rec.LastKnownStatus == correlation.StatusCompleted {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("status never applied, still %s", rec.LastKnownStatus)
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("router stopped with error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("router did not stop")
	}
}

func TestPublishStatusOnNilService(t *testing.T) {
	var s *Service
	if err := s.PublishStatus(context.Background(), StatusEvent{ExternalID: "x", Status: "SENT"}); err == nil {
		t.Fatal("expected an error")
	}
}
