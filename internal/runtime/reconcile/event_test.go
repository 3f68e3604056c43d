package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/docuflow/docuflow/internal/runtime/jsoncodec"
)

func TestStatusEventValidate(t *testing.T) {
	valid := StatusEvent{ExternalID: "ext_1", Status: "COMPLETED"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	internalOnly := StatusEvent{InternalID: "env_1", Status: "SENT"}
	if err := internalOnly.Validate(); err != nil {
		t.Fatalf("internal id alone must be enough: %v", err)
	}

	if err := (StatusEvent{Status: "SENT"}).Validate(); !errors.Is(err, ErrExternalIDRequired) {
		t.Fatalf("expected ErrExternalIDRequired, got %v", err)
	}
	if err := (StatusEvent{ExternalID: "ext_1"}).Validate(); !errors.Is(err, ErrStatusRequired) {
		t.Fatalf("expected ErrStatusRequired, got %v", err)
	}
	if err := (StatusEvent{ExternalID: "ext_1", Status: "SHIPPED"}).Validate(); err == nil {
		t.Fatal("expected an error for an unknown status")
	}
}

func TestNewMessageStampsDefaults(t *testing.T) {
	msg, err := NewMessage(StatusEvent{
		Provider:   "docusign",
		ExternalID: "ext_1",
		Status:     "SENT",
	})
	if err != nil {
		t.Fatal(err)
	}
	if msg.UUID == "" {
		t.Fatal("expected a message uuid")
	}

	var event StatusEvent
	if err := jsoncodec.Unmarshal(msg.Payload, &event); err != nil {
		t.Fatal(err)
	}
	if event.DeliveryID == "" {
		t.Error("expected a generated delivery id")
	}
	if event.ObservedAt.IsZero() {
		t.Error("expected a defaulted observation time")
	}
	if got := msg.Metadata.Get(MetadataKeyDeliveryID); got != event.DeliveryID {
		t.Errorf("delivery id metadata = %q, want %q", got, event.DeliveryID)
	}
	if got := msg.Metadata.Get(MetadataKeyProvider); got != "docusign" {
		t.Errorf("provider metadata = %q, want docusign", got)
	}
}

func TestNewMessageKeepsExplicitValues(t *testing.T) {
	observed := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	msg, err := NewMessage(StatusEvent{
		DeliveryID: "dlv_7",
		ExternalID: "ext_1",
		Status:     "COMPLETED",
		ObservedAt: observed,
	})
	if err != nil {
		t.Fatal(err)
	}

	var event StatusEvent
	if err := jsoncodec.Unmarshal(msg.Payload, &event); err != nil {
		t.Fatal(err)
	}
	if event.DeliveryID != "dlv_7" {
		t.Errorf("delivery id = %q, want dlv_7", event.DeliveryID)
	}
	if !event.ObservedAt.Equal(observed) {
		t.Errorf("observed at = %v, want %v", event.ObservedAt, observed)
	}
}

func TestNewMessageRejectsInvalidEvents(t *testing.T) {
	if _, err := NewMessage(StatusEvent{Status: "SENT"}); !errors.Is(err, ErrExternalIDRequired) {
		t.Fatalf("expected ErrExternalIDRequired, got %v", err)
	}
}

func TestPublishRequiresPublisherAndTopic(t *testing.T) {
	event := StatusEvent{ExternalID: "ext_1", Status: "SENT"}

	if err := Publish(context.Background(), nil, "topic", event); !errors.Is(err, ErrPublisherRequired) {
		t.Fatalf("expected ErrPublisherRequired, got %v", err)
	}

	var pub capturePublisher
	if err := Publish(context.Background(), &pub, "", event); !errors.Is(err, ErrTopicRequired) {
		t.Fatalf("expected ErrTopicRequired, got %v", err)
	}
	if err := Publish(context.Background(), &pub, "topic", event); err != nil {
		t.Fatal(err)
	}
	if pub.topic != "topic" || len(pub.messages) != 1 {
		t.Fatalf("publish went to %q with %d messages", pub.topic, len(pub.messages))
	}
}

func TestUnprocessableStatusErrorUnwraps(t *testing.T) {
	cause := errors.New("bad json")
	err := &UnprocessableStatusError{payload: "{", err: cause}
	if !errors.Is(err, cause) {
		t.Fatal("expected the cause to remain matchable")
	}
}

type capturePublisher struct {
	topic    string
	messages []*message.Message
}

func (p *capturePublisher) Publish(topic string, messages ...*message.Message) error {
	p.topic = topic
	p.messages = append(p.messages, messages...)
	return nil
}

func (p *capturePublisher) Close() error { return nil }
