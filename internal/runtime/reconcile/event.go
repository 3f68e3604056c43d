package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/docuflow/docuflow/internal/runtime/correlation"
	idspkg "github.com/docuflow/docuflow/internal/runtime/ids"
	"github.com/docuflow/docuflow/internal/runtime/jsoncodec"
)

// Metadata keys stamped on every status message.
const (
	MetadataKeyDeliveryID = "delivery_id"
	MetadataKeyProvider   = "provider"
)

var (
	ErrExternalIDRequired = errors.New("docuflow: status event requires an external id")
	ErrStatusRequired     = errors.New("docuflow: status event requires a status")
	ErrPublisherRequired  = errors.New("docuflow: publisher is required")
	ErrTopicRequired      = errors.New("docuflow: topic is required")
)

// StatusEvent is the wire form of one provider status observation. Webhook
// receivers and pollers both publish it; the reconcile service consumes it and
// folds it into the correlation store.
type StatusEvent struct {
	// DeliveryID identifies one delivery attempt. Providers that redeliver
	// webhooks reuse it, so consumers can deduplicate.
	DeliveryID string `json:"delivery_id"`

	// Provider is the adapter type that produced the observation.
	Provider string `json:"provider"`

	// ExternalID is the provider-assigned identity of the envelope.
	ExternalID string `json:"external_id"`

	// InternalID is optional; when empty the consumer resolves it from the
	// correlation store via ExternalID.
	InternalID string `json:"internal_id,omitempty"`

	// Status is the provider-reported state, using the correlation status
	// vocabulary (SENT, COMPLETED, ...).
	Status string `json:"status"`

	// ObservedAt is when the provider observed the state, not when the event
	// was delivered. Drives last-write-wins conflict resolution.
	ObservedAt time.Time `json:"observed_at"`
}

// Validate checks the fields the consumer cannot work without.
func (e StatusEvent) Validate() error {
	if e.ExternalID == "" && e.InternalID == "" {
		return ErrExternalIDRequired
	}
	if e.Status == "" {
		return ErrStatusRequired
	}
	if !knownStatus(correlation.Status(e.Status)) {
		return fmt.Errorf("docuflow: unknown status %q", e.Status)
	}
	return nil
}

func knownStatus(s correlation.Status) bool {
	switch s {
	case correlation.StatusPending, correlation.StatusDraft, correlation.StatusSent,
		correlation.StatusCompleted, correlation.StatusDeclined, correlation.StatusVoided:
		return true
	}
	return false
}

// UnprocessableStatusError wraps status payloads that no amount of retrying
// can fix. The poison queue middleware routes them to the configured poison
// topic instead of blocking the subscription.
type UnprocessableStatusError struct {
	payload string
	err     error
}

func (e *UnprocessableStatusError) Error() string {
	return "unprocessable status event: " + e.payload + " error: " + e.err.Error()
}

func (e *UnprocessableStatusError) Unwrap() error { return e.err }

// NewMessage converts the event into a Watermill message. A missing delivery
// id is stamped with a fresh UUID and a zero observation time defaults to now,
// so ad-hoc publishers get sensible events without boilerplate.
func NewMessage(event StatusEvent) (*message.Message, error) {
	if event.DeliveryID == "" {
		event.DeliveryID = uuid.NewString()
	}
	if event.ObservedAt.IsZero() {
		event.ObservedAt = time.Now().UTC()
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}

	payload, err := jsoncodec.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal status event: %w", err)
	}

	msg := message.NewMessage(idspkg.CreateULID(), payload)
	msg.Metadata.Set(MetadataKeyDeliveryID, event.DeliveryID)
	msg.Metadata.Set(MetadataKeyProvider, event.Provider)
	return msg, nil
}

// Publish emits the status event to the provided topic.
func Publish(ctx context.Context, publisher message.Publisher, topic string, event StatusEvent) error {
	if publisher == nil {
		return ErrPublisherRequired
	}
	if topic == "" {
		return ErrTopicRequired
	}

	msg, err := NewMessage(event)
	if err != nil {
		return err
	}
	if ctx != nil {
		msg.SetContext(ctx)
	}
	return publisher.Publish(topic, msg)
}
