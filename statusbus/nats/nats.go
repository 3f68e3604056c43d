// Package nats provides a NATS Core status bus for docuflow.
package nats

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"

	"github.com/docuflow/docuflow/statusbus"
)

// BusName is the name used to register this bus.
const BusName = "nats"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg wmnats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return wmnats.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg wmnats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return wmnats.NewSubscriber(cfg, logger)
}

func init() {
	statusbus.Register(BusName, Build, statusbus.NATSGuarantees)
}

// connectOptions keeps status delivery alive across broker restarts; lost
// events are recovered by the next reconciliation poll.
func connectOptions() []nats.Option {
	return []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.Timeout(10 * time.Second),
	}
}

// Build creates a new NATS bus.
func Build(ctx context.Context, cfg statusbus.Config, logger watermill.LoggerAdapter) (statusbus.Bus, error) {
	url := cfg.GetNATSURL()
	marshaler := &wmnats.NATSMarshaler{}

	publisher, err := PublisherFactory(
		wmnats.PublisherConfig{
			URL:         url,
			NatsOptions: connectOptions(),
			Marshaler:   marshaler,
		},
		logger,
	)
	if err != nil {
		return statusbus.Bus{}, err
	}

	subscriber, err := SubscriberFactory(
		wmnats.SubscriberConfig{
			URL:         url,
			NatsOptions: connectOptions(),
			Unmarshaler: marshaler,
		},
		logger,
	)
	if err != nil {
		return statusbus.Bus{}, err
	}

	return statusbus.Bus{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}

// Guarantees returns the delivery guarantees of this bus.
func Guarantees() statusbus.Guarantees {
	return statusbus.NATSGuarantees
}
