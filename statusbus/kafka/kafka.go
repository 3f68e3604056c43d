// Package kafka provides a Kafka status bus for docuflow.
package kafka

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/docuflow/docuflow/statusbus"
)

// BusName is the name used to register this bus.
const BusName = "kafka"

// DefaultConsumerGroup is used when no consumer group is configured. All
// reconcile instances of a deployment join one group so each status event is
// applied once, not once per instance.
const DefaultConsumerGroup = "docuflow-reconcile"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return kafka.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return kafka.NewSubscriber(cfg, logger)
}

func init() {
	statusbus.Register(BusName, Build, statusbus.KafkaGuarantees)
}

// Build creates a new Kafka bus.
func Build(ctx context.Context, cfg statusbus.Config, logger watermill.LoggerAdapter) (statusbus.Bus, error) {
	brokers := cfg.GetKafkaBrokers()
	consumerGroup := cfg.GetKafkaConsumerGroup()
	if consumerGroup == "" {
		consumerGroup = DefaultConsumerGroup
	}

	publisher, err := PublisherFactory(
		kafka.PublisherConfig{
			Brokers:   brokers,
			Marshaler: kafka.DefaultMarshaler{},
		},
		logger,
	)
	if err != nil {
		return statusbus.Bus{}, err
	}

	subscriber, err := SubscriberFactory(
		kafka.SubscriberConfig{
			Brokers:       brokers,
			Unmarshaler:   kafka.DefaultMarshaler{},
			ConsumerGroup: consumerGroup,
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
	return statusbus.KafkaGuarantees
}
