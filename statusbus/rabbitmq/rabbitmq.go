// Package rabbitmq provides a RabbitMQ/AMQP status bus for docuflow.
package rabbitmq

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/docuflow/docuflow/statusbus"
)

// BusName is the name used to register this bus.
const BusName = "rabbitmq"

// reconcileQueueSuffix scopes the queue to the reconcile consumers: the
// status topic fans into a single durable queue that competing reconcile
// instances drain, instead of one auto-named queue per process.
const reconcileQueueSuffix = ".reconcile"

// ConnectionFactory allows overriding the connection creation for testing.
var ConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
	return amqp.NewConnection(cfg, logger)
}

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Publisher, error) {
	return amqp.NewPublisherWithConnection(cfg, logger, conn)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
	return amqp.NewSubscriberWithConnection(cfg, logger, conn)
}

func init() {
	statusbus.Register(BusName, Build, statusbus.RabbitMQGuarantees)
}

// Build creates a new RabbitMQ bus.
func Build(ctx context.Context, cfg statusbus.Config, logger watermill.LoggerAdapter) (statusbus.Bus, error) {
	url := cfg.GetRabbitMQURL()

	amqpConfig := amqp.NewDurablePubSubConfig(
		url,
		amqp.GenerateQueueNameTopicNameWithSuffix(reconcileQueueSuffix),
	)

	conn, err := ConnectionFactory(amqp.ConnectionConfig{
		AmqpURI:   url,
		TLSConfig: nil,
		Reconnect: amqp.DefaultReconnectConfig(),
	}, logger)
	if err != nil {
		return statusbus.Bus{}, err
	}

	publisher, err := PublisherFactory(amqpConfig, logger, conn)
	if err != nil {
		return statusbus.Bus{}, err
	}

	subscriber, err := SubscriberFactory(amqpConfig, logger, conn)
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
	return statusbus.RabbitMQGuarantees
}
