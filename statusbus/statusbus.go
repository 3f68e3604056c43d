// Package statusbus defines the transport layer for docuflow status
// reconciliation events. Each bus implementation (channel, http, nats, kafka,
// rabbitmq) lives in its own sub-package and registers itself with the bus
// registry.
package statusbus

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Bus combines the publisher and subscriber pair produced by a builder.
type Bus struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Builder is the function signature for creating a bus from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Bus, error)

// Config provides the configuration values needed by bus implementations.
// The interface lets bus packages access only the config they need without
// depending on the full config package.
type Config interface {
	// GetStatusBusSystem returns the bus type name.
	GetStatusBusSystem() string

	// NATS
	GetNATSURL() string

	// Kafka
	GetKafkaBrokers() []string
	GetKafkaConsumerGroup() string

	// RabbitMQ
	GetRabbitMQURL() string

	// HTTP
	GetHTTPServerAddress() string
	GetHTTPPublisherURL() string
}

// Guarantees describes the delivery characteristics of a bus backend. The
// reconcile service tolerates duplicates and reordering either way, but
// callers can introspect what the deployment actually provides.
type Guarantees struct {
	// Name is the human-readable name of the bus.
	Name string

	// Durable indicates events survive a process restart.
	Durable bool

	// SupportsAck indicates the bus supports explicit acknowledgment.
	SupportsAck bool

	// SupportsRedelivery indicates a nacked event is delivered again.
	SupportsRedelivery bool
}

// Predefined guarantee sets for the buses shipped with docuflow.
var (
	ChannelGuarantees = Guarantees{
		Name:               "channel",
		Durable:            false,
		SupportsAck:        true,
		SupportsRedelivery: true,
	}

	HTTPGuarantees = Guarantees{
		Name:               "http",
		Durable:            false,
		SupportsAck:        false,
		SupportsRedelivery: false,
	}

	NATSGuarantees = Guarantees{
		Name:               "nats",
		Durable:            false,
		SupportsAck:        false,
		SupportsRedelivery: false,
	}

	KafkaGuarantees = Guarantees{
		Name:               "kafka",
		Durable:            true,
		SupportsAck:        true,
		SupportsRedelivery: false,
	}

	RabbitMQGuarantees = Guarantees{
		Name:               "rabbitmq",
		Durable:            true,
		SupportsAck:        true,
		SupportsRedelivery: true,
	}
)
