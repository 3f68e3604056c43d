// Package http provides an HTTP status bus for docuflow. The subscriber side
// doubles as the webhook receiver: providers POST status callbacks to the
// configured address and they surface as ordinary bus events.
package http

import (
	"context"
	nethttp "net/http"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/docuflow/docuflow/statusbus"
)

// BusName is the name used to register this bus.
const BusName = "http"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(config http.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return http.NewPublisher(config, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(addr string, config http.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return http.NewSubscriber(addr, config, logger)
}

func init() {
	statusbus.Register(BusName, Build, statusbus.HTTPGuarantees)
}

// Build creates a new HTTP bus.
func Build(ctx context.Context, cfg statusbus.Config, logger watermill.LoggerAdapter) (statusbus.Bus, error) {
	serverAddr := cfg.GetHTTPServerAddress()
	publisherURL := cfg.GetHTTPPublisherURL()

	publisher, err := PublisherFactory(
		http.PublisherConfig{
			MarshalMessageFunc: func(topic string, msg *message.Message) (*nethttp.Request, error) {
				url := publisherURL + topic
				return http.DefaultMarshalMessageFunc(url, msg)
			},
		},
		logger,
	)
	if err != nil {
		return statusbus.Bus{}, err
	}

	subscriber, err := SubscriberFactory(
		serverAddr,
		http.SubscriberConfig{
			UnmarshalMessageFunc: http.DefaultUnmarshalMessageFunc,
		},
		logger,
	)
	if err != nil {
		return statusbus.Bus{}, err
	}

	// Start the webhook listener in the background once subscriptions exist.
	go func() {
		if s, ok := subscriber.(*http.Subscriber); ok {
			if err := s.StartHTTPServer(); err != nil {
				logger.Error("Failed to start status webhook server", err, nil)
			}
		}
	}()

	return statusbus.Bus{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}

// Guarantees returns the delivery guarantees of this bus.
func Guarantees() statusbus.Guarantees {
	return statusbus.HTTPGuarantees
}
