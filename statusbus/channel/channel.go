// Package channel provides an in-memory Go channel status bus for docuflow.
// This bus is useful for testing and single-process deployments.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/docuflow/docuflow/statusbus"
)

// BusName is the name used to register this bus.
const BusName = "channel"

// statusBuffer absorbs webhook bursts: a provider can deliver a batch of
// status callbacks faster than the reconcile handler applies them, and an
// unbuffered channel would block the receiver for the whole batch.
const statusBuffer = 64

// Factory allows overriding the channel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

func init() {
	statusbus.Register(BusName, Build, statusbus.ChannelGuarantees)
}

// Build creates a new Go channel bus.
func Build(ctx context.Context, cfg statusbus.Config, logger watermill.LoggerAdapter) (statusbus.Bus, error) {
	pub, sub := Factory(gochannel.Config{OutputChannelBuffer: statusBuffer}, logger)
	return statusbus.Bus{
		Publisher:  pub,
		Subscriber: sub,
	}, nil
}

// Guarantees returns the delivery guarantees of this bus.
func Guarantees() statusbus.Guarantees {
	return statusbus.ChannelGuarantees
}
