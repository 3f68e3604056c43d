// Package reconcile consumes status events from the configured status bus and
// folds them into the correlation store. Webhook callbacks and polling sweeps
// converge on the same path: publish a StatusEvent, let the consumer apply it
// with observation-time last-write-wins semantics.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"

	configpkg "github.com/docuflow/docuflow/internal/runtime/config"
	"github.com/docuflow/docuflow/internal/runtime/correlation"
	errspkg "github.com/docuflow/docuflow/internal/runtime/errors"
	"github.com/docuflow/docuflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/docuflow/docuflow/internal/runtime/logging"
	"github.com/docuflow/docuflow/statusbus"
)

// DefaultStatusTopic is used when the configuration does not name one.
const DefaultStatusTopic = "docuflow.status"

const handlerName = "status_reconciler"

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// ServiceDependencies holds the collaborators the reconcile service can use.
type ServiceDependencies struct {
	// Store is required; status observations are applied to it.
	Store correlation.Store

	// BusRegistry defaults to statusbus.DefaultRegistry.
	BusRegistry *statusbus.Registry

	// Middlewares are appended after the default chain.
	Middlewares []MiddlewareRegistration

	// DisableDefaultMiddlewares skips the default chain when true.
	DisableDefaultMiddlewares bool
}

// Service wires a Watermill router over the configured status bus and applies
// incoming status events to the correlation store.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	store      correlation.Store
	publisher  message.Publisher
	subscriber message.Subscriber
	router     *message.Router

	httpServers map[int]*http.ServeMux
}

// NewService builds the reconcile service for the supplied configuration.
// Call Start to begin consuming.
func NewService(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if deps.Store == nil {
		return nil, errors.New("docuflow: correlation store is required")
	}
	if log == nil {
		log = loggingpkg.Nop()
	}

	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating status reconcile service", loggingpkg.LogFields{
		"status_bus":   conf.StatusBus,
		"status_topic": conf.StatusTopic,
	})

	s := &Service{
		Conf:   conf,
		Logger: log,
		store:  deps.Store,
	}

	registry := deps.BusRegistry
	if registry == nil {
		registry = statusbus.DefaultRegistry
	}
	bus, err := registry.Build(ctx, conf, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to build status bus: %w", err)
	}
	s.publisher = bus.Publisher
	s.subscriber = bus.Subscriber

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, err
	}
	s.router = router
	s.router.AddPlugin(plugin.SignalsHandler)

	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		return nil, err
	}

	s.router.AddNoPublisherHandler(
		handlerName,
		s.StatusTopic(),
		s.subscriber,
		s.handleStatusEvent,
	)

	return s, nil
}

// Start runs the router until the context is cancelled.
func (s *Service) Start(ctx context.Context) error {
	s.startHTTPServers()
	return routerRun(s.router, ctx)
}

// Running is closed when the router has started all handlers.
func (s *Service) Running() chan struct{} {
	return s.router.Running()
}

// Close shuts down the router and the underlying bus.
func (s *Service) Close() error {
	return s.router.Close()
}

// StatusTopic returns the configured status topic, falling back to the
// default.
func (s *Service) StatusTopic() string {
	if s.Conf.StatusTopic != "" {
		return s.Conf.StatusTopic
	}
	return DefaultStatusTopic
}

// PublishStatus emits a status event onto the service's own bus, so pollers
// and webhook receivers inside the same process reuse the service connection.
func (s *Service) PublishStatus(ctx context.Context, event StatusEvent) error {
	if s == nil {
		return errors.New("docuflow: reconcile service is nil")
	}
	return Publish(ctx, s.publisher, s.StatusTopic(), event)
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("failed to register middleware %s: %w", name, err)
		}
	}
	return nil
}

// handleStatusEvent is the single consumer: decode, resolve the internal id,
// apply the observation. Malformed payloads and unknown statuses are
// unprocessable; an unresolved external id is returned as a plain error
// because the correlating AttachExternalID may simply not have landed yet.
func (s *Service) handleStatusEvent(msg *message.Message) error {
	var event StatusEvent
	if err := jsoncodec.Unmarshal(msg.Payload, &event); err != nil {
		return &UnprocessableStatusError{payload: string(msg.Payload), err: err}
	}
	if err := event.Validate(); err != nil {
		return &UnprocessableStatusError{payload: string(msg.Payload), err: err}
	}

	ctx := msg.Context()
	internalID := event.InternalID
	if internalID == "" {
		resolved, err := s.store.ResolveInternal(ctx, event.ExternalID)
		if err != nil {
			return fmt.Errorf("failed to resolve external id %q: %w", event.ExternalID, err)
		}
		internalID = resolved
	}

	applied, err := s.store.UpdateStatus(ctx, internalID, correlation.Status(event.Status), event.ObservedAt)
	if err != nil {
		return fmt.Errorf("failed to update status for %q: %w", internalID, err)
	}

	if applied {
		s.Logger.Info("Applied status observation", loggingpkg.LogFields{
			"internal_id": internalID,
			"external_id": event.ExternalID,
			"provider":    event.Provider,
			"status":      event.Status,
			"observed_at": event.ObservedAt,
			"delivery_id": event.DeliveryID,
		})
	} else {
		s.Logger.Debug("Discarded stale status observation", loggingpkg.LogFields{
			"internal_id": internalID,
			"status":      event.Status,
			"observed_at": event.ObservedAt,
			"delivery_id": event.DeliveryID,
		})
	}
	return nil
}

// RegisterHTTPHandler mounts an HTTP handler on the shared mux for the given
// port. Servers start when Start is called.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}
	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}
	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers() {
	for port, mux := range s.httpServers {
		addr := fmt.Sprintf(":%d", port)
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": addr})
		go func(addr string, handler http.Handler) {
			if err := http.ListenAndServe(addr, handler); err != nil {
				s.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": addr})
			}
		}(addr, mux)
	}
}
