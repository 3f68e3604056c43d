package docuflow

import (
	runtimepkg "github.com/docuflow/docuflow/internal/runtime"
	configpkg "github.com/docuflow/docuflow/internal/runtime/config"
	"github.com/docuflow/docuflow/internal/runtime/correlation"
	errspkg "github.com/docuflow/docuflow/internal/runtime/errors"
	idspkg "github.com/docuflow/docuflow/internal/runtime/ids"
	jsoncodec "github.com/docuflow/docuflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/docuflow/docuflow/internal/runtime/logging"
	"github.com/docuflow/docuflow/internal/runtime/reconcile"
	"github.com/docuflow/docuflow/internal/runtime/resilience"
	"github.com/docuflow/docuflow/statusbus"
)

type (
	Config               = configpkg.Config
	Provider             = runtimepkg.Provider
	ProviderDependencies = runtimepkg.ProviderDependencies
	Binding              = runtimepkg.Binding
	Selector             = runtimepkg.Selector
	EnvelopeWorkflow     = runtimepkg.EnvelopeWorkflow

	// Correlation store
	CorrelationStore  = correlation.Store
	CorrelationRecord = correlation.Record
	Status            = correlation.Status

	// Resilience
	PolicyConfig  = resilience.PolicyConfig
	BreakerConfig = resilience.BreakerConfig
	Policy        = resilience.Policy
	BreakerState  = resilience.State

	// Status reconciliation
	ReconcileService         = reconcile.Service
	ReconcileDependencies    = reconcile.ServiceDependencies
	StatusEvent              = reconcile.StatusEvent
	UnprocessableStatusError = reconcile.UnprocessableStatusError
	MiddlewareBuilder        = reconcile.MiddlewareBuilder
	MiddlewareRegistration   = reconcile.MiddlewareRegistration
	RetryMiddlewareConfig    = reconcile.RetryMiddlewareConfig

	// Status bus (modular package structure)
	StatusBus           = statusbus.Bus
	StatusBusBuilder    = statusbus.Builder
	StatusBusConfig     = statusbus.Config
	StatusBusGuarantees = statusbus.Guarantees
	StatusBusRegistry   = statusbus.Registry

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	MissingConfigurationError = errspkg.MissingConfigurationError
	ConfigValidationError     = errspkg.ConfigValidationError
)

var (
	NewProvider         = runtimepkg.NewProvider
	NewEnvelopeWorkflow = runtimepkg.NewEnvelopeWorkflow
	NewSelector         = runtimepkg.NewSelector
	FeatureName         = runtimepkg.FeatureName
	ValidateConfig      = configpkg.ValidateConfig

	NewMemoryCorrelationStore = correlation.NewMemoryStore

	// Status reconciliation
	NewReconcileService = reconcile.NewService
	PublishStatus       = reconcile.Publish
	NewStatusMessage    = reconcile.NewMessage

	DefaultMiddlewares      = reconcile.DefaultMiddlewares
	CorrelationIDMiddleware = reconcile.CorrelationIDMiddleware
	LogMessagesMiddleware   = reconcile.LogMessagesMiddleware
	TracerMiddleware        = reconcile.TracerMiddleware
	MetricsMiddleware       = reconcile.MetricsMiddleware
	RetryMiddleware         = reconcile.RetryMiddleware
	PoisonQueueMiddleware   = reconcile.PoisonQueueMiddleware
	RecovererMiddleware     = reconcile.RecovererMiddleware

	// Status bus registry. Import individual buses via:
	// _ "github.com/docuflow/docuflow/statusbus/kafka"
	DefaultStatusBusRegistry = statusbus.DefaultRegistry
	RegisterStatusBus        = statusbus.Register
	BuildStatusBus           = statusbus.Build

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger

	CreateULID    = idspkg.CreateULID
	NewEnvelopeID = idspkg.NewEnvelopeID
	NewDocumentID = idspkg.NewDocumentID
)

// Selection and invocation errors.
var (
	ErrAdapterTypeNotFound   = errspkg.ErrAdapterTypeNotFound
	ErrCapabilityUnsupported = errspkg.ErrCapabilityUnsupported
	ErrMissingConfiguration  = errspkg.ErrMissingConfiguration
	ErrFeatureDisabled       = errspkg.ErrFeatureDisabled
	ErrConfigRequired        = errspkg.ErrConfigRequired
	ErrProviderUnavailable   = errspkg.ErrProviderUnavailable
	ErrCircuitOpen           = errspkg.ErrCircuitOpen
)

// Correlation errors.
var (
	ErrDuplicateInternalID = errspkg.ErrDuplicateInternalID
	ErrAlreadyAttached     = errspkg.ErrAlreadyAttached
	ErrExternalIDInUse     = errspkg.ErrExternalIDInUse
	ErrNotFound            = errspkg.ErrNotFound
)

// Correlation status values.
const (
	StatusPending   = correlation.StatusPending
	StatusDraft     = correlation.StatusDraft
	StatusSent      = correlation.StatusSent
	StatusCompleted = correlation.StatusCompleted
	StatusDeclined  = correlation.StatusDeclined
	StatusVoided    = correlation.StatusVoided
)

// Circuit breaker states.
const (
	BreakerClosed   = resilience.StateClosed
	BreakerOpen     = resilience.StateOpen
	BreakerHalfOpen = resilience.StateHalfOpen
)

// Status bus delivery guarantees for the bundled buses.
var (
	ChannelGuarantees  = statusbus.ChannelGuarantees
	HTTPGuarantees     = statusbus.HTTPGuarantees
	NATSGuarantees     = statusbus.NATSGuarantees
	KafkaGuarantees    = statusbus.KafkaGuarantees
	RabbitMQGuarantees = statusbus.RabbitMQGuarantees
)
