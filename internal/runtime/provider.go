package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/docuflow/docuflow/adapter"
	configpkg "github.com/docuflow/docuflow/internal/runtime/config"
	"github.com/docuflow/docuflow/internal/runtime/correlation"
	errspkg "github.com/docuflow/docuflow/internal/runtime/errors"
	"github.com/docuflow/docuflow/internal/runtime/logging"
	metricspkg "github.com/docuflow/docuflow/internal/runtime/metrics"
	"github.com/docuflow/docuflow/internal/runtime/resilience"
)

// ProviderDependencies holds the optional collaborators for a Provider.
// Leave fields nil to use the defaults.
type ProviderDependencies struct {
	// Registry defaults to adapter.DefaultRegistry.
	Registry *adapter.Registry

	// Correlation defaults to a fresh in-memory store.
	Correlation correlation.Store

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Registerer defaults to the global Prometheus registerer. Metrics are
	// only registered when the configuration enables them.
	Registerer prometheus.Registerer
}

// Provider is the single entry point business logic uses to obtain
// capabilities. It composes the selector with the feature-flag set: a
// capability whose flag is off fails with ErrFeatureDisabled before the
// registry is ever consulted, so disabled-by-configuration is never confused
// with unsupported-by-adapter.
type Provider struct {
	confMu sync.RWMutex
	conf   *configpkg.Config

	registry    *adapter.Registry
	selector    *Selector
	correlation correlation.Store
	metrics     *metricspkg.Metrics
	log         logging.ServiceLogger
}

// NewProvider validates the configuration and wires the selection engine.
func NewProvider(conf *configpkg.Config, deps ProviderDependencies) (*Provider, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}

	registry := deps.Registry
	if registry == nil {
		registry = adapter.DefaultRegistry
	}
	slogger := deps.Logger
	if slogger == nil {
		slogger = slog.Default()
	}
	log := logging.NewSlogServiceLogger(slogger)

	var m *metricspkg.Metrics
	if conf.MetricsEnabled {
		m = metricspkg.New(deps.Registerer)
		if err := m.Register(); err != nil {
			return nil, fmt.Errorf("docuflow: registering metrics: %w", err)
		}
	}

	store := deps.Correlation
	if store == nil {
		store = correlation.NewMemoryStore(m)
	}

	policyCfg := resilience.PolicyConfig{
		CallTimeout:     conf.CallTimeout,
		MaxAttempts:     conf.RetryMaxAttempts,
		InitialInterval: conf.RetryInitialInterval,
		MaxInterval:     conf.RetryMaxInterval,
		Breaker: resilience.BreakerConfig{
			WindowSize:       conf.BreakerWindowSize,
			FailureThreshold: conf.BreakerFailureThreshold,
			MinSamples:       conf.BreakerMinSamples,
			Cooldown:         conf.BreakerCooldown,
			MaxProbes:        conf.BreakerProbes,
		},
	}

	log.Info("creating port provider", logging.LogFields{
		"storage_adapter": conf.StorageAdapter,
		"esign_adapter":   conf.ESignAdapter,
		"status_bus":      conf.StatusBus,
		"config":          conf,
	})

	return &Provider{
		conf:        conf,
		registry:    registry,
		selector:    NewSelector(registry, policyCfg, log, slogger, m),
		correlation: store,
		metrics:     m,
		log:         log,
	}, nil
}

// FeatureName returns the feature gate name for a capability.
func FeatureName(c adapter.Capability) string {
	return strings.ToLower(string(c))
}

// IsFeatureEnabled reports whether a feature gate is on. Gates are on unless
// the configuration disables them explicitly.
func (p *Provider) IsFeatureEnabled(name string) bool {
	p.confMu.RLock()
	defer p.confMu.RUnlock()
	return p.conf.FeatureEnabled(name)
}

// GetCapability returns the binding serving the capability. The feature gate
// is checked first; selection failures keep their distinct typed errors.
func (p *Provider) GetCapability(ctx context.Context, capability adapter.Capability) (*Binding, error) {
	feature := FeatureName(capability)
	p.confMu.RLock()
	conf := p.conf
	p.confMu.RUnlock()

	if !conf.FeatureEnabled(feature) {
		p.metrics.RecordSelectionFailure(string(capability), "feature_disabled")
		return nil, fmt.Errorf("%w: %s", errspkg.ErrFeatureDisabled, feature)
	}
	return p.selector.Select(ctx, capability, conf)
}

// Storage resolves the content-storage capability.
func (p *Provider) Storage(ctx context.Context) (adapter.ContentStorage, error) {
	binding, err := p.GetCapability(ctx, adapter.CapabilityContentStorage)
	if err != nil {
		return nil, err
	}
	return binding.Provider.Storage, nil
}

// Envelopes resolves the e-signature envelope capability.
func (p *Provider) Envelopes(ctx context.Context) (adapter.EnvelopeService, error) {
	binding, err := p.GetCapability(ctx, adapter.CapabilityEsignEnvelopes)
	if err != nil {
		return nil, err
	}
	return binding.Provider.Envelopes, nil
}

// Templates resolves the e-signature template capability.
func (p *Provider) Templates(ctx context.Context) (adapter.TemplateService, error) {
	binding, err := p.GetCapability(ctx, adapter.CapabilityEsignTemplates)
	if err != nil {
		return nil, err
	}
	return binding.Provider.Templates, nil
}

// Correlation returns the correlation store shared by the workflows and the
// reconcile service.
func (p *Provider) Correlation() correlation.Store {
	return p.correlation
}

// Config returns the active configuration.
func (p *Provider) Config() *configpkg.Config {
	p.confMu.RLock()
	defer p.confMu.RUnlock()
	return p.conf
}

// UpdateConfig swaps the active configuration and invalidates only the cached
// bindings whose relevant configuration slice changed.
func (p *Provider) UpdateConfig(conf *configpkg.Config) error {
	if conf == nil {
		return errspkg.ErrConfigRequired
	}
	if err := conf.Validate(); err != nil {
		return errspkg.NewConfigValidationError(err)
	}

	p.confMu.Lock()
	p.conf = conf
	p.confMu.Unlock()

	invalidated := p.selector.Refresh(conf)
	if len(invalidated) > 0 {
		p.log.Info("configuration change invalidated bindings", logging.LogFields{
			"capabilities": invalidated,
		})
	}
	return nil
}
