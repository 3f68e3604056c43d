package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/docuflow/docuflow/adapter"
	configpkg "github.com/docuflow/docuflow/internal/runtime/config"
	errspkg "github.com/docuflow/docuflow/internal/runtime/errors"
	"github.com/docuflow/docuflow/internal/runtime/jsoncodec"
	"github.com/docuflow/docuflow/internal/runtime/logging"
	metricspkg "github.com/docuflow/docuflow/internal/runtime/metrics"
	"github.com/docuflow/docuflow/internal/runtime/resilience"
)

// Binding is the active association between a capability and the selected
// adapter: its descriptor, its live implementation already wrapped by the
// invocation policy, and the policy itself.
type Binding struct {
	Descriptor adapter.Descriptor
	Provider   adapter.Provider
	Policy     *resilience.Policy
}

type cacheEntry struct {
	fingerprint uint64
	binding     *Binding
}

// buildCall is an in-flight adapter build. Concurrent Select calls for the
// same capability wait on done and share the single resulting binding, so a
// capability is never served by two live bindings with separate circuit
// state.
type buildCall struct {
	fingerprint uint64
	done        chan struct{}
	binding     *Binding
	err         error
}

// Selector resolves capabilities against the adapter registry and the active
// configuration. Selections are cached per capability and keyed by a
// fingerprint of the configuration slice that influences them, so a config
// change invalidates only the affected capabilities.
type Selector struct {
	registry  *adapter.Registry
	policyCfg resilience.PolicyConfig
	log       logging.ServiceLogger
	slogger   *slog.Logger
	metrics   *metricspkg.Metrics

	mu     sync.Mutex
	cache  map[adapter.Capability]*cacheEntry
	builds map[adapter.Capability]*buildCall
	gen    uint64
}

// NewSelector creates a selector over the given registry.
func NewSelector(registry *adapter.Registry, policyCfg resilience.PolicyConfig, log logging.ServiceLogger, slogger *slog.Logger, m *metricspkg.Metrics) *Selector {
	if log == nil {
		log = logging.Nop()
	}
	if slogger == nil {
		slogger = slog.Default()
	}
	return &Selector{
		registry:  registry,
		policyCfg: policyCfg,
		log:       log,
		slogger:   slogger,
		metrics:   m,
		cache:     make(map[adapter.Capability]*cacheEntry),
		builds:    make(map[adapter.Capability]*buildCall),
	}
}

// Select resolves the capability to a bound adapter implementation. The
// algorithm is a fixed order of checks: type pin, capability support,
// required-property validation, then priority with registration-order
// tie-break. The same inputs always produce the same binding.
func (s *Selector) Select(ctx context.Context, capability adapter.Capability, conf *configpkg.Config) (*Binding, error) {
	fp := s.fingerprint(capability, conf)

	for {
		s.mu.Lock()
		if entry, ok := s.cache[capability]; ok && entry.fingerprint == fp {
			s.mu.Unlock()
			s.metrics.RecordCacheHit(string(capability))
			return entry.binding, nil
		}
		if call, ok := s.builds[capability]; ok {
			s.mu.Unlock()
			select {
			case <-call.done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if call.fingerprint == fp {
				return call.binding, call.err
			}
			// The in-flight build served a different configuration slice;
			// start over against the cache.
			continue
		}
		call := &buildCall{fingerprint: fp, done: make(chan struct{})}
		s.builds[capability] = call
		gen := s.gen
		s.mu.Unlock()

		candidate, err := s.resolve(capability, conf)
		var binding *Binding
		if err == nil {
			binding, err = s.bind(ctx, candidate, conf)
			if err != nil {
				s.metrics.RecordSelectionFailure(string(capability), "build_failed")
			}
		}

		s.mu.Lock()
		delete(s.builds, capability)
		// An Invalidate or Refresh that ran while the adapter was being
		// built wins: the binding is handed to the waiters but not cached.
		if err == nil && gen == s.gen {
			s.cache[capability] = &cacheEntry{fingerprint: fp, binding: binding}
		}
		s.mu.Unlock()

		call.binding, call.err = binding, err
		close(call.done)

		if err != nil {
			return nil, err
		}
		s.metrics.RecordSelection(string(capability), candidate.Descriptor.Type)
		s.log.Info("capability bound", logging.LogFields{
			"capability": string(capability),
			"adapter":    candidate.Descriptor.Type,
			"priority":   candidate.Descriptor.Priority,
		})
		return binding, nil
	}
}

// resolve applies selection steps 1-4 and returns the winning registration.
func (s *Selector) resolve(capability adapter.Capability, conf *configpkg.Config) (adapter.Registration, error) {
	// Step 1: type pin.
	var candidates []adapter.Registration
	if pin := conf.PinnedType(capability.Family()); pin != "" {
		reg, ok := s.registry.ByType(pin)
		if !ok {
			s.metrics.RecordSelectionFailure(string(capability), "type_not_found")
			return adapter.Registration{}, fmt.Errorf("%w: %q (registered: %v)",
				errspkg.ErrAdapterTypeNotFound, pin, s.registry.Types())
		}
		candidates = []adapter.Registration{reg}
	} else {
		candidates = s.registry.ByCapability(capability)
	}

	// Step 2: capability filter.
	supported := candidates[:0:0]
	for _, reg := range candidates {
		if reg.Descriptor.Supports(capability) {
			supported = append(supported, reg)
		}
	}
	if len(supported) == 0 {
		s.metrics.RecordSelectionFailure(string(capability), "capability_unsupported")
		return adapter.Registration{}, fmt.Errorf("%w: %s", errspkg.ErrCapabilityUnsupported, capability)
	}

	// Steps 3-4: required-property validation in priority order. Candidates
	// that fail validation are skipped, not fatal; the reported missing keys
	// belong to the highest-priority candidate.
	var firstMissing *errspkg.MissingConfigurationError
	for _, reg := range supported {
		missing := reg.Descriptor.MissingProperties(conf.PropertiesFor(reg.Descriptor.Type))
		if len(missing) == 0 {
			return reg, nil
		}
		if firstMissing == nil {
			firstMissing = &errspkg.MissingConfigurationError{
				AdapterType: reg.Descriptor.Type,
				Keys:        missing,
			}
		}
	}
	s.metrics.RecordSelectionFailure(string(capability), "missing_configuration")
	return adapter.Registration{}, firstMissing
}

// bind builds the adapter instance and attaches a fresh invocation policy.
// The policy wraps every capability surface the adapter exposes, so circuit
// state is shared by all calls through this binding.
func (s *Selector) bind(ctx context.Context, reg adapter.Registration, conf *configpkg.Config) (*Binding, error) {
	props := conf.PropertiesFor(reg.Descriptor.Type)
	provider, err := reg.Builder(ctx, props, s.slogger)
	if err != nil {
		return nil, fmt.Errorf("docuflow: building adapter %q: %w", reg.Descriptor.Type, err)
	}

	policy := resilience.NewPolicy(reg.Descriptor.Type, s.policyCfg, s.log, s.metrics)
	if provider.Storage != nil {
		provider.Storage = &resilientStorage{inner: provider.Storage, policy: policy}
	}
	if provider.Envelopes != nil {
		provider.Envelopes = &resilientEnvelopes{inner: provider.Envelopes, policy: policy}
	}
	if provider.Templates != nil {
		provider.Templates = &resilientTemplates{inner: provider.Templates, policy: policy}
	}

	return &Binding{
		Descriptor: reg.Descriptor,
		Provider:   provider,
		Policy:     policy,
	}, nil
}

// fingerprint hashes the configuration slice relevant to one capability: the
// family pin plus the properties of every adapter that could serve it.
func (s *Selector) fingerprint(capability adapter.Capability, conf *configpkg.Config) uint64 {
	relevant := struct {
		Pin   string                        `json:"pin"`
		Props map[string]adapter.Properties `json:"props"`
	}{
		Pin:   conf.PinnedType(capability.Family()),
		Props: make(map[string]adapter.Properties),
	}
	for _, reg := range s.registry.ByCapability(capability) {
		relevant.Props[reg.Descriptor.Type] = conf.PropertiesFor(reg.Descriptor.Type)
	}

	payload, err := jsoncodec.MarshalCanonical(relevant)
	if err != nil {
		// Unreachable for map[string]string payloads.
		return 0
	}
	return xxhash.Sum64(payload)
}

// Refresh drops cached bindings whose configuration fingerprint no longer
// matches conf. Bindings for unaffected capabilities survive.
func (s *Selector) Refresh(conf *configpkg.Config) []adapter.Capability {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	var invalidated []adapter.Capability
	for capability, entry := range s.cache {
		if entry.fingerprint != s.fingerprint(capability, conf) {
			delete(s.cache, capability)
			invalidated = append(invalidated, capability)
		}
	}
	return invalidated
}

// Invalidate drops the cached bindings for the given capabilities, or every
// binding when none are named.
func (s *Selector) Invalidate(capabilities ...adapter.Capability) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	if len(capabilities) == 0 {
		s.cache = make(map[adapter.Capability]*cacheEntry)
		return
	}
	for _, capability := range capabilities {
		delete(s.cache, capability)
	}
}
