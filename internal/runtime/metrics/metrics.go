package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks port provider engine statistics: capability selections,
// resilient invocations, circuit breaker state, and correlation store
// activity. A nil *Metrics is valid and records nothing, so call sites never
// need to guard.
type Metrics struct {
	mu sync.Mutex

	selectionsTotal   *prometheus.CounterVec
	selectionFailures *prometheus.CounterVec
	cacheHitsTotal    *prometheus.CounterVec

	invocationsTotal *prometheus.CounterVec
	retriesTotal     *prometheus.CounterVec
	breakerState     *prometheus.GaugeVec
	breakerChanges   *prometheus.CounterVec

	statusUpdates      *prometheus.CounterVec
	correlationRecords prometheus.Gauge

	registerer prometheus.Registerer
	registered bool
}

// newCounterVec creates a counter vec with the standard docuflow namespace.
func newCounterVec(subsystem, name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docuflow",
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// New creates the engine metrics collectors. Pass nil to use the default
// Prometheus registerer.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		registerer:        registerer,
		selectionsTotal:   newCounterVec("selector", "selections_total", "Total number of successful adapter selections", []string{"capability", "adapter"}),
		selectionFailures: newCounterVec("selector", "selection_failures_total", "Total number of failed adapter selections", []string{"capability", "reason"}),
		cacheHitsTotal:    newCounterVec("selector", "cache_hits_total", "Total number of selection cache hits", []string{"capability"}),
		invocationsTotal:  newCounterVec("policy", "invocations_total", "Total number of resilient invocations by outcome", []string{"adapter", "outcome"}),
		retriesTotal:      newCounterVec("policy", "retries_total", "Total number of retry attempts", []string{"adapter"}),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "docuflow",
				Subsystem: "policy",
				Name:      "breaker_state",
				Help:      "Current circuit breaker state per adapter (0=closed, 1=open, 2=half-open)",
			},
			[]string{"adapter"},
		),
		breakerChanges: newCounterVec("policy", "breaker_transitions_total", "Total number of circuit breaker state transitions", []string{"adapter", "to"}),
		statusUpdates:  newCounterVec("correlation", "status_updates_total", "Total number of status updates by result", []string{"result"}),
		correlationRecords: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "docuflow",
				Subsystem: "correlation",
				Name:      "records",
				Help:      "Current number of correlation records",
			},
		),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.selectionsTotal,
		m.selectionFailures,
		m.cacheHitsTotal,
		m.invocationsTotal,
		m.retriesTotal,
		m.breakerState,
		m.breakerChanges,
		m.statusUpdates,
		m.correlationRecords,
	}
	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	m.registered = true
	return nil
}

func (m *Metrics) RecordSelection(capability, adapterType string) {
	if m == nil {
		return
	}
	m.selectionsTotal.WithLabelValues(capability, adapterType).Inc()
}

func (m *Metrics) RecordSelectionFailure(capability, reason string) {
	if m == nil {
		return
	}
	m.selectionFailures.WithLabelValues(capability, reason).Inc()
}

func (m *Metrics) RecordCacheHit(capability string) {
	if m == nil {
		return
	}
	m.cacheHitsTotal.WithLabelValues(capability).Inc()
}

func (m *Metrics) RecordInvocation(adapterType, outcome string) {
	if m == nil {
		return
	}
	m.invocationsTotal.WithLabelValues(adapterType, outcome).Inc()
}

func (m *Metrics) RecordRetry(adapterType string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(adapterType).Inc()
}

func (m *Metrics) SetBreakerState(adapterType string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(adapterType).Set(float64(state))
	switch state {
	case 0:
		m.breakerChanges.WithLabelValues(adapterType, "closed").Inc()
	case 1:
		m.breakerChanges.WithLabelValues(adapterType, "open").Inc()
	case 2:
		m.breakerChanges.WithLabelValues(adapterType, "half_open").Inc()
	}
}

func (m *Metrics) RecordStatusUpdate(applied bool) {
	if m == nil {
		return
	}
	if applied {
		m.statusUpdates.WithLabelValues("applied").Inc()
	} else {
		m.statusUpdates.WithLabelValues("stale").Inc()
	}
}

func (m *Metrics) SetCorrelationRecords(n int) {
	if m == nil {
		return
	}
	m.correlationRecords.Set(float64(n))
}
