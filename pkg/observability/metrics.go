package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rendezvous-io/rendezvous/pkg/domain"
)

// Metrics exposes registry activity as Prometheus collectors and doubles as
// an event sink, so wiring one value into the coordinator covers both.
type Metrics struct {
	connectionsRegistered   prometheus.Counter
	connectionsUnregistered prometheus.Counter
	registryDegraded        prometheus.Counter
	isolationViolations     prometheus.Counter
	events                  *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connectionsRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rendezvous_connections_registered_total",
			Help: "Total number of WebSocket connections registered",
		}),
		connectionsUnregistered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rendezvous_connections_unregistered_total",
			Help: "Total number of WebSocket connections unregistered",
		}),
		registryDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rendezvous_registry_degraded_total",
			Help: "Total number of registry operations that fell back to degraded mode",
		}),
		isolationViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rendezvous_tenant_isolation_violations_total",
			Help: "Total number of denied cross-tenant access attempts",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rendezvous_events_total",
			Help: "Total registry events by name",
		}, []string{"event"}),
	}
	reg.MustRegister(
		m.connectionsRegistered,
		m.connectionsUnregistered,
		m.registryDegraded,
		m.isolationViolations,
		m.events,
	)
	return m
}

// RecordEvent implements ports.EventSink.
func (m *Metrics) RecordEvent(_ context.Context, name string, _ map[string]any) {
	switch name {
	case domain.EventConnectionRegistered:
		m.connectionsRegistered.Inc()
	case domain.EventConnectionUnregistered:
		m.connectionsUnregistered.Inc()
	case domain.EventRegistryDegraded:
		m.registryDegraded.Inc()
	case domain.EventIsolationViolation:
		m.isolationViolations.Inc()
	}
	m.events.WithLabelValues(name).Inc()
}
