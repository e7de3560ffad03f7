// Package metrics defines the Prometheus collectors exported by the server.
//
// Metrics collected:
//   - agileboard_mutations_total: mutations by kind and outcome
//   - agileboard_mutation_duration_seconds: mutation processing time by kind
//   - agileboard_persist_failures_total: snapshot writes that failed
//   - agileboard_broadcast_dropped_total: events dropped on full send buffers
//   - agileboard_sessions: sessions held in memory
//   - agileboard_participants: connections joined to a session
//   - agileboard_connections: open real-time connections
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Mutation outcomes used as the "outcome" label.
const (
	OutcomeApplied  = "applied"
	OutcomeRejected = "rejected"
	OutcomeIgnored  = "ignored"
)

// Config configures collector registration.
type Config struct {
	// Namespace is the metrics namespace (default: "agileboard").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for mutation duration.
	// Default: prometheus.DefBuckets
	Buckets []float64
}

// Option configures collector registration.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// Metrics holds the server's collectors.
type Metrics struct {
	mutations        *prometheus.CounterVec
	mutationDuration *prometheus.HistogramVec
	persistFailures  prometheus.Counter
	broadcastDropped prometheus.Counter
	sessions         prometheus.Gauge
	participants     prometheus.Gauge
	connections      prometheus.Gauge
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer, opts ...Option) *Metrics {
	config := Config{
		Namespace: "agileboard",
		Buckets:   prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(reg)

	return &Metrics{
		mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "mutations_total",
			Help:        "Total number of board mutations processed",
			ConstLabels: config.ConstLabels,
		}, []string{"kind", "outcome"}),

		mutationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Name:        "mutation_duration_seconds",
			Help:        "Mutation processing duration in seconds, including persistence",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"kind"}),

		persistFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "persist_failures_total",
			Help:        "Total number of failed snapshot writes",
			ConstLabels: config.ConstLabels,
		}),

		broadcastDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "broadcast_dropped_total",
			Help:        "Total number of events dropped because a connection's send buffer was full",
			ConstLabels: config.ConstLabels,
		}),

		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "sessions",
			Help:        "Number of sessions held in memory",
			ConstLabels: config.ConstLabels,
		}),

		participants: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "participants",
			Help:        "Number of connections joined to a session",
			ConstLabels: config.ConstLabels,
		}),

		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "connections",
			Help:        "Number of open real-time connections",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// ObserveMutation records one processed mutation.
func (m *Metrics) ObserveMutation(kind, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(kind, outcome).Inc()
	m.mutationDuration.WithLabelValues(kind).Observe(seconds)
}

// PersistFailed counts a failed snapshot write.
func (m *Metrics) PersistFailed() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}

// BroadcastDropped counts an event dropped on a full send buffer.
func (m *Metrics) BroadcastDropped() {
	if m == nil {
		return
	}
	m.broadcastDropped.Inc()
}

// SetSessions sets the session gauge.
func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}

// SetParticipants sets the joined-connection gauge.
func (m *Metrics) SetParticipants(n int) {
	if m == nil {
		return
	}
	m.participants.Set(float64(n))
}

// ConnectionOpened increments the connection gauge.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

// ConnectionClosed decrements the connection gauge.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}
