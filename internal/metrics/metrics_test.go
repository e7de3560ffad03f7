package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveMutation("move-feature", OutcomeApplied, 0.002)
	m.ObserveMutation("move-feature", OutcomeApplied, 0.003)
	m.ObserveMutation("add-team", OutcomeRejected, 0.001)
	m.PersistFailed()
	m.BroadcastDropped()
	m.SetSessions(4)
	m.SetParticipants(2)
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.mutations.WithLabelValues("move-feature", OutcomeApplied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mutations.WithLabelValues("add-team", OutcomeRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.persistFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.broadcastDropped))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.sessions))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.participants))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connections))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "agileboard_mutations_total")
	assert.Contains(t, names, "agileboard_mutation_duration_seconds")
}

func TestNamespaceOption(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, WithNamespace("board"), WithConstLabels(prometheus.Labels{"env": "test"}))
	m.PersistFailed()

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		assert.NotContains(t, f.GetName(), "agileboard_")
		if f.GetName() == "board_persist_failures_total" {
			found = true
			require.Len(t, f.GetMetric(), 1)
			assert.Equal(t, "env", f.GetMetric()[0].GetLabel()[0].GetName())
		}
	}
	assert.True(t, found)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveMutation("x", OutcomeApplied, 1)
		m.PersistFailed()
		m.BroadcastDropped()
		m.SetSessions(1)
		m.SetParticipants(1)
		m.ConnectionOpened()
		m.ConnectionClosed()
	})
}
