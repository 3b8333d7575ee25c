package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.BarCreated()
	m.VoteCast()
	m.VoteCast()
	m.Observe("cast_vote", "ok", 0.01)
	m.Observe("cast_vote", "conflict", 0.02)
	m.SubscriberAdded()
	m.SubscriberAdded()
	m.SubscriberRemoved()

	assert.InDelta(t, 1, testutil.ToFloat64(m.barsCreated), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.votesCast), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.operations.WithLabelValues("cast_vote", "conflict")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.sseSubscribers), 0)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.BarCreated()
		m.Observe("reveal", "ok", 1)
		m.SubscriberRemoved()
		m.MetadataLookup("error")
	})
}
