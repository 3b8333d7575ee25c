// Package metrics holds the Prometheus collectors for bar activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts game operations. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	barsCreated     prometheus.Counter
	membersJoined   prometheus.Counter
	submissions     prometheus.Counter
	cyclesStarted   prometheus.Counter
	votesCast       prometheus.Counter
	reveals         prometheus.Counter
	operations      *prometheus.CounterVec
	operationTime   *prometheus.HistogramVec
	sseSubscribers  prometheus.Gauge
	metadataLookups *prometheus.CounterVec
}

func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		barsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "hipsterbar_bars_created_total",
			Help: "number of bars created",
		}),
		membersJoined: factory.NewCounter(prometheus.CounterOpts{
			Name: "hipsterbar_members_joined_total",
			Help: "number of members that joined a bar",
		}),
		submissions: factory.NewCounter(prometheus.CounterOpts{
			Name: "hipsterbar_submissions_total",
			Help: "number of accepted video submissions",
		}),
		cyclesStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "hipsterbar_cycles_started_total",
			Help: "number of brew cycles started",
		}),
		votesCast: factory.NewCounter(prometheus.CounterOpts{
			Name: "hipsterbar_votes_cast_total",
			Help: "number of votes cast",
		}),
		reveals: factory.NewCounter(prometheus.CounterOpts{
			Name: "hipsterbar_reveals_total",
			Help: "number of cycles revealed",
		}),
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hipsterbar_operations_total",
			Help: "game operations by name and outcome",
		}, []string{"operation", "outcome"}),
		operationTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hipsterbar_operation_duration_seconds",
			Help:    "time spent applying a game operation, including storage",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		sseSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hipsterbar_event_subscribers",
			Help: "number of connected event stream subscribers",
		}),
		metadataLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hipsterbar_metadata_lookups_total",
			Help: "video metadata lookups by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) BarCreated() {
	if m != nil {
		m.barsCreated.Inc()
	}
}

func (m *Metrics) MemberJoined() {
	if m != nil {
		m.membersJoined.Inc()
	}
}

func (m *Metrics) Submitted() {
	if m != nil {
		m.submissions.Inc()
	}
}

func (m *Metrics) CycleStarted() {
	if m != nil {
		m.cyclesStarted.Inc()
	}
}

func (m *Metrics) VoteCast() {
	if m != nil {
		m.votesCast.Inc()
	}
}

func (m *Metrics) Revealed() {
	if m != nil {
		m.reveals.Inc()
	}
}

// Observe records one finished operation. outcome is "ok" or an error
// category.
func (m *Metrics) Observe(operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.operationTime.WithLabelValues(operation).Observe(seconds)
}

func (m *Metrics) SubscriberAdded() {
	if m != nil {
		m.sseSubscribers.Inc()
	}
}

func (m *Metrics) SubscriberRemoved() {
	if m != nil {
		m.sseSubscribers.Dec()
	}
}

func (m *Metrics) MetadataLookup(outcome string) {
	if m != nil {
		m.metadataLookups.WithLabelValues(outcome).Inc()
	}
}
