package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Relay outcomes for a single outbox row.
const (
	OutcomePublished  = "published"
	OutcomeRetry      = "retry"
	OutcomeDeadLetter = "dead_letter"
	OutcomeHeld       = "held"
)

// OutboxMetrics tracks the outbox relay.
type OutboxMetrics struct {
	events    *prometheus.CounterVec
	batchSize prometheus.Histogram
	lag       prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_total",
			Help:      "Outbox rows handled by the relay, by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "batch_size",
			Help:      "Rows claimed per relay batch.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		lag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "publish_lag_seconds",
			Help:      "Time between a row being queued and being published.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
	reg.MustRegister(m.events, m.batchSize, m.lag)
	return m
}

// ObserveBatch records how many rows one relay pass claimed.
func (m *OutboxMetrics) ObserveBatch(rows int) {
	if m == nil || m.batchSize == nil {
		return
	}
	m.batchSize.Observe(float64(rows))
}

// IncOutcome counts one row. Published rows also feed the lag histogram.
func (m *OutboxMetrics) IncOutcome(eventType, outcome string, queuedAt time.Time) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
	if outcome == OutcomePublished && !queuedAt.IsZero() {
		m.lag.Observe(time.Since(queuedAt).Seconds())
	}
}
