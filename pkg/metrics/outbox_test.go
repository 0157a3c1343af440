package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxMetricsCountsOutcomesAndLag(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)

	m.ObserveBatch(3)
	m.IncOutcome("transaction_settled", OutcomePublished, time.Now().Add(-2*time.Second))
	m.IncOutcome("transaction_settled", OutcomeRetry, time.Now())
	m.IncOutcome("license_deleted", OutcomeDeadLetter, time.Time{})

	mfs, err := reg.Gather()
	require.NoError(t, err)

	published, err := findSeries(mfs, "beatstore_outbox_events_total", map[string]string{"event_type": "transaction_settled", "outcome": OutcomePublished})
	require.NoError(t, err)
	assert.Equal(t, 1.0, published.GetCounter().GetValue())

	dead, err := fetchCounterValue(mfs, "beatstore_outbox_events_total", "outcome", OutcomeDeadLetter)
	require.NoError(t, err)
	assert.Equal(t, 1.0, dead)

	lag := findMetricFamily(mfs, "beatstore_outbox_publish_lag_seconds")
	require.NotNil(t, lag)
	assert.Equal(t, uint64(1), lag.GetMetric()[0].GetHistogram().GetSampleCount())
	assert.GreaterOrEqual(t, lag.GetMetric()[0].GetHistogram().GetSampleSum(), 2.0)

	batch := findMetricFamily(mfs, "beatstore_outbox_batch_size")
	require.NotNil(t, batch)
	assert.Equal(t, 3.0, batch.GetMetric()[0].GetHistogram().GetSampleSum())
}
