package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics tracks gateway round-trips and settlement outcomes.
type SettlementMetrics struct {
	gatewayDuration *prometheus.HistogramVec
	transitions     *prometheus.CounterVec
	noops           prometheus.Counter
	payouts         prometheus.Counter
}

// NewSettlementMetrics registers the settlement metrics on the provided registerer.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	gatewayDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "gateway_call_duration_seconds",
		Help:      "Duration of payment gateway calls in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlement_transitions_total",
		Help:      "Root transaction status transitions applied by the reconciler.",
	}, []string{"from", "to"})
	noops := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlement_noop_total",
		Help:      "Settlement requests that found nothing to change (duplicate deliveries, terminal roots).",
	})
	payouts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "seller_payouts_created_total",
		Help:      "Seller payout records created on successful settlement.",
	})
	reg.MustRegister(gatewayDuration, transitions, noops, payouts)
	return &SettlementMetrics{
		gatewayDuration: gatewayDuration,
		transitions:     transitions,
		noops:           noops,
		payouts:         payouts,
	}
}

// ObserveGatewayCall records one gateway call. A nil err counts as "ok".
func (m *SettlementMetrics) ObserveGatewayCall(method string, duration time.Duration, err error) {
	if m == nil || m.gatewayDuration == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.gatewayDuration.WithLabelValues(normalizeLabel(method), outcome).Observe(duration.Seconds())
}

// IncTransition counts a root moving between statuses.
func (m *SettlementMetrics) IncTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

// IncNoop counts a settlement call that changed nothing.
func (m *SettlementMetrics) IncNoop() {
	if m == nil || m.noops == nil {
		return
	}
	m.noops.Inc()
}

// AddPayouts counts created seller payouts.
func (m *SettlementMetrics) AddPayouts(n int) {
	if m == nil || m.payouts == nil || n <= 0 {
		return
	}
	m.payouts.Add(float64(n))
}
