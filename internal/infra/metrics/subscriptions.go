package metrics

import (
	"cuenty-subscription-engine/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		subscriptionsTotal,
		subscriptionsExpiredTotal,
		renewalsTotal,
		urgencyTier,
	)
}

var (
	subscriptionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscriptions_total",
			Help: "Current number of subscriptions by status.",
		},
		[]string{"status"},
	)

	subscriptionsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_expired_total",
			Help: "Grace subscriptions expired by the scheduler after the grace window elapsed.",
		},
	)

	renewalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renewals_total",
			Help: "Renewal attempt outcomes.",
		},
		[]string{"outcome"}, // 'succeeded', 'failed', 'skipped', 'replayed'
	)

	urgencyTier = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscriptions_urgency_tier",
			Help: "Subscriptions per days-remaining urgency tier, refreshed every scheduler run.",
		},
		[]string{"tier"}, // 'due', '1d', '2-3d', '4-7d', 'later'
	)
)

func SetSubscriptionsTotal(counts map[model.SubscriptionStatus]int) {
	for status, count := range counts {
		subscriptionsTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}

func IncSubscriptionsExpired(count int) {
	subscriptionsExpiredTotal.Add(float64(count))
}

func IncRenewal(outcome string) {
	renewalsTotal.WithLabelValues(norm(outcome)).Inc()
}

func SetUrgencyTier(tier string, count int) {
	urgencyTier.WithLabelValues(norm(tier)).Set(float64(count))
}
