package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		notificationsTotal,
		notificationRetries,
		notificationAlerts,
	)
}

var (
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification dispatch outcomes by kind.",
		},
		[]string{"kind", "outcome"}, // outcome: 'succeeded', 'failed', 'deduped'
	)

	notificationRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_retries_total",
			Help: "Delivery attempts beyond the first, across all events.",
		},
	)

	notificationAlerts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notification_alerts",
			Help: "Events that exhausted retries and await admin action.",
		},
	)
)

func IncNotification(kind, outcome string) {
	notificationsTotal.WithLabelValues(norm(kind), norm(outcome)).Inc()
}

func IncNotificationRetry() { notificationRetries.Inc() }

func SetNotificationAlerts(n int) { notificationAlerts.Set(float64(n)) }
