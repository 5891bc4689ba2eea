package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		schedulerRunsTotal,
		schedulerRunDuration,
		cleanupDeletedTotal,
	)
}

var (
	schedulerRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_runs_total",
			Help: "Daily scheduler runs by outcome.",
		},
		[]string{"job", "outcome"}, // outcome: 'completed', 'failed', 'skipped_overlap'
	)

	schedulerRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_run_duration_seconds",
			Help:    "Wall time of one scheduler run.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"job"},
	)

	cleanupDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cleanup_deleted_total",
			Help: "Rows purged by the cleanup job.",
		},
		[]string{"record"}, // 'renewal_attempts', 'notification_events', 'subscriptions'
	)
)

func IncSchedulerRun(job, outcome string) {
	schedulerRunsTotal.WithLabelValues(norm(job), norm(outcome)).Inc()
}

func ObserveSchedulerRun(job string, seconds float64) {
	schedulerRunDuration.WithLabelValues(norm(job)).Observe(seconds)
}

func AddCleanupDeleted(record string, n int64) {
	cleanupDeletedTotal.WithLabelValues(norm(record)).Add(float64(n))
}
