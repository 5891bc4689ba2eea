package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		slotReservationsTotal,
		slotReleasesTotal,
		slotsOccupied,
		slotsCapacity,
		allocationExhaustedTotal,
	)
}

var (
	slotReservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slot_reservations_total",
			Help: "Slot reservation outcomes.",
		},
		[]string{"outcome"}, // 'reserved', 'no_capacity', 'conflict'
	)

	slotReleasesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "slot_releases_total",
			Help: "Total number of slot releases (idempotent no-ops excluded).",
		},
	)

	slotsOccupied = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "account_slots_occupied",
			Help: "Occupied slots per service.",
		},
		[]string{"service"},
	)

	slotsCapacity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "account_slots_capacity",
			Help: "Total slot capacity per service.",
		},
		[]string{"service"},
	)

	allocationExhaustedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocation_exhausted_total",
			Help: "Allocation requests that found every matching account at capacity.",
		},
		[]string{"service"},
	)
)

func IncSlotReservation(outcome string) {
	slotReservationsTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncSlotRelease() { slotReleasesTotal.Inc() }

func SetServiceCapacity(service string, occupied, capacity int) {
	slotsOccupied.WithLabelValues(norm(service)).Set(float64(occupied))
	slotsCapacity.WithLabelValues(norm(service)).Set(float64(capacity))
}

func IncAllocationExhausted(service string) {
	allocationExhaustedTotal.WithLabelValues(norm(service)).Inc()
}
