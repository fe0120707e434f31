package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bookingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ems_booking_transitions_total",
			Help: "Booking state changes by resulting status",
		},
		[]string{"status", "reason"},
	)

	capacityRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ems_capacity_rejections_total",
			Help: "Reservations refused by the inventory ledger",
		},
		[]string{"event_id", "category_id"},
	)

	ticketsSold = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ems_ledger_tickets_total",
			Help: "Tickets reserved and released through the ledger",
		},
		[]string{"operation"},
	)

	reconcileOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ems_payment_reconcile_total",
			Help: "Payment reconciliation outcomes by source",
		},
		[]string{"source", "outcome"},
	)

	waitlistNotified = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ems_waitlist_notified_total",
			Help: "Waitlist entries popped by the cascade",
		},
	)

	reaperSweeps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ems_reaper_bookings_total",
			Help: "Bookings processed by the expiration reaper",
		},
		[]string{"result"},
	)

	reaperDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ems_reaper_sweep_duration_seconds",
			Help:    "Duration of reaper sweeps",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ems_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

func TrackBookingTransition(status, reason string) {
	bookingTransitions.WithLabelValues(status, reason).Inc()
}

func TrackCapacityRejection(eventID, categoryID string) {
	capacityRejections.WithLabelValues(eventID, categoryID).Inc()
}

func TrackReserved(qty int) {
	ticketsSold.WithLabelValues("reserve").Add(float64(qty))
}

func TrackReleased(qty int) {
	ticketsSold.WithLabelValues("release").Add(float64(qty))
}

func TrackReconcile(source, outcome string) {
	reconcileOutcomes.WithLabelValues(source, outcome).Inc()
}

func TrackWaitlistNotified(n int) {
	waitlistNotified.Add(float64(n))
}

func TrackReaper(result string, n int) {
	reaperSweeps.WithLabelValues(result).Add(float64(n))
}

func ObserveReaperSweep(d time.Duration) {
	reaperDuration.Observe(d.Seconds())
}

func ObserveHTTP(method, route, status string, d time.Duration) {
	httpDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}
