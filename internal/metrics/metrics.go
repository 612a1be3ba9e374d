package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bookingOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_operations_total",
			Help: "Booking operations by kind and result",
		},
		[]string{"operation", "result"},
	)

	writeConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_write_conflicts_total",
			Help: "Optimistic write conflicts on inventory rows",
		},
		[]string{"operation"},
	)

	reclaimedBookings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reclaim_bookings_total",
			Help: "Bookings processed by the expiry sweep",
		},
		[]string{"result"},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reclaim_sweep_duration_seconds",
			Help:    "Duration of a single expiry sweep",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)

	paymentOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_outcomes_total",
			Help: "Payment outcomes received",
		},
		[]string{"outcome", "result"},
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// TrackBooking — operation: create, replay, confirm, cancel, expire.
func TrackBooking(operation, result string) {
	bookingOperations.WithLabelValues(operation, result).Inc()
}

func TrackWriteConflict(operation string) {
	writeConflicts.WithLabelValues(operation).Inc()
}

func TrackReclaim(result string, n int) {
	if n <= 0 {
		return
	}
	reclaimedBookings.WithLabelValues(result).Add(float64(n))
}

func TrackSweep(d time.Duration) {
	sweepDuration.Observe(d.Seconds())
}

func TrackPaymentOutcome(outcome, result string) {
	paymentOutcomes.WithLabelValues(outcome, result).Inc()
}

func TrackHTTP(method, route string, status int, d time.Duration) {
	httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
