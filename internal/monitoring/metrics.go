package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reservationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_reservation_attempts_total",
			Help: "Reservation attempts by outcome",
		},
		[]string{"outcome"},
	)

	reservationTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_reservation_transitions_total",
			Help: "Reservations leaving the active state, by terminal state",
		},
		[]string{"state"},
	)

	purchaseOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_purchases_total",
			Help: "Purchases by payment status",
		},
		[]string{"status"},
	)

	ticketTypeTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_ticket_type_transitions_total",
			Help: "Ticket type lifecycle transitions by target status",
		},
		[]string{"status"},
	)

	forfeitedTickets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketing_forfeited_tickets_total",
			Help: "Capacity dropped when a ticket type closed with no pending successor",
		},
	)

	paymentRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_payment_provider_requests_total",
			Help: "Payment provider calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	paymentLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ticketing_payment_provider_duration_seconds",
			Help:    "Payment provider call latency including retries",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"operation"},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ticketing_expiry_sweep_duration_seconds",
			Help:    "Duration of one reservation expiry sweep",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func RecordReservationAttempt(outcome string) {
	reservationAttempts.WithLabelValues(outcome).Inc()
}

func RecordReservationTransition(state string) {
	reservationTransitions.WithLabelValues(state).Inc()
}

func RecordPurchase(status string) {
	purchaseOutcomes.WithLabelValues(status).Inc()
}

func RecordTicketTypeTransition(status string) {
	ticketTypeTransitions.WithLabelValues(status).Inc()
}

func RecordForfeited(n int) {
	forfeitedTickets.Add(float64(n))
}

func RecordPaymentRequest(operation, outcome string, started time.Time) {
	paymentRequests.WithLabelValues(operation, outcome).Inc()
	paymentLatency.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func ObserveSweep(started time.Time) {
	sweepDuration.Observe(time.Since(started).Seconds())
}
