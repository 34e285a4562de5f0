// Package metrics declares the Prometheus collectors of the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quickshow"

var (
	// BookingTransitions counts lifecycle outcomes by name
	// (created, confirmed, already_paid, expired, already_gone).
	BookingTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "booking_transitions_total",
		Help:      "Booking lifecycle transitions by outcome.",
	}, []string{"outcome"})

	// SeatConflicts counts claims rejected because a seat was taken.
	SeatConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "seat_conflicts_total",
		Help:      "Seat claims rejected because a seat was already held.",
	})

	// ReconciliationFailures counts payments confirmed for bookings that
	// had already expired.  Each one needs a manual refund.
	ReconciliationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_reconciliation_failures_total",
		Help:      "Payment confirmations that arrived after the booking expired.",
	})

	// WebhookRejections counts payment callbacks refused by verification.
	WebhookRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_webhook_rejections_total",
		Help:      "Payment webhooks rejected, by reason.",
	}, []string{"reason"})

	// NotificationsSent counts delivered notifications by kind.
	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_sent_total",
		Help:      "Notifications delivered, by kind.",
	}, []string{"kind"})

	// NotificationsFailed counts notifications dropped after retries.
	NotificationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_failed_total",
		Help:      "Notifications that could not be delivered, by kind.",
	}, []string{"kind"})

	// OutboxForwarded counts outbox events handed to the broker.
	OutboxForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_forwarded_total",
		Help:      "Outbox events published to the notification queue.",
	})

	// SweepExpired counts bookings expired by the stale sweep rather than
	// by their release workflow.
	SweepExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stale_sweep_expired_total",
		Help:      "Pending bookings expired by the stale booking sweep.",
	})
)

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
