package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/quickshow-booking/internal/booking"
	"github.com/iliyamo/quickshow-booking/internal/logging"
	"github.com/iliyamo/quickshow-booking/internal/metrics"
	"github.com/iliyamo/quickshow-booking/internal/payment"
)

// maxWebhookBody caps the payload read from the payment provider.
const maxWebhookBody = 64 << 10

// PaymentVerifier authenticates payment provider callbacks.
type PaymentVerifier interface {
	ParseConfirmation(payload []byte, signatureHeader string) (payment.Confirmation, error)
}

// PaymentHandler receives payment confirmations.
type PaymentHandler struct {
	Verifier PaymentVerifier
	Bookings BookingService
}

func NewPaymentHandler(v PaymentVerifier, bookings BookingService) *PaymentHandler {
	return &PaymentHandler{Verifier: v, Bookings: bookings}
}

// StripeWebhook handles POST /api/stripe.  The body must be the raw
// payload the signature was computed over.
//
// Unverifiable requests get 400 and change nothing.  A payment for an
// expired booking is acknowledged with 200 so the provider stops retrying,
// and flagged for a manual refund.  Other failures answer 500 and the
// provider redelivers.
func (h *PaymentHandler) StripeWebhook(c echo.Context) error {
	log := logging.FromContext(c.Request().Context())
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
	}

	conf, err := h.Verifier.ParseConfirmation(body, c.Request().Header.Get("Stripe-Signature"))
	if err != nil {
		reason := "malformed"
		if errors.Is(err, payment.ErrInvalidSignature) {
			reason = "invalid_signature"
		}
		metrics.WebhookRejections.WithLabelValues(reason).Inc()
		log.WithFields(logrus.Fields{
			"security_event": true,
			"reason":         reason,
			"remote_ip":      c.RealIP(),
		}).WithError(err).Warn("payment webhook rejected")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "webhook rejected"})
	}

	log = log.WithFields(logrus.Fields{"event_id": conf.EventID, "event_type": conf.EventType})
	if !conf.Confirms() {
		log.Debug("payment webhook ignored")
		return c.JSON(http.StatusOK, echo.Map{"received": true})
	}
	log = log.WithField("booking_id", conf.BookingID)

	outcome, err := h.Bookings.ConfirmPayment(c.Request().Context(), conf.BookingID)
	switch {
	case errors.Is(err, booking.ErrBookingExpired):
		metrics.ReconciliationFailures.Inc()
		log.WithField("reconciliation", "booking_expired").Error("payment received for expired booking, refund required")
		return c.JSON(http.StatusOK, echo.Map{"received": true, "reconciliation": "booking_expired"})
	case err != nil:
		log.WithError(err).Error("payment confirmation failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "confirmation failed"})
	}
	log.WithField("outcome", outcome).Info("payment confirmed")
	return c.JSON(http.StatusOK, echo.Map{"received": true, "outcome": outcome})
}
