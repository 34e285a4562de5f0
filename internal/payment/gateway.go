// Package payment talks to Stripe: it opens checkout sessions for new
// bookings and verifies the signed webhook that confirms a payment.
package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/iliyamo/quickshow-booking/internal/booking"
)

// MetadataBookingID is the checkout metadata key carrying the booking id.
const MetadataBookingID = "bookingId"

// minSessionLifetime is the shortest expiry Stripe accepts for a session.
const minSessionLifetime = 30 * time.Minute

// SessionCreator creates checkout sessions; *session.Client satisfies it.
type SessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeGateway implements booking.PaymentGateway with Stripe Checkout.
type StripeGateway struct {
	sessions    SessionCreator
	currency    string
	frontendURL string
	now         func() time.Time
}

// NewStripeGateway returns a gateway using secretKey.
func NewStripeGateway(secretKey, currency, frontendURL string) *StripeGateway {
	sc := client.New(secretKey, nil)
	return NewGatewayWithSessions(sc.CheckoutSessions, currency, frontendURL)
}

// NewGatewayWithSessions returns a gateway over an existing session client.
func NewGatewayWithSessions(sessions SessionCreator, currency, frontendURL string) *StripeGateway {
	return &StripeGateway{sessions: sessions, currency: currency, frontendURL: frontendURL, now: time.Now}
}

var _ booking.PaymentGateway = (*StripeGateway)(nil)

// CreatePaymentLink opens a checkout session for the booking amount and
// returns its URL.  The booking id travels in the session metadata and
// comes back with the completion webhook.
func (g *StripeGateway) CreatePaymentLink(ctx context.Context, req booking.PaymentRequest) (string, error) {
	name := req.Description
	if name == "" {
		name = "Booking " + req.BookingID
	}
	if req.Quantity > 0 {
		name = fmt.Sprintf("%s (%d seats)", name, req.Quantity)
	}
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(g.frontendURL + "/loading/my-bookings"),
		CancelURL:  stripe.String(g.frontendURL + "/my-bookings"),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(g.currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(name),
				},
				UnitAmount: stripe.Int64(int64(req.AmountCents)),
			},
			Quantity: stripe.Int64(1),
		}},
		Metadata:  map[string]string{MetadataBookingID: req.BookingID},
		ExpiresAt: stripe.Int64(g.now().Add(minSessionLifetime).Unix()),
	}
	params.Context = ctx

	sess, err := g.sessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	if sess.URL == "" {
		return "", fmt.Errorf("checkout session %s has no url", sess.ID)
	}
	return sess.URL, nil
}
