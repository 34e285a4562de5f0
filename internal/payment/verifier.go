package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

var (
	// ErrInvalidSignature means the payload was not signed with the
	// webhook secret or the signature is too old.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrMalformedEvent means a correctly signed payload could not be
	// understood.
	ErrMalformedEvent = errors.New("malformed webhook event")
)

// EventCheckoutCompleted is the only event type that confirms a payment.
const EventCheckoutCompleted = "checkout.session.completed"

// SignatureTolerance bounds the age of a signed payload.
const SignatureTolerance = 5 * time.Minute

// Confirmation is a verified webhook.  BookingID is empty for event types
// that do not confirm a payment.
type Confirmation struct {
	EventID   string
	EventType string
	BookingID string
}

// Confirms reports whether the event confirms a booking payment.
func (c Confirmation) Confirms() bool { return c.BookingID != "" }

// StripeVerifier authenticates Stripe webhooks.
type StripeVerifier struct {
	secret    string
	tolerance time.Duration
}

// NewStripeVerifier returns a verifier for the endpoint signing secret.
func NewStripeVerifier(secret string) *StripeVerifier {
	return &StripeVerifier{secret: secret, tolerance: SignatureTolerance}
}

// ParseConfirmation checks the Stripe-Signature header of payload and
// extracts the booking id of a completed checkout session.
func (v *StripeVerifier) ParseConfirmation(payload []byte, signatureHeader string) (Confirmation, error) {
	if err := webhook.ValidatePayloadWithTolerance(payload, signatureHeader, v.secret, v.tolerance); err != nil {
		return Confirmation{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return Confirmation{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	c := Confirmation{EventID: event.ID, EventType: string(event.Type)}
	if c.EventType != EventCheckoutCompleted {
		return c, nil
	}
	if event.Data == nil {
		return Confirmation{}, fmt.Errorf("%w: event %s has no data", ErrMalformedEvent, event.ID)
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return Confirmation{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	c.BookingID = sess.Metadata[MetadataBookingID]
	if c.BookingID == "" {
		return Confirmation{}, fmt.Errorf("%w: session %s has no %s", ErrMalformedEvent, sess.ID, MetadataBookingID)
	}
	return c, nil
}
