package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"

	"github.com/iliyamo/quickshow-booking/internal/booking"
)

const testSecret = "whsec_test_secret"

// sign builds a Stripe-Signature header for payload.
func sign(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func completedEvent(bookingID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_1", "object": "checkout.session", "metadata": {"bookingId": %q}}}
	}`, bookingID))
}

func TestParseConfirmation_Completed(t *testing.T) {
	payload := completedEvent("b1")

	c, err := NewStripeVerifier(testSecret).ParseConfirmation(payload, sign(payload, testSecret, time.Now()))

	require.NoError(t, err)
	assert.True(t, c.Confirms())
	assert.Equal(t, "b1", c.BookingID)
	assert.Equal(t, "evt_1", c.EventID)
}

func TestParseConfirmation_Rejections(t *testing.T) {
	payload := completedEvent("b1")
	v := NewStripeVerifier(testSecret)

	cases := []struct {
		name    string
		payload []byte
		header  string
		want    error
	}{
		{"unsigned", payload, "", ErrInvalidSignature},
		{"wrong secret", payload, sign(payload, "whsec_other", time.Now()), ErrInvalidSignature},
		{"stale signature", payload, sign(payload, testSecret, time.Now().Add(-time.Hour)), ErrInvalidSignature},
		{"tampered body", []byte(`{"type":"checkout.session.completed"}`), sign(payload, testSecret, time.Now()), ErrInvalidSignature},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.ParseConfirmation(tc.payload, tc.header)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestParseConfirmation_Malformed(t *testing.T) {
	v := NewStripeVerifier(testSecret)
	for name, payload := range map[string][]byte{
		"not json":   []byte(`{"type":`),
		"no booking": completedEvent(""),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.ParseConfirmation(payload, sign(payload, testSecret, time.Now()))
			assert.ErrorIs(t, err, ErrMalformedEvent)
		})
	}
}

func TestParseConfirmation_OtherEventsIgnored(t *testing.T) {
	payload := []byte(`{"id":"evt_2","object":"event","type":"payment_intent.created","data":{"object":{}}}`)

	c, err := NewStripeVerifier(testSecret).ParseConfirmation(payload, sign(payload, testSecret, time.Now()))

	require.NoError(t, err)
	assert.False(t, c.Confirms())
	assert.Equal(t, "payment_intent.created", c.EventType)
}

type mockSessions struct{ mock.Mock }

func (m *mockSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	args := m.Called(params)
	sess, _ := args.Get(0).(*stripe.CheckoutSession)
	return sess, args.Error(1)
}

func TestStripeGateway_CreatePaymentLink(t *testing.T) {
	sessions := &mockSessions{}
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	g := NewGatewayWithSessions(sessions, "usd", "https://quickshow.test")
	g.now = func() time.Time { return now }

	sessions.On("New", mock.MatchedBy(func(p *stripe.CheckoutSessionParams) bool {
		item := p.LineItems[0]
		return p.Metadata[MetadataBookingID] == "b1" &&
			*item.PriceData.UnitAmount == 2400 &&
			*item.PriceData.Currency == "usd" &&
			*item.PriceData.ProductData.Name == "Dune (2 seats)" &&
			*p.ExpiresAt == now.Add(30*time.Minute).Unix() &&
			*p.SuccessURL == "https://quickshow.test/loading/my-bookings"
	})).Return(&stripe.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.test/cs_1"}, nil)

	link, err := g.CreatePaymentLink(context.Background(), booking.PaymentRequest{
		BookingID: "b1", AmountCents: 2400, Description: "Dune", Quantity: 2,
	})

	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.test/cs_1", link)
	sessions.AssertExpectations(t)
}

func TestStripeGateway_Failure(t *testing.T) {
	sessions := &mockSessions{}
	sessions.On("New", mock.Anything).Return(nil, errors.New("api unavailable"))

	_, err := NewGatewayWithSessions(sessions, "usd", "").CreatePaymentLink(context.Background(), booking.PaymentRequest{BookingID: "b1"})
	assert.ErrorContains(t, err, "api unavailable")
}
