package model

import "time"

// PaymentStatus is the payment state of a booking.  A booking that
// expires is deleted, so there is no "expired" value.
type PaymentStatus string

const (
	StatusPending PaymentStatus = "pending"
	StatusPaid    PaymentStatus = "paid"
)

// Booking records a user's claim on one or more seats of a show.
//
// Fields:
//  ID          – opaque booking identifier (UUID), also the seat holder reference.
//  ShowID      – show the seats belong to.
//  Seats       – booked seat ids in request order (1–5 entries).
//  UserID      – owning user.
//  AmountCents – amount to be paid in cents.
//  Status      – pending or paid.
//  PaymentLink – external checkout link; cleared once paid.
//  CreatedAt   – creation timestamp; the hold deadline is derived from it.
type Booking struct {
	ID          string        // bookings.id
	ShowID      string        // bookings.show_id
	Seats       []string      // bookings.seats (JSON)
	UserID      uint64        // bookings.user_id
	AmountCents uint32        // bookings.amount_cents
	Status      PaymentStatus // bookings.status
	PaymentLink string        // bookings.payment_link
	CreatedAt   time.Time     // bookings.created_at
}

// IsPaid reports whether the booking reached its permanent state.
func (b Booking) IsPaid() bool { return b.Status == StatusPaid }

// HoldDeadline is the instant after which an unpaid booking is released.
func (b Booking) HoldDeadline(hold time.Duration) time.Time {
	return b.CreatedAt.Add(hold)
}

// Dashboard aggregates admin statistics.
type Dashboard struct {
	TotalBookings int    `json:"total_bookings"`
	TotalRevenue  uint64 `json:"total_revenue_cents"`
	ActiveShows   []Show `json:"active_shows"`
	TotalUsers    int    `json:"total_users"`
}
