package notify

import "time"

// Event types carried on the notification queue.  The type travels in the
// AMQP Type property; the body is the JSON payload below.
const (
	EventBookingPaid  = "booking.paid"
	EventShowAdded    = "show.added"
	EventShowReminder = "show.reminder"
)

// BookingPaid is emitted when a booking is confirmed.
type BookingPaid struct {
	BookingID string `json:"booking_id"`
}

// ShowAdded is emitted when an admin schedules a show.
type ShowAdded struct {
	ShowID     string    `json:"show_id"`
	MovieTitle string    `json:"movie_title"`
	StartsAt   time.Time `json:"starts_at"`
}

// ShowReminder asks for one user to be reminded of an upcoming show.
type ShowReminder struct {
	ShowID     string    `json:"show_id"`
	UserID     uint64    `json:"user_id"`
	MovieTitle string    `json:"movie_title"`
	StartsAt   time.Time `json:"starts_at"`
}
