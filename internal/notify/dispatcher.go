package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/quickshow-booking/internal/logging"
	"github.com/iliyamo/quickshow-booking/internal/metrics"
	"github.com/iliyamo/quickshow-booking/internal/model"
)

// ErrUnknownEvent is returned for event types the dispatcher does not handle.
var ErrUnknownEvent = errors.New("unknown notification event")

// BookingReader loads bookings.
type BookingReader interface {
	Get(ctx context.Context, id string) (model.Booking, error)
}

// ShowReader loads shows.
type ShowReader interface {
	Get(ctx context.Context, id string) (model.Show, error)
}

// UserDirectory resolves users to contact details.
type UserDirectory interface {
	Contact(ctx context.Context, userID uint64) (model.Contact, error)
	ActiveContacts(ctx context.Context) ([]model.Contact, error)
}

// Mailer delivers one message.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Dispatcher turns notification events into mail.  Failures here never
// touch booking state; they are logged, counted and dropped.
type Dispatcher struct {
	bookings BookingReader
	shows    ShowReader
	users    UserDirectory
	mailer   Mailer

	sendAttempts uint64
	newBackOff   func() backoff.BackOff
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithRetryBackOff replaces the backoff used between send attempts.
func WithRetryBackOff(f func() backoff.BackOff) DispatcherOption {
	return func(d *Dispatcher) { d.newBackOff = f }
}

// NewDispatcher wires a Dispatcher.  Each mail is attempted three times.
func NewDispatcher(bookings BookingReader, shows ShowReader, users UserDirectory, mailer Mailer, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		bookings:     bookings,
		shows:        shows,
		users:        users,
		mailer:       mailer,
		sendAttempts: 3,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Handle decodes body according to eventType and sends the matching mail.
func (d *Dispatcher) Handle(ctx context.Context, eventType string, body []byte) error {
	switch eventType {
	case EventBookingPaid:
		var ev BookingPaid
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", eventType, err)
		}
		return d.bookingPaid(ctx, ev)
	case EventShowAdded:
		var ev ShowAdded
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", eventType, err)
		}
		return d.showAdded(ctx, ev)
	case EventShowReminder:
		var ev ShowReminder
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", eventType, err)
		}
		return d.showReminder(ctx, ev)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, eventType)
	}
}

func (d *Dispatcher) bookingPaid(ctx context.Context, ev BookingPaid) error {
	b, err := d.bookings.Get(ctx, ev.BookingID)
	if err != nil {
		return fmt.Errorf("load booking %s: %w", ev.BookingID, err)
	}
	show, err := d.shows.Get(ctx, b.ShowID)
	if err != nil {
		return fmt.Errorf("load show %s: %w", b.ShowID, err)
	}
	to, err := d.users.Contact(ctx, b.UserID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", b.UserID, err)
	}
	subject := "Booking confirmed: " + show.MovieTitle
	body := fmt.Sprintf("Hi %s,\n\nyour booking %s for %s on %s is confirmed.\nSeats: %v\nAmount paid: %s\n",
		to.Name, b.ID, show.MovieTitle, formatTime(show.StartsAt), b.Seats, formatCents(b.AmountCents))
	return d.send(ctx, "booking_confirmation", to, subject, body)
}

func (d *Dispatcher) showAdded(ctx context.Context, ev ShowAdded) error {
	contacts, err := d.users.ActiveContacts(ctx)
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}
	subject := "New show: " + ev.MovieTitle
	var errs []error
	for _, to := range contacts {
		body := fmt.Sprintf("Hi %s,\n\n%s has just been scheduled for %s. Seats are open now.\n",
			to.Name, ev.MovieTitle, formatTime(ev.StartsAt))
		if err := d.send(ctx, "show_added", to, subject, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) showReminder(ctx context.Context, ev ShowReminder) error {
	to, err := d.users.Contact(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", ev.UserID, err)
	}
	subject := "Reminder: " + ev.MovieTitle + " starts soon"
	body := fmt.Sprintf("Hi %s,\n\n%s starts at %s.\n", to.Name, ev.MovieTitle, formatTime(ev.StartsAt))
	return d.send(ctx, "show_reminder", to, subject, body)
}

// send delivers one mail, retrying transient failures, and records the
// result under kind.
func (d *Dispatcher) send(ctx context.Context, kind string, to model.Contact, subject, body string) error {
	log := logging.FromContext(ctx).WithFields(logrus.Fields{"kind": kind, "user_id": to.UserID})
	b := backoff.WithContext(backoff.WithMaxRetries(d.newBackOff(), d.sendAttempts-1), ctx)
	err := backoff.RetryNotify(func() error {
		return d.mailer.Send(ctx, to.Email, subject, body)
	}, b, func(err error, wait time.Duration) {
		log.WithError(err).WithField("retry_in", wait.String()).Debug("mail send failed")
	})
	if err != nil {
		metrics.NotificationsFailed.WithLabelValues(kind).Inc()
		return fmt.Errorf("send %s to user %d: %w", kind, to.UserID, err)
	}
	metrics.NotificationsSent.WithLabelValues(kind).Inc()
	log.Info("notification sent")
	return nil
}

func formatTime(t time.Time) string { return t.UTC().Format("Mon, 02 Jan 2006 15:04 MST") }

func formatCents(c uint32) string { return fmt.Sprintf("%d.%02d", c/100, c%100) }
