// Package booking drives a booking through its lifecycle.  A booking is
// created pending with its seats claimed, then either confirmed by a
// payment (paid, permanent) or expired when its hold runs out (deleted,
// seats released).  Confirmation and expiry are conditional on the
// booking still being pending, so whichever commits first wins and the
// other becomes a no-op.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/quickshow-booking/internal/logging"
	"github.com/iliyamo/quickshow-booking/internal/metrics"
	"github.com/iliyamo/quickshow-booking/internal/model"
	"github.com/iliyamo/quickshow-booking/internal/notify"
	"github.com/iliyamo/quickshow-booking/internal/repository"
	"github.com/iliyamo/quickshow-booking/internal/reservation"
)

// DefaultHold is how long a pending booking keeps its seats.
const DefaultHold = 10 * time.Minute

var (
	// ErrSeatUnavailable means a requested seat is held by another booking.
	ErrSeatUnavailable = errors.New("seat unavailable")
	// ErrBookingExpired means a payment arrived for a booking that no
	// longer exists.
	ErrBookingExpired = errors.New("booking expired")
	// ErrBookingNotFound means no booking has the given id.
	ErrBookingNotFound = errors.New("booking not found")
	// ErrPaymentUnavailable means the booking was created but no payment
	// link could be obtained.  The booking expires with its hold.
	ErrPaymentUnavailable = errors.New("payment provider unavailable")
	// ErrReleaseNotScheduled means the release task could not be
	// registered, so the booking was expired right away.
	ErrReleaseNotScheduled = errors.New("release task not scheduled")

	ErrShowNotFound = reservation.ErrShowNotFound
	ErrInvalidSeats = reservation.ErrInvalidSeats
	ErrShowStarted  = reservation.ErrShowStarted
)

// Outcome is the result of a confirmation or expiry attempt.
type Outcome string

const (
	Confirmed   Outcome = "confirmed"
	AlreadyPaid Outcome = "already_paid"
	Expired     Outcome = "expired"
	AlreadyGone Outcome = "already_gone"
)

// Seats is the seat reservation engine as seen by the manager.
type Seats interface {
	NormalizeSeats(seatIDs []string) ([]string, error)
	ClaimSeats(ctx context.Context, showID string, seatIDs []string, claimant string) error
	ReleaseSeats(ctx context.Context, showID string, seatIDs []string, claimant string) (int, error)
}

// Store persists bookings.  MarkPaid and DeletePending only act on
// pending rows and report whether they did.
type Store interface {
	Insert(ctx context.Context, b model.Booking) error
	Get(ctx context.Context, id string) (model.Booking, error)
	GetForUpdate(ctx context.Context, id string) (model.Booking, error)
	MarkPaid(ctx context.Context, id string) (bool, error)
	DeletePending(ctx context.Context, id string) (bool, error)
	SetPaymentLink(ctx context.Context, id, link string) error
	ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error)
	ListAll(ctx context.Context) ([]model.Booking, error)
	Stats(ctx context.Context) (model.Dashboard, error)
}

// Transactor runs fn in one transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventSink appends notification events to the transactional outbox.
type EventSink interface {
	Append(ctx context.Context, eventType string, payload any) error
}

// ShowLister lists shows that have not started yet.
type ShowLister interface {
	ListUpcoming(ctx context.Context, now time.Time) ([]model.Show, error)
}

// ReleaseScheduler registers a durable task that expires bookingID at
// fireAt.  Registering the same booking twice must be harmless.
type ReleaseScheduler interface {
	ScheduleRelease(ctx context.Context, bookingID string, fireAt time.Time) error
}

// PaymentRequest asks the payment provider for a checkout link.
type PaymentRequest struct {
	BookingID   string // correlation key echoed back by the confirmation
	AmountCents uint32
	Description string
	Quantity    int
}

// PaymentGateway starts a payment for a booking.
type PaymentGateway interface {
	CreatePaymentLink(ctx context.Context, req PaymentRequest) (string, error)
}

// Deps are the collaborators of a Manager.
type Deps struct {
	Tx        Transactor
	Seats     Seats
	Bookings  Store
	Shows     ShowLister
	Events    EventSink
	Scheduler ReleaseScheduler
	Payments  PaymentGateway
}

// Manager implements the booking lifecycle.
type Manager struct {
	Deps
	hold  time.Duration
	clock clockwork.Clock
	newID func() string
}

// Option customizes a Manager.
type Option func(*Manager)

// WithHold sets the hold duration of new bookings.
func WithHold(d time.Duration) Option { return func(m *Manager) { m.hold = d } }

// WithClock replaces the wall clock.
func WithClock(c clockwork.Clock) Option { return func(m *Manager) { m.clock = c } }

// WithIDGenerator replaces the UUID generator of booking ids.
func WithIDGenerator(f func() string) Option { return func(m *Manager) { m.newID = f } }

// NewManager returns a Manager using deps.
func NewManager(deps Deps, opts ...Option) *Manager {
	m := &Manager{
		Deps:  deps,
		hold:  DefaultHold,
		clock: clockwork.NewRealClock(),
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Hold returns the hold duration of new bookings.
func (m *Manager) Hold() time.Duration { return m.hold }

// CreateRequest is a user's request for seats.
type CreateRequest struct {
	ShowID      string
	SeatIDs     []string
	UserID      uint64
	AmountCents uint32
	Description string // shown on the checkout page
}

// Created describes a new pending booking.
type Created struct {
	BookingID   string
	AmountCents uint32
	PaymentLink string
	ExpiresAt   time.Time
}

// CreateBooking claims the seats and stores a pending booking in one
// transaction, registers its release task and asks for a payment link.
//
// When the release task cannot be registered the booking is expired at
// once, so no pending booking ever lacks an expiry.  When the payment
// link cannot be obtained the booking stays pending until its hold runs
// out and ErrPaymentUnavailable is returned with the Created value.
func (m *Manager) CreateBooking(ctx context.Context, req CreateRequest) (Created, error) {
	seats, err := m.Seats.NormalizeSeats(req.SeatIDs)
	if err != nil {
		return Created{}, err
	}
	b := model.Booking{
		ID:          m.newID(),
		ShowID:      req.ShowID,
		Seats:       seats,
		UserID:      req.UserID,
		AmountCents: req.AmountCents,
		Status:      model.StatusPending,
		CreatedAt:   m.clock.Now().UTC(),
	}
	log := logging.FromContext(ctx).WithFields(logrus.Fields{"booking_id": b.ID, "show_id": b.ShowID})

	err = m.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := m.Seats.ClaimSeats(ctx, b.ShowID, b.Seats, b.ID); err != nil {
			return err
		}
		return m.Bookings.Insert(ctx, b)
	})
	if err != nil {
		if errors.Is(err, reservation.ErrSeatConflict) {
			metrics.SeatConflicts.Inc()
			return Created{}, fmt.Errorf("%w: %v", ErrSeatUnavailable, err)
		}
		if errors.Is(err, repository.ErrShowNotFound) {
			return Created{}, ErrShowNotFound
		}
		return Created{}, err
	}
	metrics.BookingTransitions.WithLabelValues("created").Inc()

	out := Created{
		BookingID:   b.ID,
		AmountCents: b.AmountCents,
		ExpiresAt:   b.HoldDeadline(m.hold),
	}
	if err := m.Scheduler.ScheduleRelease(ctx, b.ID, out.ExpiresAt); err != nil {
		log.WithError(err).Error("release task not scheduled, expiring booking")
		if _, xerr := m.ExpireBooking(context.WithoutCancel(ctx), b.ID); xerr != nil {
			log.WithError(xerr).Error("immediate expiry failed, left to stale sweep")
		}
		return Created{}, fmt.Errorf("%w: %v", ErrReleaseNotScheduled, err)
	}

	link, err := m.Payments.CreatePaymentLink(ctx, PaymentRequest{
		BookingID:   b.ID,
		AmountCents: b.AmountCents,
		Description: req.Description,
		Quantity:    len(b.Seats),
	})
	if err != nil {
		log.WithError(err).Warn("payment link not created")
		return out, fmt.Errorf("%w: %v", ErrPaymentUnavailable, err)
	}
	if err := m.Bookings.SetPaymentLink(ctx, b.ID, link); err != nil {
		log.WithError(err).Warn("payment link not stored")
	}
	out.PaymentLink = link
	log.WithField("seats", b.Seats).Info("booking created")
	return out, nil
}

// ConfirmPayment marks a pending booking paid.  Confirming a paid booking
// again reports AlreadyPaid; confirming one that no longer exists fails
// with ErrBookingExpired.
func (m *Manager) ConfirmPayment(ctx context.Context, bookingID string) (Outcome, error) {
	var out Outcome
	err := m.Tx.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := m.Bookings.MarkPaid(ctx, bookingID)
		if err != nil {
			return err
		}
		if ok {
			out = Confirmed
			return m.Events.Append(ctx, notify.EventBookingPaid, notify.BookingPaid{BookingID: bookingID})
		}
		b, err := m.Bookings.Get(ctx, bookingID)
		if errors.Is(err, repository.ErrBookingNotFound) {
			return ErrBookingExpired
		}
		if err != nil {
			return err
		}
		if !b.IsPaid() {
			return fmt.Errorf("booking %s not updated while %s", bookingID, b.Status)
		}
		out = AlreadyPaid
		return nil
	})
	if err != nil {
		return "", err
	}
	metrics.BookingTransitions.WithLabelValues(string(out)).Inc()
	logging.FromContext(ctx).WithFields(logrus.Fields{
		"booking_id": bookingID,
		"outcome":    out,
	}).Info("payment confirmation applied")
	return out, nil
}

// ExpireBooking deletes a pending booking and releases its seats in one
// transaction.  A paid booking reports AlreadyPaid and a missing one
// AlreadyGone; neither is an error, so release tasks may fire any number
// of times.
func (m *Manager) ExpireBooking(ctx context.Context, bookingID string) (Outcome, error) {
	var out Outcome
	err := m.Tx.WithinTx(ctx, func(ctx context.Context) error {
		b, err := m.Bookings.GetForUpdate(ctx, bookingID)
		if errors.Is(err, repository.ErrBookingNotFound) {
			out = AlreadyGone
			return nil
		}
		if err != nil {
			return err
		}
		if b.IsPaid() {
			out = AlreadyPaid
			return nil
		}
		deleted, err := m.Bookings.DeletePending(ctx, bookingID)
		if err != nil {
			return err
		}
		if !deleted {
			out = AlreadyGone
			return nil
		}
		_, err = m.Seats.ReleaseSeats(ctx, b.ShowID, b.Seats, b.ID)
		if err != nil && !errors.Is(err, reservation.ErrShowNotFound) {
			return err
		}
		out = Expired
		return nil
	})
	if err != nil {
		return "", err
	}
	if out == Expired {
		metrics.BookingTransitions.WithLabelValues(string(out)).Inc()
		logging.FromContext(ctx).WithField("booking_id", bookingID).Info("booking expired")
	}
	return out, nil
}

// GetBooking returns one booking.
func (m *Manager) GetBooking(ctx context.Context, bookingID string) (model.Booking, error) {
	b, err := m.Bookings.Get(ctx, bookingID)
	if errors.Is(err, repository.ErrBookingNotFound) {
		return model.Booking{}, ErrBookingNotFound
	}
	return b, err
}

// ListUserBookings returns the bookings of a user, newest first.
func (m *Manager) ListUserBookings(ctx context.Context, userID uint64) ([]model.Booking, error) {
	return m.Bookings.ListByUser(ctx, userID)
}

// ListBookings returns every booking, newest first.
func (m *Manager) ListBookings(ctx context.Context) ([]model.Booking, error) {
	return m.Bookings.ListAll(ctx)
}

// Dashboard aggregates paid bookings, revenue, upcoming shows and users.
func (m *Manager) Dashboard(ctx context.Context) (model.Dashboard, error) {
	d, err := m.Bookings.Stats(ctx)
	if err != nil {
		return model.Dashboard{}, err
	}
	if d.ActiveShows, err = m.Shows.ListUpcoming(ctx, m.clock.Now()); err != nil {
		return model.Dashboard{}, err
	}
	return d, nil
}
