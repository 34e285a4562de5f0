package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/quickshow-booking/internal/model"
)

// BookingRepo provides data access to the bookings table.  Status changes
// are conditional on the row still being pending, so a confirmation and
// an expiry racing on the same booking cannot both take effect.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a BookingRepo bound to db.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `id, show_id, user_id, seats, amount_cents, status, payment_link, created_at`

// Insert stores a new booking.
func (r *BookingRepo) Insert(ctx context.Context, b model.Booking) error {
	seats, err := json.Marshal(b.Seats)
	if err != nil {
		return fmt.Errorf("encode seats: %w", err)
	}
	_, err = conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO bookings (id, show_id, user_id, seats, amount_cents, status, payment_link, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.ShowID, b.UserID, seats, b.AmountCents, string(b.Status), b.PaymentLink, b.CreatedAt.UTC())
	if isMissingParent(err) {
		return ErrShowNotFound
	}
	return err
}

// Get returns a booking by id or ErrBookingNotFound.
func (r *BookingRepo) Get(ctx context.Context, id string) (model.Booking, error) {
	return r.get(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
}

// GetForUpdate is Get with a row lock.  It must run inside a transaction;
// the lock is held until the transaction ends.
func (r *BookingRepo) GetForUpdate(ctx context.Context, id string) (model.Booking, error) {
	return r.get(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ? FOR UPDATE`, id)
}

// MarkPaid moves a pending booking to paid and clears its payment link.
// It reports false when no pending row with that id exists.
func (r *BookingRepo) MarkPaid(ctx context.Context, id string) (bool, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE bookings SET status = 'paid', payment_link = '' WHERE id = ? AND status = 'pending'`, id)
	return affectedOne(res, err)
}

// DeletePending removes a booking only while it is still pending.  It
// reports whether a row was removed.
func (r *BookingRepo) DeletePending(ctx context.Context, id string) (bool, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`DELETE FROM bookings WHERE id = ? AND status = 'pending'`, id)
	return affectedOne(res, err)
}

// SetPaymentLink stores the checkout link of a pending booking.  Paid or
// missing bookings are left untouched.
func (r *BookingRepo) SetPaymentLink(ctx context.Context, id, link string) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE bookings SET payment_link = ? WHERE id = ? AND status = 'pending'`, link, id)
	return err
}

// ListByUser returns the bookings of a user, newest first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	return r.list(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = ? ORDER BY created_at DESC`, userID)
}

// ListAll returns every booking, newest first.
func (r *BookingRepo) ListAll(ctx context.Context) ([]model.Booking, error) {
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings ORDER BY created_at DESC`)
}

// StalePending returns ids of pending bookings created before cutoff,
// oldest first, at most limit of them.
func (r *BookingRepo) StalePending(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT id FROM bookings WHERE status = 'pending' AND created_at < ? ORDER BY created_at ASC LIMIT ?`,
		cutoff.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Stats fills the counters of an admin dashboard: number of paid bookings,
// their revenue and the number of users.
func (r *BookingRepo) Stats(ctx context.Context) (model.Dashboard, error) {
	var d model.Dashboard
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(amount_cents), 0) FROM bookings WHERE status = 'paid'`).
		Scan(&d.TotalBookings, &d.TotalRevenue)
	if err != nil {
		return model.Dashboard{}, err
	}
	err = conn(ctx, r.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&d.TotalUsers)
	if err != nil {
		return model.Dashboard{}, err
	}
	return d, nil
}

func (r *BookingRepo) get(ctx context.Context, q string, id string) (model.Booking, error) {
	b, err := scanBooking(conn(ctx, r.db).QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, ErrBookingNotFound
	}
	return b, err
}

func (r *BookingRepo) list(ctx context.Context, q string, args ...any) ([]model.Booking, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBooking(sc scanner) (model.Booking, error) {
	var (
		b      model.Booking
		seats  []byte
		status string
	)
	if err := sc.Scan(&b.ID, &b.ShowID, &b.UserID, &seats, &b.AmountCents, &status, &b.PaymentLink, &b.CreatedAt); err != nil {
		return model.Booking{}, err
	}
	if err := json.Unmarshal(seats, &b.Seats); err != nil {
		return model.Booking{}, fmt.Errorf("decode seats of booking %s: %w", b.ID, err)
	}
	b.Status = model.PaymentStatus(status)
	return b, nil
}

func affectedOne(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
