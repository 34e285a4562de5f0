package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/quickshow-booking/internal/model"
)

// ShowRepo manages persistence for shows and their seat claims.  A claim
// row (show_id, seat_id, booking_id) is one entry of the show's occupancy
// map; the primary key on (show_id, seat_id) guarantees a seat has at
// most one holder.
type ShowRepo struct {
	db *sql.DB
}

// NewShowRepo returns a ShowRepo bound to db.
func NewShowRepo(db *sql.DB) *ShowRepo { return &ShowRepo{db: db} }

const showColumns = `id, movie_id, movie_title, starts_at, price_cents, created_at`

// Create inserts s.  An empty ID is replaced by a new UUID and CreatedAt
// is set to the current UTC time when zero.
func (r *ShowRepo) Create(ctx context.Context, s *model.Show) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	s.StartsAt = s.StartsAt.UTC()
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO shows (id, movie_id, movie_title, starts_at, price_cents, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.MovieID, s.MovieTitle, s.StartsAt, s.PriceCents, s.CreatedAt)
	return err
}

// Get returns the show without its occupancy.
func (r *ShowRepo) Get(ctx context.Context, id string) (model.Show, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+showColumns+` FROM shows WHERE id = ?`, id)
	s, err := scanShow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Show{}, ErrShowNotFound
	}
	return s, err
}

// ListUpcoming returns shows starting after now, earliest first.
func (r *ShowRepo) ListUpcoming(ctx context.Context, now time.Time) ([]model.Show, error) {
	return r.list(ctx,
		`SELECT `+showColumns+` FROM shows WHERE starts_at > ? ORDER BY starts_at ASC, id ASC`,
		now.UTC())
}

// ListAll returns every show, most recent start first.
func (r *ShowRepo) ListAll(ctx context.Context) ([]model.Show, error) {
	return r.list(ctx, `SELECT `+showColumns+` FROM shows ORDER BY starts_at DESC, id ASC`)
}

// StartingBetween returns the shows whose start lies in [from, to], each
// with its occupancy loaded.
func (r *ShowRepo) StartingBetween(ctx context.Context, from, to time.Time) ([]model.Show, error) {
	shows, err := r.list(ctx,
		`SELECT `+showColumns+` FROM shows WHERE starts_at BETWEEN ? AND ? ORDER BY starts_at ASC, id ASC`,
		from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	for i := range shows {
		if shows[i].OccupiedSeats, err = r.Claims(ctx, shows[i].ID); err != nil {
			return nil, err
		}
	}
	return shows, nil
}

// Delete removes a show.  It fails with ErrConflict while any claim or
// booking still references the show.
func (r *ShowRepo) Delete(ctx context.Context, id string) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM shows WHERE id = ?`, id)
	if err != nil {
		if isReferenced(err) {
			return ErrConflict
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrShowNotFound
	}
	return nil
}

// InsertClaims records bookingID as holder of every seat in one
// statement.  The statement is atomic: if any seat is already claimed the
// whole batch fails with ErrSeatTaken.  A missing show yields
// ErrShowNotFound.
func (r *ShowRepo) InsertClaims(ctx context.Context, showID string, seatIDs []string, bookingID string) error {
	if len(seatIDs) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO show_seat_claims (show_id, seat_id, booking_id) VALUES `)
	args := make([]any, 0, len(seatIDs)*3)
	for i, seat := range seatIDs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?)")
		args = append(args, showID, seat, bookingID)
	}
	_, err := conn(ctx, r.db).ExecContext(ctx, sb.String(), args...)
	switch {
	case err == nil:
		return nil
	case IsDuplicateKey(err):
		return ErrSeatTaken
	case isMissingParent(err):
		return ErrShowNotFound
	}
	return err
}

// DeleteClaims removes the claims of seatIDs still held by bookingID and
// returns how many were removed.  Seats held by someone else or already
// free are left untouched.
func (r *ShowRepo) DeleteClaims(ctx context.Context, showID string, seatIDs []string, bookingID string) (int64, error) {
	if len(seatIDs) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(seatIDs)+2)
	args = append(args, showID, bookingID)
	for _, seat := range seatIDs {
		args = append(args, seat)
	}
	q := `DELETE FROM show_seat_claims WHERE show_id = ? AND booking_id = ? AND seat_id IN (` + placeholders(len(seatIDs)) + `)`
	res, err := conn(ctx, r.db).ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Claims returns the occupancy map of a show (seat id -> holder booking
// id).  An unknown show has an empty map.
func (r *ShowRepo) Claims(ctx context.Context, showID string) (map[string]string, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT seat_id, booking_id FROM show_seat_claims WHERE show_id = ?`, showID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	claims := make(map[string]string)
	for rows.Next() {
		var seat, holder string
		if err := rows.Scan(&seat, &holder); err != nil {
			return nil, err
		}
		claims[seat] = holder
	}
	return claims, rows.Err()
}

func (r *ShowRepo) list(ctx context.Context, q string, args ...any) ([]model.Show, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var shows []model.Show
	for rows.Next() {
		s, err := scanShow(rows)
		if err != nil {
			return nil, err
		}
		shows = append(shows, s)
	}
	return shows, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanShow(sc scanner) (model.Show, error) {
	var s model.Show
	err := sc.Scan(&s.ID, &s.MovieID, &s.MovieTitle, &s.StartsAt, &s.PriceCents, &s.CreatedAt)
	return s, err
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
