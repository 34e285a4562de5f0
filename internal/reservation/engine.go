// Package reservation owns seat occupancy.  The Engine is the only
// component that adds or removes seat claims; a claim names the booking
// holding the seat.
package reservation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/iliyamo/quickshow-booking/internal/model"
	"github.com/iliyamo/quickshow-booking/internal/repository"
)

var (
	// ErrSeatConflict means at least one requested seat is already claimed.
	ErrSeatConflict = errors.New("seat already claimed")
	// ErrShowNotFound means the show does not exist.
	ErrShowNotFound = errors.New("show not found")
	// ErrInvalidSeats means the seat list is empty, too long, has
	// duplicates or names a seat outside the layout.
	ErrInvalidSeats = errors.New("invalid seat selection")
	// ErrShowStarted means the show already began and takes no claims.
	ErrShowStarted = errors.New("show already started")
)

// ClaimStore is the persistence the Engine needs.  InsertClaims must be
// all-or-nothing, failing with repository.ErrSeatTaken when any seat is
// held.
type ClaimStore interface {
	Get(ctx context.Context, showID string) (model.Show, error)
	InsertClaims(ctx context.Context, showID string, seatIDs []string, holder string) error
	DeleteClaims(ctx context.Context, showID string, seatIDs []string, holder string) (int64, error)
	Claims(ctx context.Context, showID string) (map[string]string, error)
}

// Transactor runs fn in a transaction, joining one already carried by ctx.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Engine validates and applies seat claims.
type Engine struct {
	store    ClaimStore
	tx       Transactor
	layout   model.SeatLayout
	maxSeats int
	clock    clockwork.Clock
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLayout replaces the default ten-by-ten layout.
func WithLayout(l model.SeatLayout) Option { return func(e *Engine) { e.layout = l } }

// WithMaxSeats bounds the number of seats per claim.
func WithMaxSeats(n int) Option { return func(e *Engine) { e.maxSeats = n } }

// WithClock replaces the wall clock used for the show-started check.
func WithClock(c clockwork.Clock) Option { return func(e *Engine) { e.clock = c } }

// NewEngine returns an Engine over store.  Claims run inside tx.
func NewEngine(store ClaimStore, tx Transactor, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		tx:       tx,
		layout:   model.DefaultLayout,
		maxSeats: 5,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Layout returns the seat layout the Engine validates against.
func (e *Engine) Layout() model.SeatLayout { return e.layout }

// NormalizeSeats trims and upper-cases seat ids and checks count,
// uniqueness and membership in the layout.
func (e *Engine) NormalizeSeats(seatIDs []string) ([]string, error) {
	if len(seatIDs) == 0 || len(seatIDs) > e.maxSeats {
		return nil, fmt.Errorf("%w: between 1 and %d seats required", ErrInvalidSeats, e.maxSeats)
	}
	out := make([]string, 0, len(seatIDs))
	seen := make(map[string]struct{}, len(seatIDs))
	for _, raw := range seatIDs {
		id := model.NormalizeSeatID(raw)
		if !e.layout.Valid(id) {
			return nil, fmt.Errorf("%w: unknown seat %q", ErrInvalidSeats, raw)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: seat %s listed twice", ErrInvalidSeats, id)
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// ClaimSeats records claimant as holder of every seat, or of none.
func (e *Engine) ClaimSeats(ctx context.Context, showID string, seatIDs []string, claimant string) error {
	seats, err := e.NormalizeSeats(seatIDs)
	if err != nil {
		return err
	}
	return e.tx.WithinTx(ctx, func(ctx context.Context) error {
		show, err := e.store.Get(ctx, showID)
		if err != nil {
			return mapStoreErr(err)
		}
		if !show.StartsAt.After(e.clock.Now()) {
			return ErrShowStarted
		}
		return mapStoreErr(e.store.InsertClaims(ctx, showID, seats, claimant))
	})
}

// ReleaseSeats removes the claims of seatIDs still held by claimant.
// Seats already free or held by another booking are skipped, so repeated
// calls are harmless.  It returns how many claims were removed.
func (e *Engine) ReleaseSeats(ctx context.Context, showID string, seatIDs []string, claimant string) (int, error) {
	seats := make([]string, 0, len(seatIDs))
	for _, id := range seatIDs {
		seats = append(seats, model.NormalizeSeatID(id))
	}
	var released int64
	err := e.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := e.store.Get(ctx, showID); err != nil {
			return mapStoreErr(err)
		}
		n, err := e.store.DeleteClaims(ctx, showID, seats, claimant)
		released = n
		return err
	})
	return int(released), err
}

// OccupiedSeats lists the claimed seats of a show in ascending order.
func (e *Engine) OccupiedSeats(ctx context.Context, showID string) ([]string, error) {
	show, err := e.store.Get(ctx, showID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if show.OccupiedSeats, err = e.store.Claims(ctx, showID); err != nil {
		return nil, err
	}
	return show.SeatIDs(), nil
}

func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrSeatTaken):
		return ErrSeatConflict
	case errors.Is(err, repository.ErrShowNotFound):
		return ErrShowNotFound
	}
	return err
}
