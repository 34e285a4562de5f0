// Package memstore is an in-memory stand-in for the MySQL repositories.
// It keeps the same conditional semantics (unique claims, pending-only
// updates and deletes) and serializes transactions behind one lock, which
// makes it suitable for exercising the booking core under concurrency in
// tests and local runs.
package memstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/quickshow-booking/internal/model"
	"github.com/iliyamo/quickshow-booking/internal/repository"
)

type txKey struct{}

// Event is an appended outbox entry.
type Event struct {
	Type    string
	Payload []byte
}

// state holds the tables.
type state struct {
	shows    map[string]model.Show
	claims   map[string]map[string]string
	bookings map[string]model.Booking
	users    map[uint64]model.User
	events   []Event
}

func (s state) clone() state {
	c := state{
		shows:    make(map[string]model.Show, len(s.shows)),
		claims:   make(map[string]map[string]string, len(s.claims)),
		bookings: make(map[string]model.Booking, len(s.bookings)),
		users:    make(map[uint64]model.User, len(s.users)),
		events:   append([]Event(nil), s.events...),
	}
	for k, v := range s.shows {
		c.shows[k] = v
	}
	for show, seats := range s.claims {
		m := make(map[string]string, len(seats))
		for seat, holder := range seats {
			m[seat] = holder
		}
		c.claims[show] = m
	}
	for k, v := range s.bookings {
		v.Seats = append([]string(nil), v.Seats...)
		c.bookings[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	return c
}

// Store holds every table.  Its views (Shows, Bookings, Users, Outbox)
// satisfy the interfaces of the reservation, booking and notify packages.
type Store struct {
	mu sync.Mutex
	st state

	Shows    *Shows
	Bookings *Bookings
	Users    *Users
	Outbox   *Outbox
}

// New returns an empty Store.
func New() *Store {
	s := &Store{st: state{
		shows:    map[string]model.Show{},
		claims:   map[string]map[string]string{},
		bookings: map[string]model.Booking{},
		users:    map[uint64]model.User{},
	}}
	s.Shows = &Shows{s: s}
	s.Bookings = &Bookings{s: s}
	s.Users = &Users{s: s}
	s.Outbox = &Outbox{s: s}
	return s
}

// WithinTx runs fn while holding the store lock.  Changes made by fn are
// discarded when it returns an error.  Nested calls join the outer one.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := s.st.clone()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.st = saved
		return err
	}
	return nil
}

// do runs f on the state, taking the lock unless ctx is inside WithinTx.
func (s *Store) do(ctx context.Context, f func(st *state) error) error {
	if ctx.Value(txKey{}) == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return f(&s.st)
}

// Shows implements the show and claim queries.
type Shows struct{ s *Store }

// Add stores a show, replacing one with the same id.
func (v *Shows) Add(show model.Show) {
	_ = v.s.do(context.Background(), func(st *state) error {
		show.OccupiedSeats = nil
		st.shows[show.ID] = show
		return nil
	})
}

func (v *Shows) Get(ctx context.Context, id string) (model.Show, error) {
	var out model.Show
	err := v.s.do(ctx, func(st *state) error {
		show, ok := st.shows[id]
		if !ok {
			return repository.ErrShowNotFound
		}
		out = show
		return nil
	})
	return out, err
}

func (v *Shows) InsertClaims(ctx context.Context, showID string, seatIDs []string, holder string) error {
	return v.s.do(ctx, func(st *state) error {
		if _, ok := st.shows[showID]; !ok {
			return repository.ErrShowNotFound
		}
		seats := st.claims[showID]
		for _, id := range seatIDs {
			if _, taken := seats[id]; taken {
				return repository.ErrSeatTaken
			}
		}
		if seats == nil {
			seats = map[string]string{}
			st.claims[showID] = seats
		}
		for _, id := range seatIDs {
			seats[id] = holder
		}
		return nil
	})
}

func (v *Shows) DeleteClaims(ctx context.Context, showID string, seatIDs []string, holder string) (int64, error) {
	var n int64
	err := v.s.do(ctx, func(st *state) error {
		seats := st.claims[showID]
		for _, id := range seatIDs {
			if seats[id] == holder {
				delete(seats, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (v *Shows) Claims(ctx context.Context, showID string) (map[string]string, error) {
	out := map[string]string{}
	err := v.s.do(ctx, func(st *state) error {
		for seat, holder := range st.claims[showID] {
			out[seat] = holder
		}
		return nil
	})
	return out, err
}

func (v *Shows) ListUpcoming(ctx context.Context, now time.Time) ([]model.Show, error) {
	return v.filter(ctx, func(s model.Show) bool { return s.StartsAt.After(now) }, false)
}

func (v *Shows) StartingBetween(ctx context.Context, from, to time.Time) ([]model.Show, error) {
	return v.filter(ctx, func(s model.Show) bool {
		return !s.StartsAt.Before(from) && !s.StartsAt.After(to)
	}, true)
}

func (v *Shows) filter(ctx context.Context, keep func(model.Show) bool, withSeats bool) ([]model.Show, error) {
	var out []model.Show
	err := v.s.do(ctx, func(st *state) error {
		for _, show := range st.shows {
			if !keep(show) {
				continue
			}
			if withSeats {
				show.OccupiedSeats = map[string]string{}
				for seat, holder := range st.claims[show.ID] {
					show.OccupiedSeats[seat] = holder
				}
			}
			out = append(out, show)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartsAt.Before(out[j].StartsAt)
	})
	return out, err
}

// Bookings implements the booking repository.
type Bookings struct{ s *Store }

func (v *Bookings) Insert(ctx context.Context, b model.Booking) error {
	return v.s.do(ctx, func(st *state) error {
		if _, ok := st.shows[b.ShowID]; !ok {
			return repository.ErrShowNotFound
		}
		b.Seats = append([]string(nil), b.Seats...)
		st.bookings[b.ID] = b
		return nil
	})
}

func (v *Bookings) Get(ctx context.Context, id string) (model.Booking, error) {
	var out model.Booking
	err := v.s.do(ctx, func(st *state) error {
		b, ok := st.bookings[id]
		if !ok {
			return repository.ErrBookingNotFound
		}
		out = b
		out.Seats = append([]string(nil), b.Seats...)
		return nil
	})
	return out, err
}

// GetForUpdate is Get; the store lock already serializes transactions.
func (v *Bookings) GetForUpdate(ctx context.Context, id string) (model.Booking, error) {
	return v.Get(ctx, id)
}

func (v *Bookings) MarkPaid(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := v.s.do(ctx, func(st *state) error {
		b, found := st.bookings[id]
		if !found || b.Status != model.StatusPending {
			return nil
		}
		b.Status = model.StatusPaid
		b.PaymentLink = ""
		st.bookings[id] = b
		ok = true
		return nil
	})
	return ok, err
}

func (v *Bookings) DeletePending(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := v.s.do(ctx, func(st *state) error {
		b, found := st.bookings[id]
		if !found || b.Status != model.StatusPending {
			return nil
		}
		delete(st.bookings, id)
		ok = true
		return nil
	})
	return ok, err
}

func (v *Bookings) SetPaymentLink(ctx context.Context, id, link string) error {
	return v.s.do(ctx, func(st *state) error {
		if b, ok := st.bookings[id]; ok && b.Status == model.StatusPending {
			b.PaymentLink = link
			st.bookings[id] = b
		}
		return nil
	})
}

func (v *Bookings) ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	return v.list(ctx, func(b model.Booking) bool { return b.UserID == userID })
}

func (v *Bookings) ListAll(ctx context.Context) ([]model.Booking, error) {
	return v.list(ctx, func(model.Booking) bool { return true })
}

func (v *Bookings) StalePending(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	all, err := v.list(ctx, func(b model.Booking) bool {
		return b.Status == model.StatusPending && b.CreatedAt.Before(cutoff)
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	var ids []string
	for _, b := range all {
		if len(ids) == limit {
			break
		}
		ids = append(ids, b.ID)
	}
	return ids, nil
}

func (v *Bookings) Stats(ctx context.Context) (model.Dashboard, error) {
	var d model.Dashboard
	err := v.s.do(ctx, func(st *state) error {
		for _, b := range st.bookings {
			if b.IsPaid() {
				d.TotalBookings++
				d.TotalRevenue += uint64(b.AmountCents)
			}
		}
		d.TotalUsers = len(st.users)
		return nil
	})
	return d, err
}

func (v *Bookings) list(ctx context.Context, keep func(model.Booking) bool) ([]model.Booking, error) {
	var out []model.Booking
	err := v.s.do(ctx, func(st *state) error {
		for _, b := range st.bookings {
			if keep(b) {
				b.Seats = append([]string(nil), b.Seats...)
				out = append(out, b)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, err
}

// Users implements the user directory.
type Users struct{ s *Store }

// Add stores a user.
func (v *Users) Add(u model.User) {
	_ = v.s.do(context.Background(), func(st *state) error {
		st.users[u.ID] = u
		return nil
	})
}

func (v *Users) Contact(ctx context.Context, userID uint64) (model.Contact, error) {
	var c model.Contact
	err := v.s.do(ctx, func(st *state) error {
		u, ok := st.users[userID]
		if !ok {
			return sql.ErrNoRows
		}
		c = model.Contact{UserID: u.ID, Email: u.Email, Name: u.Name}
		return nil
	})
	return c, err
}

func (v *Users) ActiveContacts(ctx context.Context) ([]model.Contact, error) {
	var out []model.Contact
	err := v.s.do(ctx, func(st *state) error {
		for _, u := range st.users {
			if u.IsActive {
				out = append(out, model.Contact{UserID: u.ID, Email: u.Email, Name: u.Name})
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, err
}

func (v *Users) ContactsForBookings(ctx context.Context, bookingIDs []string) ([]model.Contact, error) {
	var out []model.Contact
	err := v.s.do(ctx, func(st *state) error {
		seen := map[uint64]bool{}
		for _, id := range bookingIDs {
			b, ok := st.bookings[id]
			if !ok || seen[b.UserID] {
				continue
			}
			u, ok := st.users[b.UserID]
			if !ok {
				continue
			}
			seen[b.UserID] = true
			out = append(out, model.Contact{UserID: u.ID, Email: u.Email, Name: u.Name})
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, err
}

// Outbox records appended events.
type Outbox struct{ s *Store }

func (v *Outbox) Append(ctx context.Context, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return v.s.do(ctx, func(st *state) error {
		st.events = append(st.events, Event{Type: eventType, Payload: body})
		return nil
	})
}

// Events returns the events appended so far.
func (v *Outbox) Events() []Event {
	var out []Event
	_ = v.s.do(context.Background(), func(st *state) error {
		out = append(out, st.events...)
		return nil
	})
	return out
}
