package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/quickshow-booking/internal/memstore"
	"github.com/iliyamo/quickshow-booking/internal/model"
	"github.com/iliyamo/quickshow-booking/internal/notify"
	"github.com/iliyamo/quickshow-booking/internal/reservation"
)

var t0 = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

type fakeScheduler struct {
	mu    sync.Mutex
	tasks map[string]time.Time
	err   error
}

func (s *fakeScheduler) ScheduleRelease(_ context.Context, bookingID string, fireAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.tasks[bookingID] = fireAt
	return nil
}

func (s *fakeScheduler) due(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, at := range s.tasks {
		if !at.After(now) {
			ids = append(ids, id)
		}
	}
	return ids
}

type fakeGateway struct {
	err error
}

func (g *fakeGateway) CreatePaymentLink(_ context.Context, req PaymentRequest) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return "https://checkout.test/" + req.BookingID, nil
}

type fixture struct {
	store  *memstore.Store
	engine *reservation.Engine
	sched  *fakeScheduler
	pay    *fakeGateway
	clock  *clockwork.FakeClock
	mgr    *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: memstore.New(),
		sched: &fakeScheduler{tasks: map[string]time.Time{}},
		pay:   &fakeGateway{},
		clock: clockwork.NewFakeClockAt(t0),
	}
	f.store.Shows.Add(model.Show{ID: "show-1", MovieTitle: "Dune", StartsAt: t0.Add(48 * time.Hour), PriceCents: 1200})
	f.engine = reservation.NewEngine(f.store.Shows, f.store, reservation.WithClock(f.clock))
	f.mgr = NewManager(Deps{
		Tx:        f.store,
		Seats:     f.engine,
		Bookings:  f.store.Bookings,
		Shows:     f.store.Shows,
		Events:    f.store.Outbox,
		Scheduler: f.sched,
		Payments:  f.pay,
	}, WithClock(f.clock))
	return f
}

func (f *fixture) book(t *testing.T, user uint64, seats ...string) Created {
	t.Helper()
	out, err := f.mgr.CreateBooking(context.Background(), CreateRequest{
		ShowID: "show-1", SeatIDs: seats, UserID: user, AmountCents: uint32(1200 * len(seats)),
	})
	require.NoError(t, err)
	return out
}

// fireDue runs every release task whose deadline has passed.
func (f *fixture) fireDue(t *testing.T) {
	t.Helper()
	for _, id := range f.sched.due(f.clock.Now()) {
		_, err := f.mgr.ExpireBooking(context.Background(), id)
		require.NoError(t, err)
	}
}

func (f *fixture) occupied(t *testing.T) map[string]string {
	t.Helper()
	claims, err := f.store.Shows.Claims(context.Background(), "show-1")
	require.NoError(t, err)
	return claims
}

// assertSeatInvariant checks that every live booking holds exactly its
// seats and that no seat has two live bookings.
func (f *fixture) assertSeatInvariant(t *testing.T) {
	t.Helper()
	all, err := f.store.Bookings.ListAll(context.Background())
	require.NoError(t, err)
	claims := f.occupied(t)
	owners := map[string]string{}
	for _, b := range all {
		for _, seat := range b.Seats {
			prev, dup := owners[seat]
			assert.False(t, dup, "seat %s in bookings %s and %s", seat, prev, b.ID)
			owners[seat] = b.ID
			assert.Equal(t, b.ID, claims[seat], "seat %s not claimed by its booking", seat)
		}
	}
	assert.Len(t, claims, len(owners))
}

func TestCreateBooking_ClaimsSeatsAndSchedulesRelease(t *testing.T) {
	f := newFixture(t)

	out := f.book(t, 7, "a1", " A2 ")

	assert.Equal(t, t0.Add(DefaultHold), out.ExpiresAt)
	assert.Equal(t, "https://checkout.test/"+out.BookingID, out.PaymentLink)
	assert.Equal(t, t0.Add(DefaultHold), f.sched.tasks[out.BookingID])

	b, err := f.mgr.GetBooking(context.Background(), out.BookingID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A2"}, b.Seats)
	assert.Equal(t, model.StatusPending, b.Status)
	assert.Equal(t, out.PaymentLink, b.PaymentLink)
	f.assertSeatInvariant(t)
}

func TestScenarioA_OverlappingClaimRejected(t *testing.T) {
	f := newFixture(t)
	b1 := f.book(t, 1, "A1", "A2")

	_, err := f.mgr.CreateBooking(context.Background(), CreateRequest{
		ShowID: "show-1", SeatIDs: []string{"A2", "A3"}, UserID: 2, AmountCents: 2400,
	})

	assert.ErrorIs(t, err, ErrSeatUnavailable)
	assert.Equal(t, map[string]string{"A1": b1.BookingID, "A2": b1.BookingID}, f.occupied(t))
	f.assertSeatInvariant(t)
}

func TestScenarioB_UnpaidHoldReleased(t *testing.T) {
	f := newFixture(t)
	b1 := f.book(t, 1, "A1", "A2")

	f.clock.Advance(DefaultHold - time.Second)
	f.fireDue(t)
	assert.Len(t, f.occupied(t), 2, "hold released early")

	f.clock.Advance(time.Second)
	f.fireDue(t)

	_, err := f.mgr.GetBooking(context.Background(), b1.BookingID)
	assert.ErrorIs(t, err, ErrBookingNotFound)
	assert.Empty(t, f.occupied(t))

	f.clock.Advance(time.Minute)
	b2 := f.book(t, 2, "A1")
	assert.Equal(t, map[string]string{"A1": b2.BookingID}, f.occupied(t))
}

func TestScenarioC_PaidBookingSurvivesRelease(t *testing.T) {
	f := newFixture(t)
	b1 := f.book(t, 1, "A1", "A2")

	f.clock.Advance(5 * time.Minute)
	out, err := f.mgr.ConfirmPayment(context.Background(), b1.BookingID)
	require.NoError(t, err)
	assert.Equal(t, Confirmed, out)

	f.clock.Advance(5 * time.Minute)
	res, err := f.mgr.ExpireBooking(context.Background(), b1.BookingID)
	require.NoError(t, err)
	assert.Equal(t, AlreadyPaid, res)

	b, err := f.mgr.GetBooking(context.Background(), b1.BookingID)
	require.NoError(t, err)
	assert.True(t, b.IsPaid())
	assert.Empty(t, b.PaymentLink)
	assert.Equal(t, map[string]string{"A1": b1.BookingID, "A2": b1.BookingID}, f.occupied(t))
}

func TestConfirmPayment_Idempotent(t *testing.T) {
	f := newFixture(t)
	b1 := f.book(t, 1, "B5")

	first, err := f.mgr.ConfirmPayment(context.Background(), b1.BookingID)
	require.NoError(t, err)
	second, err := f.mgr.ConfirmPayment(context.Background(), b1.BookingID)
	require.NoError(t, err)

	assert.Equal(t, Confirmed, first)
	assert.Equal(t, AlreadyPaid, second)

	events := f.store.Outbox.Events()
	require.Len(t, events, 1)
	assert.Equal(t, notify.EventBookingPaid, events[0].Type)
	assert.JSONEq(t, fmt.Sprintf(`{"booking_id":%q}`, b1.BookingID), string(events[0].Payload))
}

func TestConfirmPayment_AfterExpiry(t *testing.T) {
	f := newFixture(t)
	b1 := f.book(t, 1, "C3")

	f.clock.Advance(DefaultHold)
	f.fireDue(t)

	_, err := f.mgr.ConfirmPayment(context.Background(), b1.BookingID)
	assert.ErrorIs(t, err, ErrBookingExpired)
	assert.Empty(t, f.store.Outbox.Events())
}

func TestExpireBooking_Idempotent(t *testing.T) {
	f := newFixture(t)
	b1 := f.book(t, 1, "D1", "D2")

	first, err := f.mgr.ExpireBooking(context.Background(), b1.BookingID)
	require.NoError(t, err)
	second, err := f.mgr.ExpireBooking(context.Background(), b1.BookingID)
	require.NoError(t, err)
	unknown, err := f.mgr.ExpireBooking(context.Background(), "no-such-booking")
	require.NoError(t, err)

	assert.Equal(t, Expired, first)
	assert.Equal(t, AlreadyGone, second)
	assert.Equal(t, AlreadyGone, unknown)
	assert.Empty(t, f.occupied(t))
}

func TestExpireBooking_LeavesOtherHoldersAlone(t *testing.T) {
	f := newFixture(t)
	b1 := f.book(t, 1, "E1")
	b2 := f.book(t, 2, "E2")

	_, err := f.mgr.ExpireBooking(context.Background(), b1.BookingID)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"E2": b2.BookingID}, f.occupied(t))
	f.assertSeatInvariant(t)
}

func TestCreateBooking_SchedulingFailureExpiresImmediately(t *testing.T) {
	f := newFixture(t)
	f.sched.err = errors.New("temporal unreachable")

	_, err := f.mgr.CreateBooking(context.Background(), CreateRequest{
		ShowID: "show-1", SeatIDs: []string{"F1"}, UserID: 1, AmountCents: 1200,
	})

	assert.ErrorIs(t, err, ErrReleaseNotScheduled)
	assert.Empty(t, f.occupied(t))
	all, err := f.mgr.ListBookings(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateBooking_PaymentFailureKeepsPendingHold(t *testing.T) {
	f := newFixture(t)
	f.pay.err = errors.New("stripe down")

	out, err := f.mgr.CreateBooking(context.Background(), CreateRequest{
		ShowID: "show-1", SeatIDs: []string{"G1"}, UserID: 1, AmountCents: 1200,
	})

	assert.ErrorIs(t, err, ErrPaymentUnavailable)
	require.NotEmpty(t, out.BookingID)
	assert.Contains(t, f.sched.tasks, out.BookingID)
	b, err := f.mgr.GetBooking(context.Background(), out.BookingID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, b.Status)
	assert.Empty(t, b.PaymentLink)
}

func TestCreateBooking_Rejections(t *testing.T) {
	f := newFixture(t)
	f.store.Shows.Add(model.Show{ID: "past", StartsAt: t0.Add(-time.Hour), PriceCents: 900})

	cases := []struct {
		name string
		req  CreateRequest
		want error
	}{
		{"no seats", CreateRequest{ShowID: "show-1"}, ErrInvalidSeats},
		{"too many seats", CreateRequest{ShowID: "show-1", SeatIDs: []string{"A1", "A2", "A3", "A4", "A5", "A6"}}, ErrInvalidSeats},
		{"duplicate seat", CreateRequest{ShowID: "show-1", SeatIDs: []string{"A1", "a1"}}, ErrInvalidSeats},
		{"outside layout", CreateRequest{ShowID: "show-1", SeatIDs: []string{"K1"}}, ErrInvalidSeats},
		{"unknown show", CreateRequest{ShowID: "nope", SeatIDs: []string{"A1"}}, ErrShowNotFound},
		{"started show", CreateRequest{ShowID: "past", SeatIDs: []string{"A1"}}, ErrShowStarted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.req.UserID = 1
			_, err := f.mgr.CreateBooking(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Empty(t, f.occupied(t))
	assert.Empty(t, f.sched.tasks)
}

func TestConfirmAndExpireRace_ExactlyOneWins(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 50; i++ {
		seat := fmt.Sprintf("%c%d", 'A'+i/10, i%10+1)
		b := f.book(t, 1, seat)

		var (
			wg         sync.WaitGroup
			confirmOut Outcome
			confirmErr error
			expireOut  Outcome
			expireErr  error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			confirmOut, confirmErr = f.mgr.ConfirmPayment(context.Background(), b.BookingID)
		}()
		go func() {
			defer wg.Done()
			expireOut, expireErr = f.mgr.ExpireBooking(context.Background(), b.BookingID)
		}()
		wg.Wait()

		require.NoError(t, expireErr)
		switch expireOut {
		case AlreadyPaid:
			require.NoError(t, confirmErr)
			assert.Equal(t, Confirmed, confirmOut)
			assert.Equal(t, b.BookingID, f.occupied(t)[seat])
		case Expired:
			assert.ErrorIs(t, confirmErr, ErrBookingExpired)
			assert.NotContains(t, f.occupied(t), seat)
		default:
			t.Fatalf("unexpected expiry outcome %q", expireOut)
		}
	}
	f.assertSeatInvariant(t)
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	f.store.Users.Add(model.User{ID: 1, Email: "a@example.com", IsActive: true})
	f.store.Users.Add(model.User{ID: 2, Email: "b@example.com", IsActive: true})
	paid := f.book(t, 1, "J9", "J10")
	f.book(t, 2, "J8")
	_, err := f.mgr.ConfirmPayment(context.Background(), paid.BookingID)
	require.NoError(t, err)

	d, err := f.mgr.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, d.TotalBookings)
	assert.EqualValues(t, 2400, d.TotalRevenue)
	assert.Equal(t, 2, d.TotalUsers)
	require.Len(t, d.ActiveShows, 1)
	assert.Equal(t, "show-1", d.ActiveShows[0].ID)
}
