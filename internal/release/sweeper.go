package release

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/quickshow-booking/internal/booking"
	"github.com/iliyamo/quickshow-booking/internal/logging"
	"github.com/iliyamo/quickshow-booking/internal/metrics"
)

// StaleLister finds pending bookings created before a cutoff.
type StaleLister interface {
	StalePending(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// StaleSweeper expires pending bookings well past their hold deadline.
// It backs up the release workflows for bookings whose workflow never
// started or is stuck.
type StaleSweeper struct {
	bookings StaleLister
	expirer  Expirer
	clock    clockwork.Clock
	maxAge   time.Duration
	batch    int
}

// NewStaleSweeper expires bookings older than hold+grace, batch at a time.
func NewStaleSweeper(bookings StaleLister, expirer Expirer, hold, grace time.Duration, clock clockwork.Clock) *StaleSweeper {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &StaleSweeper{bookings: bookings, expirer: expirer, clock: clock, maxAge: hold + grace, batch: 100}
}

// Sweep runs one pass and returns how many bookings it expired.
func (s *StaleSweeper) Sweep(ctx context.Context) (int, error) {
	ids, err := s.bookings.StalePending(ctx, s.clock.Now().Add(-s.maxAge), s.batch)
	if err != nil {
		return 0, err
	}
	log := logging.FromContext(ctx)
	expired := 0
	for _, id := range ids {
		out, err := s.expirer.ExpireBooking(ctx, id)
		if err != nil {
			log.WithField("booking_id", id).WithError(err).Warn("stale booking not expired")
			continue
		}
		if out == booking.Expired {
			expired++
			metrics.SweepExpired.Inc()
		}
	}
	if expired > 0 {
		log.WithFields(logrus.Fields{"expired": expired, "scanned": len(ids)}).Info("stale bookings expired")
	}
	return expired, nil
}

// Register adds the sweep to sched, running every interval.  Runs never
// overlap.
func (s *StaleSweeper) Register(ctx context.Context, sched gocron.Scheduler, every time.Duration) (gocron.Job, error) {
	return sched.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			if _, err := s.Sweep(ctx); err != nil {
				logging.FromContext(ctx).WithError(err).Error("stale sweep failed")
			}
		}),
		gocron.WithName("stale-booking-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
}
