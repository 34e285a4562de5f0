package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/quickshow-booking/internal/logging"
	"github.com/iliyamo/quickshow-booking/internal/model"
)

// UpcomingShows finds shows starting in a window, with their occupancy.
type UpcomingShows interface {
	StartingBetween(ctx context.Context, from, to time.Time) ([]model.Show, error)
}

// HolderDirectory resolves seat holder booking ids to their users.
type HolderDirectory interface {
	ContactsForBookings(ctx context.Context, bookingIDs []string) ([]model.Contact, error)
}

// EventSink appends events to the outbox.
type EventSink interface {
	Append(ctx context.Context, eventType string, payload any) error
}

// Transactor runs fn inside one transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReminderSweep queues a show.reminder event for every user holding seats
// on a show that starts roughly lookahead from now.  Holders are not
// filtered by payment status.
type ReminderSweep struct {
	shows     UpcomingShows
	holders   HolderDirectory
	events    EventSink
	tx        Transactor
	clock     clockwork.Clock
	lookahead time.Duration
	window    time.Duration
}

// NewReminderSweep covers shows starting in [now+lookahead-window, now+lookahead].
func NewReminderSweep(shows UpcomingShows, holders HolderDirectory, events EventSink, tx Transactor,
	lookahead, window time.Duration, clock clockwork.Clock) *ReminderSweep {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ReminderSweep{
		shows:     shows,
		holders:   holders,
		events:    events,
		tx:        tx,
		clock:     clock,
		lookahead: lookahead,
		window:    window,
	}
}

// Sweep runs one pass and returns the number of reminders queued.
func (r *ReminderSweep) Sweep(ctx context.Context) (int, error) {
	target := r.clock.Now().Add(r.lookahead)
	shows, err := r.shows.StartingBetween(ctx, target.Add(-r.window), target)
	if err != nil {
		return 0, fmt.Errorf("load upcoming shows: %w", err)
	}
	log := logging.FromContext(ctx)
	queued := 0
	for _, show := range shows {
		holders := show.HolderIDs()
		if len(holders) == 0 {
			continue
		}
		contacts, err := r.holders.ContactsForBookings(ctx, holders)
		if err != nil {
			log.WithField("show_id", show.ID).WithError(err).Warn("reminder recipients not resolved")
			continue
		}
		if len(contacts) == 0 {
			continue
		}
		err = r.tx.WithinTx(ctx, func(ctx context.Context) error {
			for _, c := range contacts {
				ev := ShowReminder{ShowID: show.ID, UserID: c.UserID, MovieTitle: show.MovieTitle, StartsAt: show.StartsAt}
				if err := r.events.Append(ctx, EventShowReminder, ev); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			log.WithField("show_id", show.ID).WithError(err).Warn("reminders not queued")
			continue
		}
		queued += len(contacts)
	}
	log.WithFields(logrus.Fields{"shows": len(shows), "reminders": queued}).Info("reminder sweep finished")
	return queued, nil
}

// Register schedules the sweep on a standard five-field cron spec.
func (r *ReminderSweep) Register(ctx context.Context, sched gocron.Scheduler, spec string) (gocron.Job, error) {
	return sched.NewJob(
		gocron.CronJob(spec, false),
		gocron.NewTask(func() {
			if _, err := r.Sweep(ctx); err != nil {
				logging.FromContext(ctx).WithError(err).Error("reminder sweep failed")
			}
		}),
		gocron.WithName("show-reminder-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
}
