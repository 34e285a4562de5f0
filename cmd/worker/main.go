package main // Entry point of the background worker

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/quickshow-booking/internal/booking"
	"github.com/iliyamo/quickshow-booking/internal/config"
	"github.com/iliyamo/quickshow-booking/internal/database"
	"github.com/iliyamo/quickshow-booking/internal/logging"
	"github.com/iliyamo/quickshow-booking/internal/model"
	"github.com/iliyamo/quickshow-booking/internal/notify"
	"github.com/iliyamo/quickshow-booking/internal/release"
	"github.com/iliyamo/quickshow-booking/internal/repository"
	"github.com/iliyamo/quickshow-booking/internal/reservation"
)

// The worker runs the release workflows, the notification consumer and
// the periodic sweeps.  It never serves HTTP.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	logging.Init(cfg.LogLevel, cfg.IsProd())
	log := logrus.WithField("service", "quickshow-worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.ToContext(ctx, log)

	db, err := database.Open(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	defer db.Close()

	tx := repository.NewTxManager(db)
	shows := repository.NewShowRepo(db)
	bookings := repository.NewBookingRepo(db)
	users := repository.NewUserRepo(db)
	events := repository.NewOutboxRepo(db)

	engine := reservation.NewEngine(shows, tx,
		reservation.WithLayout(model.SeatLayout{Rows: cfg.SeatRows, SeatsPerRow: cfg.SeatsPerRow}),
		reservation.WithMaxSeats(cfg.MaxSeatsPerBooking),
	)
	// expiry only needs storage and the engine
	manager := booking.NewManager(booking.Deps{
		Tx:       tx,
		Seats:    engine,
		Bookings: bookings,
		Shows:    shows,
		Events:   events,
	}, booking.WithHold(cfg.HoldDuration))

	tc, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalHost,
		Namespace: cfg.TemporalNamespace,
		Logger:    logging.NewTemporalLogger(log.WithField("component", "temporal")),
	})
	if err != nil {
		log.WithError(err).Fatal("connect temporal")
	}
	defer tc.Close()

	w := worker.New(tc, cfg.ReleaseTaskQueue, worker.Options{})
	release.Register(w, release.NewActivities(manager))

	sched, err := gocron.NewScheduler()
	if err != nil {
		log.WithError(err).Fatal("create scheduler")
	}
	sweeper := release.NewStaleSweeper(bookings, manager, cfg.HoldDuration, cfg.StaleGrace, nil)
	if _, err := sweeper.Register(ctx, sched, cfg.StaleSweepEvery); err != nil {
		log.WithError(err).Fatal("register stale sweep")
	}
	reminders := notify.NewReminderSweep(shows, users, events, tx, cfg.ReminderLookahead, cfg.ReminderWindow, nil)
	if _, err := reminders.Register(ctx, sched, cfg.ReminderCron); err != nil {
		log.WithError(err).Fatal("register reminder sweep")
	}

	mailer := notify.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	consumer := notify.NewConsumer(cfg.RabbitURL, cfg.NotificationQueue,
		notify.NewDispatcher(bookings, shows, users, mailer))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := w.Start(); err != nil {
			return err
		}
		<-ctx.Done()
		w.Stop()
		return nil
	})
	g.Go(func() error { return consumer.Run(ctx) })
	g.Go(func() error {
		sched.Start()
		<-ctx.Done()
		return sched.Shutdown()
	})

	log.WithField("task_queue", cfg.ReleaseTaskQueue).Info("worker started")
	if err := g.Wait(); err != nil {
		log.WithError(err).Fatal("worker stopped")
	}
	log.Info("worker stopped")
}
