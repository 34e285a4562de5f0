package main // Entry point of the HTTP API

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"go.temporal.io/sdk/client"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/quickshow-booking/internal/booking"
	"github.com/iliyamo/quickshow-booking/internal/config"
	"github.com/iliyamo/quickshow-booking/internal/database"
	"github.com/iliyamo/quickshow-booking/internal/handler"
	"github.com/iliyamo/quickshow-booking/internal/logging"
	"github.com/iliyamo/quickshow-booking/internal/middleware"
	"github.com/iliyamo/quickshow-booking/internal/model"
	"github.com/iliyamo/quickshow-booking/internal/notify"
	"github.com/iliyamo/quickshow-booking/internal/outbox"
	"github.com/iliyamo/quickshow-booking/internal/payment"
	"github.com/iliyamo/quickshow-booking/internal/release"
	"github.com/iliyamo/quickshow-booking/internal/repository"
	"github.com/iliyamo/quickshow-booking/internal/reservation"
	"github.com/iliyamo/quickshow-booking/internal/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	logging.Init(cfg.LogLevel, cfg.IsProd())
	log := logrus.WithField("service", "quickshow-api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.ToContext(ctx, log)

	db, err := database.Open(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		log.WithError(err).Fatal("migrate database")
	}

	// Redis only backs rate limiting and the listing cache; both are
	// disabled when it is unreachable.
	rdb := config.NewRedisClient(ctx)
	if rdb == nil {
		log.Warn("redis unavailable, rate limiting and response cache disabled")
	} else {
		defer rdb.Close()
	}

	tc, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalHost,
		Namespace: cfg.TemporalNamespace,
		Logger:    logging.NewTemporalLogger(log.WithField("component", "temporal")),
	})
	if err != nil {
		log.WithError(err).Fatal("connect temporal")
	}
	defer tc.Close()

	tx := repository.NewTxManager(db)
	shows := repository.NewShowRepo(db)
	bookings := repository.NewBookingRepo(db)
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	events := repository.NewOutboxRepo(db)
	favorites := repository.NewFavoriteRepo(db)

	engine := reservation.NewEngine(shows, tx,
		reservation.WithLayout(model.SeatLayout{Rows: cfg.SeatRows, SeatsPerRow: cfg.SeatsPerRow}),
		reservation.WithMaxSeats(cfg.MaxSeatsPerBooking),
	)
	manager := booking.NewManager(booking.Deps{
		Tx:        tx,
		Seats:     engine,
		Bookings:  bookings,
		Shows:     shows,
		Events:    events,
		Scheduler: release.NewScheduler(tc, cfg.ReleaseTaskQueue),
		Payments:  payment.NewStripeGateway(cfg.StripeSecretKey, cfg.Currency, cfg.FrontendURL),
	}, booking.WithHold(cfg.HoldDuration))

	cacheCfg := config.LoadCacheConfig()
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(logging.RequestLogger())

	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), cfg.JWTSecret)
	router.RegisterPublic(e, handler.NewShowHandler(shows, engine, nil), middleware.ResponseCache(cacheCfg, rdb))
	router.RegisterBookings(e, handler.NewBookingHandler(manager, shows), cfg.JWTSecret,
		middleware.RateLimit(config.LoadRateLimitConfig(), rdb))
	router.RegisterFavorites(e, handler.NewFavoriteHandler(favorites, shows, nil), cfg.JWTSecret)
	router.RegisterPayments(e, handler.NewPaymentHandler(payment.NewStripeVerifier(cfg.StripeWebhookSecret), manager))
	router.RegisterAdmin(e, &handler.AdminHandler{
		Tx:       tx,
		Shows:    shows,
		Writer:   shows,
		Events:   events,
		Bookings: manager,
		Cache:    middleware.NewCachePurger(cacheCfg, rdb),
	}, cfg.JWTSecret)

	publisher := notify.NewPublisher(cfg.RabbitURL, cfg.NotificationQueue)
	defer publisher.Close()
	forwarder := outbox.NewForwarder(events, publisher, cfg.OutboxBatch, cfg.OutboxInterval)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return forwarder.Run(ctx) })
	g.Go(func() error {
		addr := ":" + cfg.Port
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
	log.Info("server stopped")
}
