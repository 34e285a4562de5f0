package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/quickshow-booking/internal/model"
	"github.com/iliyamo/quickshow-booking/internal/notify"
	"github.com/iliyamo/quickshow-booking/internal/repository"
)

// ShowWriter schedules and removes shows.  Delete fails with
// repository.ErrConflict while bookings still reference the show.
type ShowWriter interface {
	Create(ctx context.Context, s *model.Show) error
	Delete(ctx context.Context, id string) error
}

// Transactor runs fn in one transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventSink appends notification events to the outbox.
type EventSink interface {
	Append(ctx context.Context, eventType string, payload any) error
}

// CachePurger drops cached responses of a route.
type CachePurger interface {
	PurgeRoute(ctx context.Context, route string) error
}

// AdminHandler serves /v1/admin.  Routes are expected behind JWTAuth and
// RequireRole(ADMIN).
type AdminHandler struct {
	Tx       Transactor
	Shows    ShowCatalog
	Writer   ShowWriter
	Events   EventSink
	Bookings BookingService
	Cache    CachePurger
	Clock    clockwork.Clock
}

// maxPriceCents caps the ticket price of a show.
const maxPriceCents = 1_000_000

type createShowsReq struct {
	MovieID    string   `json:"movie_id"`
	MovieTitle string   `json:"movie_title"`
	PriceCents uint32   `json:"price_cents"`
	StartsAt   []string `json:"starts_at"` // RFC 3339 instants
}

// CreateShows handles POST /v1/admin/shows.  Several showtimes of one
// movie are scheduled together; each new show emits show.added in the
// same transaction.
func (h *AdminHandler) CreateShows(c echo.Context) error {
	var req createShowsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	req.MovieTitle = strings.TrimSpace(req.MovieTitle)
	if req.MovieTitle == "" || req.PriceCents == 0 || len(req.StartsAt) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "movie_title, price_cents and starts_at are required"})
	}
	if req.PriceCents > maxPriceCents {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "price_cents too large"})
	}
	now := time.Now()
	if h.Clock != nil {
		now = h.Clock.Now()
	}
	shows := make([]model.Show, 0, len(req.StartsAt))
	for _, raw := range req.StartsAt {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid starts_at " + raw})
		}
		if !at.After(now) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "starts_at must be in the future"})
		}
		shows = append(shows, model.Show{
			MovieID:    strings.TrimSpace(req.MovieID),
			MovieTitle: req.MovieTitle,
			StartsAt:   at.UTC(),
			PriceCents: req.PriceCents,
		})
	}

	ctx := c.Request().Context()
	err := h.Tx.WithinTx(ctx, func(ctx context.Context) error {
		for i := range shows {
			if err := h.Writer.Create(ctx, &shows[i]); err != nil {
				return err
			}
			ev := notify.ShowAdded{ShowID: shows[i].ID, MovieTitle: shows[i].MovieTitle, StartsAt: shows[i].StartsAt}
			if err := h.Events.Append(ctx, notify.EventShowAdded, ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return serverError(c, "create shows failed", err)
	}
	h.purgeListing(c)
	return c.JSON(http.StatusCreated, echo.Map{"shows": toShowResps(shows)})
}

// DeleteShow handles DELETE /v1/admin/shows/:id.  Shows with bookings
// cannot be removed.
func (h *AdminHandler) DeleteShow(c echo.Context) error {
	err := h.Writer.Delete(c.Request().Context(), c.Param("id"))
	switch {
	case errors.Is(err, repository.ErrShowNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "show not found"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "show has bookings"})
	case err != nil:
		return serverError(c, "delete show failed", err)
	}
	h.purgeListing(c)
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHandler) purgeListing(c echo.Context) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.PurgeRoute(c.Request().Context(), "/v1/shows"); err != nil {
		// stale listings age out with the cache TTL
		serverLog(c).WithError(err).Warn("show cache not purged")
	}
}

// ListShows handles GET /v1/admin/shows, including past shows.
func (h *AdminHandler) ListShows(c echo.Context) error {
	shows, err := h.Shows.ListAll(c.Request().Context())
	if err != nil {
		return serverError(c, "list shows failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"shows": toShowResps(shows)})
}

// ListBookings handles GET /v1/admin/bookings.
func (h *AdminHandler) ListBookings(c echo.Context) error {
	list, err := h.Bookings.ListBookings(c.Request().Context())
	if err != nil {
		return serverError(c, "list bookings failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": toBookingResps(list, h.Bookings.Hold())})
}

// Dashboard handles GET /v1/admin/dashboard.
func (h *AdminHandler) Dashboard(c echo.Context) error {
	d, err := h.Bookings.Dashboard(c.Request().Context())
	if err != nil {
		return serverError(c, "load dashboard failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"total_bookings":      d.TotalBookings,
		"total_revenue_cents": d.TotalRevenue,
		"active_shows":        toShowResps(d.ActiveShows),
		"total_users":         d.TotalUsers,
	})
}
