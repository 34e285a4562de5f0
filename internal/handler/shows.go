package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/quickshow-booking/internal/model"
	"github.com/iliyamo/quickshow-booking/internal/repository"
	"github.com/iliyamo/quickshow-booking/internal/reservation"
)

// ShowCatalog reads scheduled shows.
type ShowCatalog interface {
	Get(ctx context.Context, id string) (model.Show, error)
	ListUpcoming(ctx context.Context, now time.Time) ([]model.Show, error)
	ListAll(ctx context.Context) ([]model.Show, error)
}

// SeatMap reports occupancy through the seat reservation engine.
type SeatMap interface {
	Layout() model.SeatLayout
	OccupiedSeats(ctx context.Context, showID string) ([]string, error)
}

// ShowHandler serves the public show endpoints.  Nothing here requires
// authentication.
type ShowHandler struct {
	Shows ShowCatalog
	Seats SeatMap
	Clock clockwork.Clock
}

func NewShowHandler(shows ShowCatalog, seats SeatMap, clock clockwork.Clock) *ShowHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ShowHandler{Shows: shows, Seats: seats, Clock: clock}
}

// List handles GET /v1/shows: every show that has not started yet.
func (h *ShowHandler) List(c echo.Context) error {
	shows, err := h.Shows.ListUpcoming(c.Request().Context(), h.Clock.Now())
	if err != nil {
		return serverError(c, "list shows failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"shows": toShowResps(shows)})
}

// Get handles GET /v1/shows/:id.
func (h *ShowHandler) Get(c echo.Context) error {
	show, err := h.Shows.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrShowNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "show not found"})
		}
		return serverError(c, "load show failed", err)
	}
	return c.JSON(http.StatusOK, toShowResp(show))
}

// OccupiedSeats handles GET /v1/shows/:id/seats.  Pending and paid seats are both
// reported as occupied.
func (h *ShowHandler) OccupiedSeats(c echo.Context) error {
	id := c.Param("id")
	seats, err := h.Seats.OccupiedSeats(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, reservation.ErrShowNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "show not found"})
		}
		return serverError(c, "load seats failed", err)
	}
	layout := h.Seats.Layout()
	return c.JSON(http.StatusOK, echo.Map{
		"show_id":        id,
		"occupied_seats": seats,
		"rows":           layout.Rows,
		"seats_per_row":  layout.SeatsPerRow,
	})
}
