package handler

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/quickshow-booking/internal/booking"
	"github.com/iliyamo/quickshow-booking/internal/middleware"
	"github.com/iliyamo/quickshow-booking/internal/model"
	"github.com/iliyamo/quickshow-booking/internal/repository"
)

// BookingService is the booking lifecycle as used by the HTTP layer.
type BookingService interface {
	Hold() time.Duration
	CreateBooking(ctx context.Context, req booking.CreateRequest) (booking.Created, error)
	ConfirmPayment(ctx context.Context, bookingID string) (booking.Outcome, error)
	GetBooking(ctx context.Context, bookingID string) (model.Booking, error)
	ListUserBookings(ctx context.Context, userID uint64) ([]model.Booking, error)
	ListBookings(ctx context.Context) ([]model.Booking, error)
	Dashboard(ctx context.Context) (model.Dashboard, error)
}

// BookingHandler serves the customer booking endpoints.  Routes are
// expected behind JWTAuth.
type BookingHandler struct {
	Bookings BookingService
	Shows    ShowCatalog
}

func NewBookingHandler(bookings BookingService, shows ShowCatalog) *BookingHandler {
	return &BookingHandler{Bookings: bookings, Shows: shows}
}

type createBookingReq struct {
	ShowID string   `json:"show_id"`
	Seats  []string `json:"seats"`
}

// Create handles POST /v1/bookings.  The amount is the show price times
// the number of seats.  On success the client is sent to payment_link.
func (h *BookingHandler) Create(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req createBookingReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.ShowID == "" || len(req.Seats) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "show_id and seats are required"})
	}
	ctx := c.Request().Context()

	show, err := h.Shows.Get(ctx, req.ShowID)
	if err != nil {
		if errors.Is(err, repository.ErrShowNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "show not found"})
		}
		return serverError(c, "load show failed", err)
	}

	amount := uint64(show.PriceCents) * uint64(len(req.Seats))
	if amount > math.MaxUint32 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "booking amount out of range"})
	}

	created, err := h.Bookings.CreateBooking(ctx, booking.CreateRequest{
		ShowID:      show.ID,
		SeatIDs:     req.Seats,
		UserID:      uid,
		AmountCents: uint32(amount),
		Description: show.MovieTitle,
	})
	if err != nil {
		return bookingError(c, err, created)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"booking_id":   created.BookingID,
		"amount_cents": created.AmountCents,
		"payment_link": created.PaymentLink,
		"expires_at":   created.ExpiresAt,
	})
}

// Mine handles GET /v1/my-bookings.
func (h *BookingHandler) Mine(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	list, err := h.Bookings.ListUserBookings(c.Request().Context(), uid)
	if err != nil {
		return serverError(c, "list bookings failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": toBookingResps(list, h.Bookings.Hold())})
}

// Get handles GET /v1/bookings/:id.  Other users' bookings are reported
// as missing; admins may read any booking.
func (h *BookingHandler) Get(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	b, err := h.Bookings.GetBooking(c.Request().Context(), c.Param("id"))
	if err == nil && b.UserID != uid && middleware.Role(c) != model.RoleAdmin {
		err = booking.ErrBookingNotFound
	}
	if err != nil {
		return bookingError(c, err, booking.Created{})
	}
	return c.JSON(http.StatusOK, toBookingResp(b, h.Bookings.Hold()))
}

// bookingError maps lifecycle errors to HTTP responses.
func bookingError(c echo.Context, err error, created booking.Created) error {
	switch {
	case errors.Is(err, booking.ErrSeatUnavailable):
		return c.JSON(http.StatusConflict, echo.Map{"error": "one or more seats are no longer available"})
	case errors.Is(err, booking.ErrShowNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "show not found"})
	case errors.Is(err, booking.ErrInvalidSeats):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, booking.ErrShowStarted):
		return c.JSON(http.StatusConflict, echo.Map{"error": "show has already started"})
	case errors.Is(err, booking.ErrBookingNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
	case errors.Is(err, booking.ErrPaymentUnavailable):
		// the booking exists and holds its seats until it expires
		return c.JSON(http.StatusBadGateway, echo.Map{
			"error":      "payment provider unavailable",
			"booking_id": created.BookingID,
			"expires_at": created.ExpiresAt,
		})
	case errors.Is(err, booking.ErrReleaseNotScheduled):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "booking temporarily unavailable"})
	}
	return serverError(c, "booking failed", err)
}
