package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/quickshow-booking/internal/logging"
	"github.com/iliyamo/quickshow-booking/internal/model"
)

// serverError logs err with the request logger and answers 500 with msg.
func serverError(c echo.Context, msg string, err error) error {
	serverLog(c).WithError(err).Error(msg)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": msg})
}

func serverLog(c echo.Context) *logrus.Entry {
	return logging.FromContext(c.Request().Context())
}

type showResp struct {
	ID         string    `json:"id"`
	MovieID    string    `json:"movie_id"`
	MovieTitle string    `json:"movie_title"`
	StartsAt   time.Time `json:"starts_at"`
	PriceCents uint32    `json:"price_cents"`
}

func toShowResp(s model.Show) showResp {
	return showResp{ID: s.ID, MovieID: s.MovieID, MovieTitle: s.MovieTitle, StartsAt: s.StartsAt, PriceCents: s.PriceCents}
}

func toShowResps(shows []model.Show) []showResp {
	out := make([]showResp, 0, len(shows))
	for _, s := range shows {
		out = append(out, toShowResp(s))
	}
	return out
}

type bookingResp struct {
	ID          string     `json:"id"`
	ShowID      string     `json:"show_id"`
	Seats       []string   `json:"seats"`
	UserID      uint64     `json:"user_id"`
	AmountCents uint32     `json:"amount_cents"`
	Status      string     `json:"status"`
	IsPaid      bool       `json:"is_paid"`
	PaymentLink string     `json:"payment_link,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func toBookingResp(b model.Booking, hold time.Duration) bookingResp {
	r := bookingResp{
		ID:          b.ID,
		ShowID:      b.ShowID,
		Seats:       b.Seats,
		UserID:      b.UserID,
		AmountCents: b.AmountCents,
		Status:      string(b.Status),
		IsPaid:      b.IsPaid(),
		PaymentLink: b.PaymentLink,
		CreatedAt:   b.CreatedAt,
	}
	if !b.IsPaid() {
		exp := b.HoldDeadline(hold)
		r.ExpiresAt = &exp
	}
	return r
}

func toBookingResps(bs []model.Booking, hold time.Duration) []bookingResp {
	out := make([]bookingResp, 0, len(bs))
	for _, b := range bs {
		out = append(out, toBookingResp(b, hold))
	}
	return out
}
