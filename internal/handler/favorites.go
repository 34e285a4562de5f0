package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/quickshow-booking/internal/middleware"
	"github.com/iliyamo/quickshow-booking/internal/model"
)

// FavoriteStore keeps each user's favorite movie ids.
type FavoriteStore interface {
	Toggle(ctx context.Context, userID uint64, movieID string) (bool, error)
	List(ctx context.Context, userID uint64) ([]string, error)
}

// FavoriteHandler serves /v1/favorites.  Routes are expected behind
// JWTAuth.
type FavoriteHandler struct {
	Favorites FavoriteStore
	Shows     ShowCatalog
	Clock     clockwork.Clock
}

func NewFavoriteHandler(favorites FavoriteStore, shows ShowCatalog, clock clockwork.Clock) *FavoriteHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &FavoriteHandler{Favorites: favorites, Shows: shows, Clock: clock}
}

type toggleFavoriteReq struct {
	MovieID string `json:"movie_id"`
}

// Toggle handles POST /v1/favorites.  A movie already in the list is
// removed, any other is added.
func (h *FavoriteHandler) Toggle(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req toggleFavoriteReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	movieID := strings.TrimSpace(req.MovieID)
	if movieID == "" || len(movieID) > 64 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "movie_id is required"})
	}
	added, err := h.Favorites.Toggle(c.Request().Context(), uid, movieID)
	if err != nil {
		return serverError(c, "toggle favorite failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"movie_id": movieID, "favorite": added})
}

// List handles GET /v1/favorites: the favorite movie ids together with
// the upcoming shows of those movies.
func (h *FavoriteHandler) List(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx := c.Request().Context()
	ids, err := h.Favorites.List(ctx, uid)
	if err != nil {
		return serverError(c, "list favorites failed", err)
	}
	shows, err := h.Shows.ListUpcoming(ctx, h.Clock.Now())
	if err != nil {
		return serverError(c, "list shows failed", err)
	}
	fav := make(map[string]bool, len(ids))
	for _, id := range ids {
		fav[id] = true
	}
	var matching []model.Show
	for _, s := range shows {
		if fav[s.MovieID] {
			matching = append(matching, s)
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"movie_ids": ids, "shows": toShowResps(matching)})
}
