package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/quickshow-booking/internal/handler"
	"github.com/iliyamo/quickshow-booking/internal/metrics"
	"github.com/iliyamo/quickshow-booking/internal/middleware"
	"github.com/iliyamo/quickshow-booking/internal/model"
)

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}

// RegisterAuth registers the token endpoints under /v1/auth and the
// identity endpoint /v1/me.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	// logout works with either a refresh token or a bearer, so it is not
	// behind JWTAuth
	g.POST("/logout", a.Logout)

	e.GET("/v1/me", a.Me, middleware.JWTAuth(jwtSecret))
}

// RegisterPublic registers show browsing.  The listing is served through
// the response cache; occupancy never is.
func RegisterPublic(e *echo.Echo, s *handler.ShowHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/shows", s.List, cache)
	e.GET("/v1/shows/:id", s.Get)
	e.GET("/v1/shows/:id/seats", s.OccupiedSeats)
}

// RegisterBookings registers the customer booking routes.  Creating a
// booking is rate limited per user.
func RegisterBookings(e *echo.Echo, b *handler.BookingHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleCustomer, model.RoleAdmin))
	g.POST("/bookings", b.Create, limiter)
	g.GET("/my-bookings", b.Mine)
	g.GET("/bookings/:id", b.Get)
}

// RegisterFavorites registers the favorite movie routes for signed-in
// users.
func RegisterFavorites(e *echo.Echo, f *handler.FavoriteHandler, jwtSecret string) {
	g := e.Group("/v1/favorites", middleware.JWTAuth(jwtSecret))
	g.POST("", f.Toggle)
	g.GET("", f.List)
}

// RegisterPayments registers the payment provider webhook.  It is
// authenticated by its signature, not by JWT.
func RegisterPayments(e *echo.Echo, p *handler.PaymentHandler) {
	e.POST("/api/stripe", p.StripeWebhook)
}

// RegisterAdmin registers the admin routes under /v1/admin.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, jwtSecret string) {
	g := e.Group("/v1/admin", middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleAdmin))
	g.POST("/shows", a.CreateShows)
	g.GET("/shows", a.ListShows)
	g.DELETE("/shows/:id", a.DeleteShow)
	g.GET("/bookings", a.ListBookings)
	g.GET("/dashboard", a.Dashboard)
}
