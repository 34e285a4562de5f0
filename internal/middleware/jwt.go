package middleware // package middleware contains reusable HTTP middleware functions

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/quickshow-booking/internal/logging"
	"github.com/iliyamo/quickshow-booking/internal/utils"
)

// JWTAuth validates a Bearer access token and stores the user id and role
// in the echo context under "user_id" (uint64) and "role" (string).  The
// request logger is enriched with the user id as well.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			claims, err := utils.ParseAccessToken(secret, strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			uid, _ := claims.UserID() // validated by ParseAccessToken

			c.Set(userIDKey, uid)
			c.Set(roleKey, claims.Role)

			req := c.Request()
			entry := logging.FromContext(req.Context()).WithField("user_id", uid)
			c.SetRequest(req.WithContext(logging.ToContext(req.Context(), entry)))
			return next(c)
		}
	}
}
