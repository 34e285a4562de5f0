package logging

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// CorrelationHeader is read from and echoed on every HTTP response.
const CorrelationHeader = "X-Correlation-ID"

// RequestLogger returns an echo middleware that attaches a correlation
// id and a request-scoped logrus entry to the request context and logs
// one line per request.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			correlationID := req.Header.Get(CorrelationHeader)
			if correlationID == "" {
				correlationID = uuid.NewString()
			}
			c.Response().Header().Set(CorrelationHeader, correlationID)

			entry := logrus.WithFields(logrus.Fields{
				"correlation_id": correlationID,
				"method":         req.Method,
				"path":           c.Path(),
			})
			c.SetRequest(req.WithContext(ToContext(req.Context(), entry)))

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			fields := logrus.Fields{
				"status":      c.Response().Status,
				"duration_ms": time.Since(start).Milliseconds(),
			}
			if err != nil {
				fields["error"] = err.Error()
			}
			entry.WithFields(fields).Info("request handled")
			return nil
		}
	}
}
