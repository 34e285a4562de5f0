package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContext_FallsBackToStandardLogger(t *testing.T) {
	entry := FromContext(context.Background())
	require.NotNil(t, entry)
	assert.Equal(t, logrus.StandardLogger(), entry.Logger)
}

func TestRequestLogger_PropagatesCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "info", true)
	t.Cleanup(func() { InitWriter(&bytes.Buffer{}, "info", false) })

	e := echo.New()
	e.Use(RequestLogger())
	var seen string
	e.GET("/ping", func(c echo.Context) error {
		seen = FromContext(c.Request().Context()).Data["correlation_id"].(string)
		return c.NoContent(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(CorrelationHeader, "corr-1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, "corr-1", seen)
	assert.Equal(t, "corr-1", rec.Header().Get(CorrelationHeader))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "request handled", line["msg"])
	assert.Equal(t, float64(http.StatusNoContent), line["status"])
}

func TestTemporalLogger_Fields(t *testing.T) {
	f := fields([]interface{}{"booking_id", "b1", "attempt", 2, "dangling"})
	assert.Equal(t, "b1", f["booking_id"])
	assert.Equal(t, 2, f["attempt"])
	assert.Equal(t, "dangling", f["extra"])
}
