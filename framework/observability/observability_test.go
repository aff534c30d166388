package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelationIDRoundTrip(t *testing.T) {
	ctx := InjectCorrelationID(context.Background(), "corr-1")
	assert.Equal(t, "corr-1", ExtractCorrelationID(ctx))
	assert.Empty(t, ExtractCorrelationID(context.Background()))
}

func TestCorrelationIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CorrelationIDMiddleware())
	var seen string
	r.GET("/", func(c *gin.Context) {
		seen = ExtractCorrelationID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationIDHeader, "abc")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", rec.Header().Get(CorrelationIDHeader))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rec.Header().Get(CorrelationIDHeader))
}

func TestTraceCommandPassesThrough(t *testing.T) {
	boom := errors.New("boom")
	res, err := TraceCommand(context.Background(), "Ping", func(ctx context.Context) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", res)

	err = TraceEvent(context.Background(), "Pinged", func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestTracingManagerDisabled(t *testing.T) {
	tm, err := NewTracingManager(TracingConfig{ServiceName: "test"})
	require.NoError(t, err)
	require.NoError(t, tm.Start(context.Background()))
	assert.True(t, tm.IsRunning())
	assert.NotNil(t, tm.Tracer())
	require.NoError(t, tm.Stop(context.Background()))
}

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ok", HealthHandler(HealthCheckFunc{CheckName: "db", Fn: func(context.Context) error { return nil }}))
	r.GET("/bad", HealthHandler(HealthCheckFunc{CheckName: "db", Fn: func(context.Context) error { return errors.New("down") }}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bad", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "down")
}
