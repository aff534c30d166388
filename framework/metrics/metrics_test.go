package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupExposesRecordedMetrics(t *testing.T) {
	provider, err := Setup("commerce-test", "test")
	require.NoError(t, err)
	defer func() { _ = provider.Shutdown(context.Background()) }()

	m, err := NewMetricsWithMeter(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordCommand(ctx, "DeleteProduct", 5*time.Millisecond, true)
	m.RecordOutboxAttempt(ctx, "DeleteInventory", false)
	m.RecordEnrichmentFailure(ctx, "geocode")

	rec := httptest.NewRecorder()
	provider.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "commands_total")
	assert.Contains(t, body, "outbox_attempts_total")
	assert.Contains(t, body, "enrichment_failures_total")
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordCommand(context.Background(), "x", time.Millisecond, false)
		m.RecordEventHandled(context.Background(), "e", "s", true)
		m.RecordCacheLookup(context.Background(), true)
	})
}
