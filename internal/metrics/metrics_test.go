package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-order-saga/internal/breaker"
)

func TestRegistry_Hooks(t *testing.T) {
	r := NewRegistry()

	r.Placement("placed")
	r.Placement("placed")
	r.Fallback("circuit_open")
	r.ShortCircuited()
	r.Retried()
	r.ObserveStep("collect_payment", 20*time.Millisecond)
	r.OnBreakerStateChange("payment", breaker.StateClosed, breaker.StateOpen)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.Placements.WithLabelValues("placed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.PaymentFallbacks.WithLabelValues("circuit_open")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ShortCircuits))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.BreakerState.WithLabelValues("payment")))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "saga_step_duration_seconds_bucket")
}
