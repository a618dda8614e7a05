package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5*time.Second, cfg.Payment.Timeout)
	assert.Equal(t, 3*time.Second, cfg.Product.Timeout)
	assert.Equal(t, 5, cfg.Breaker.MinimumCalls)
	assert.InDelta(t, 0.5, cfg.Breaker.FailureRateThreshold, 1e-9)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("PAYMENT_BASE_URL", "http://pay.local/")
	t.Setenv("PAYMENT_TIMEOUT", "750ms")
	t.Setenv("BREAKER_OPEN_TIMEOUT", "1m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "http://pay.local", cfg.Payment.BaseURL)
	assert.Equal(t, 750*time.Millisecond, cfg.Payment.Timeout)
	assert.Equal(t, time.Minute, cfg.Breaker.OpenTimeout)
}

func TestLoad_RejectsUnboundedTimeout(t *testing.T) {
	t.Setenv("USER_TIMEOUT", "0s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user timeout must be positive")
}

func TestValidate_BreakerBounds(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Breaker.MinimumCalls = cfg.Breaker.WindowSize + 1
	assert.Error(t, cfg.Validate())

	cfg.Breaker.MinimumCalls = 1
	cfg.Breaker.FailureRateThreshold = 1.5
	assert.Error(t, cfg.Validate())
}
