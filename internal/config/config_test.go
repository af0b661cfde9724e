package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(env(nil))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "usd", cfg.Currency)
	assert.Equal(t, "0.18", cfg.TaxRate.String())
	assert.Equal(t, 10*time.Minute, cfg.ReservationTTL)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, 64, cfg.LockStripes)
	assert.Equal(t, uint64(3), cfg.PaymentMaxRetries)
	assert.InDelta(t, 0.7, cfg.PaymentSuccessRate, 1e-9)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Empty(t, cfg.PostgresDSN)
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"KAFKA_BROKERS":        "k1:9092, k2:9092,",
		"CURRENCY":             "EUR",
		"TAX_RATE":             "0.2",
		"RESERVATION_TTL":      "90s",
		"PAYMENT_SUCCESS_RATE": "1",
		"LOCK_STRIPES":         "8",
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "eur", cfg.Currency)
	assert.Equal(t, "0.2", cfg.TaxRate.String())
	assert.Equal(t, 90*time.Second, cfg.ReservationTTL)
	assert.Equal(t, 8, cfg.LockStripes)
}

func TestFromEnvCollectsErrors(t *testing.T) {
	_, err := FromEnv(env(map[string]string{
		"RESERVATION_TTL":      "soon",
		"PAYMENT_SUCCESS_RATE": "1.5",
		"LOCK_STRIPES":         "zero",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RESERVATION_TTL")
	assert.Contains(t, err.Error(), "PAYMENT_SUCCESS_RATE")
	assert.Contains(t, err.Error(), "LOCK_STRIPES")
}
