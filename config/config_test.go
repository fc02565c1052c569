package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 10*time.Minute, cfg.ReservationTTL)
	assert.Equal(t, 600*time.Second, cfg.CheckoutTimeout)
	assert.Equal(t, 5, cfg.MaxTicketsPerPurchase)
	assert.True(t, cfg.ServiceFeeRate.Equal(decimal.RequireFromString("0.1")))
	assert.Equal(t, 3, cfg.Payment.MaxRetries)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("RESERVATION_TTL", "5m")
	t.Setenv("SWEEP_BATCH_SIZE", "25")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("SERVICE_FEE_RATE", "0.15")

	cfg := Load()

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, 5*time.Minute, cfg.ReservationTTL)
	assert.Equal(t, 25, cfg.SweepBatchSize)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.True(t, cfg.ServiceFeeRate.Equal(decimal.RequireFromString("0.15")))
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("RESERVATION_TTL", "ten minutes")
	t.Setenv("REDIS_DB", "x")

	cfg := Load()

	assert.Equal(t, 10*time.Minute, cfg.ReservationTTL)
	assert.Equal(t, 0, cfg.RedisDB)
}

func TestDSN(t *testing.T) {
	cfg := &Config{DBHost: "db", DBPort: "5433", DBUser: "u", DBPassword: "p", DBName: "tickets", DBSSLMode: "disable"}

	assert.Equal(t, "host=db port=5433 user=u password=p dbname=tickets sslmode=disable", cfg.DSN())
}
