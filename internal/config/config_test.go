package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, ":8080", cfg.HTTPAddr)
		assert.Equal(t, 15*time.Minute, cfg.HoldTTL)
		assert.Equal(t, time.Minute, cfg.SweepInterval)
		assert.Equal(t, 5*time.Second, cfg.AvailabilityCacheTTL)
		assert.Equal(t, 10, cfg.LowStockThreshold)
		assert.Empty(t, cfg.KafkaBrokers)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("HOLD_TTL", "5m")
		t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
		t.Setenv("CORS_ORIGINS", "https://shop.example.com")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 5*time.Minute, cfg.HoldTTL)
		assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
		assert.Equal(t, []string{"https://shop.example.com"}, cfg.CORSOrigins)
	})

	t.Run("invalid duration", func(t *testing.T) {
		t.Setenv("HOLD_TTL", "soon")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("negative hold ttl", func(t *testing.T) {
		t.Setenv("HOLD_TTL", "-1m")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("invalid threshold", func(t *testing.T) {
		t.Setenv("LOW_STOCK_THRESHOLD", "many")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestMaskedDatabaseURL(t *testing.T) {
	t.Parallel()

	cfg := Config{DatabaseURL: "postgres://pretix:secret@db:5432/pretix"}
	assert.Equal(t, "postgres://pretix:***@db:5432/pretix", cfg.MaskedDatabaseURL())

	cfg = Config{DatabaseURL: "postgres://db:5432/pretix"}
	assert.Equal(t, "postgres://db:5432/pretix", cfg.MaskedDatabaseURL())
}
