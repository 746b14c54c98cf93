package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, 24*time.Hour, cfg.GuestCartTTL)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.True(t, decimal.RequireFromString("0.085").Equal(cfg.Pricing.TaxRate))
	assert.True(t, decimal.RequireFromString("5.99").Equal(cfg.Pricing.ShippingFee))
	assert.False(t, cfg.LogPretty)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("TAX_RATE", "0.08")
	t.Setenv("GUEST_CART_TTL", "2h")
	t.Setenv("LOG_PRETTY", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 6543, cfg.Postgres.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, decimal.RequireFromString("0.08").Equal(cfg.Pricing.TaxRate))
	assert.Equal(t, 2*time.Hour, cfg.GuestCartTTL)
	assert.True(t, cfg.LogPretty)
}

func TestLoad_ReportsEveryInvalidValue(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_PORT", "abc")
	t.Setenv("SHIPPING_FEE", "free")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_PORT")
	assert.Contains(t, err.Error(), "SHIPPING_FEE")
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load("")
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("JWT_SECRET=from-file\nHTTP_PORT=9999\n"), 0o600))
	t.Setenv("HTTP_PORT", "7000")
	// godotenv.Load sets variables process-wide
	t.Cleanup(func() { os.Unsetenv("JWT_SECRET") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.JWTSecret)
	assert.Equal(t, "7000", cfg.HTTPPort)
}

func TestLoad_MissingEnvFileIgnored(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}
