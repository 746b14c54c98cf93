// Package config reads service settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/petmarket/internal/orders/repository"
	"github.com/fjod/petmarket/internal/pricing"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPPort string
	GRPCPort string

	SQLitePath            string
	CatalogMigrationsPath string

	MongoURI     string
	MongoDB      string
	RedisAddr    string
	GuestCartTTL time.Duration

	Postgres repository.Credentials

	KafkaBrokers []string
	KafkaTopic   string

	JWTSecret      string
	RateLimitRPS   float64
	RateLimitBurst int

	Pricing pricing.Calculator

	LogLevel  string
	LogPretty bool

	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// Load reads envFile when it exists and then the process environment.
// Variables already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	l := &loader{}
	defaults := pricing.DefaultCalculator()

	cfg := &Config{
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		GRPCPort: getEnv("GRPC_PORT", "50060"),

		SQLitePath:            getEnv("SQLITE_PATH", "./catalog.db"),
		CatalogMigrationsPath: getEnv("CATALOG_MIGRATIONS_PATH", "./internal/catalog/repository/migrations"),

		MongoURI:     getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:      getEnv("MONGO_DB", "petmarket"),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		GuestCartTTL: l.getDuration("GUEST_CART_TTL", 24*time.Hour),

		Postgres: repository.Credentials{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              l.getInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", "postgres"),
			DBName:            getEnv("DB_NAME", "petmarket"),
			MigrationsDirPath: getEnv("ORDERS_MIGRATIONS_PATH", "./internal/orders/repository/migrations"),
		},

		KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "order-events"),

		JWTSecret:      getEnv("JWT_SECRET", ""),
		RateLimitRPS:   l.getFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: l.getInt("RATE_LIMIT_BURST", 40),

		Pricing: pricing.NewCalculator(
			l.getDecimal("TAX_RATE", defaults.TaxRate),
			l.getDecimal("SHIPPING_FEE", defaults.ShippingFee),
			l.getDecimal("FREE_SHIPPING_THRESHOLD", defaults.FreeShippingThreshold),
		),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: l.getBool("LOG_PRETTY", false),

		RequestTimeout:  l.getDuration("REQUEST_TIMEOUT", 10*time.Second),
		ShutdownTimeout: l.getDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}

	if err := errors.Join(l.errs...); err != nil {
		return nil, err
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// loader collects parse errors so every bad variable is reported at once.
type loader struct {
	errs []error
}

func (l *loader) getInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return v
}

func (l *loader) getFloat(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return v
}

func (l *loader) getBool(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return v
}

func (l *loader) getDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return v
}

func (l *loader) getDecimal(key string, def decimal.Decimal) decimal.Decimal {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
