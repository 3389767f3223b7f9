package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port    string
	GinMode string

	DBDriver         string
	DatabaseURL      string
	DBConnectTimeout time.Duration
	DBQueryTimeout   time.Duration

	StripeSecretKey     string
	StripeWebhookSecret string
	PaymentTimeout      time.Duration
	Currency            string
	TaxRate             decimal.Decimal

	JWTSecret  string
	SessionTTL time.Duration

	AMQPURL       string
	UploadDir     string
	PublicBaseURL string
	CORSOrigin    string

	LogLevel  string
	LogFormat string
}

// Load reads .env when present and then the process environment. It only
// reports malformed values; required settings are checked by Validate.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

func FromEnv() (*Config, error) {
	var errs []error

	cfg := &Config{
		Port:                getenv("PORT", "8080"),
		GinMode:             getenv("GIN_MODE", "debug"),
		DBDriver:            strings.ToLower(getenv("DB_DRIVER", "postgres")),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		Currency:            strings.ToLower(getenv("CURRENCY", "usd")),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		AMQPURL:             os.Getenv("AMQP_URL"),
		UploadDir:           getenv("UPLOAD_DIR", "public/uploads/menu_images"),
		PublicBaseURL:       strings.TrimRight(getenv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		CORSOrigin:          getenv("CORS_ORIGIN", "*"),
		LogLevel:            getenv("LOG_LEVEL", "info"),
		LogFormat:           getenv("LOG_FORMAT", "text"),
	}

	cfg.DBConnectTimeout = durationEnv("DB_CONNECT_TIMEOUT", 5*time.Second, &errs)
	cfg.DBQueryTimeout = durationEnv("DB_QUERY_TIMEOUT", 10*time.Second, &errs)
	cfg.PaymentTimeout = durationEnv("PAYMENT_TIMEOUT", 15*time.Second, &errs)
	cfg.SessionTTL = durationEnv("SESSION_TTL", 24*time.Hour, &errs)

	rate, err := decimal.NewFromString(getenv("TAX_RATE", "0.08"))
	if err != nil || rate.IsNegative() {
		errs = append(errs, fmt.Errorf("TAX_RATE must be a non-negative decimal"))
	}
	cfg.TaxRate = rate

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks everything the HTTP server needs before it starts listening.
func (c *Config) Validate() error {
	errs := []error{c.ValidateDatabase()}
	required := []struct{ name, value string }{
		{"STRIPE_SECRET_KEY", c.StripeSecretKey},
		{"STRIPE_WEBHOOK_SECRET", c.StripeWebhookSecret},
		{"JWT_SECRET", c.JWTSecret},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("%s is not set", r.name))
		}
	}
	return errors.Join(errs...)
}

// ValidateDatabase checks the subset needed by the migrate and seed commands.
func (c *Config) ValidateDatabase() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is not set"))
	}
	switch c.DBDriver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER %q is not supported", c.DBDriver))
	}
	return errors.Join(errs...)
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration, errs *[]error) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		*errs = append(*errs, fmt.Errorf("%s must be a positive duration, got %q", key, raw))
		return fallback
	}
	return d
}
