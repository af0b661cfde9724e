package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPAddr    string
	ServiceName string
	Env         string
	LogFile     string
	LogLevel    string

	// Empty PostgresDSN selects the in-memory repositories.
	PostgresDSN string
	// Empty RedisAddr selects the in-memory idempotency store.
	RedisAddr string
	// Empty KafkaBrokers disables the event relay.
	KafkaBrokers []string
	KafkaTopic   string

	// Empty PaymentProviderURL selects the simulated provider.
	PaymentProviderURL string
	PaymentAPIKey      string
	PaymentSuccessRate float64
	PaymentMaxRetries  uint64
	PaymentTimeout     time.Duration

	Currency       string
	TaxRate        decimal.Decimal
	ReservationTTL time.Duration
	SweepInterval  time.Duration
	LockStripes    int

	AuthTokens   string
	SeedProducts string
}

// Load reads the environment, after merging a .env file from the working
// directory when one exists. Variables already set win over the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from lookup, collecting every malformed value.
func FromEnv(lookup func(string) string) (Config, error) {
	p := parser{lookup: lookup}
	cfg := Config{
		HTTPAddr:    p.str("HTTP_ADDR", ":8080"),
		ServiceName: p.str("SERVICE_NAME", "minishop-checkout"),
		Env:         p.str("ENV", "dev"),
		LogFile:     p.str("LOG_FILE", ""),
		LogLevel:    p.str("LOG_LEVEL", "info"),

		PostgresDSN:  p.str("POSTGRES_DSN", ""),
		RedisAddr:    p.str("REDIS_ADDR", ""),
		KafkaBrokers: splitCSV(p.str("KAFKA_BROKERS", "")),
		KafkaTopic:   p.str("KAFKA_TOPIC", "minishop.events"),

		PaymentProviderURL: p.str("PAYMENT_PROVIDER_URL", ""),
		PaymentAPIKey:      p.str("PAYMENT_API_KEY", ""),
		PaymentSuccessRate: p.floatVal("PAYMENT_SUCCESS_RATE", 0.7),
		PaymentMaxRetries:  p.uintVal("PAYMENT_MAX_RETRIES", 3),
		PaymentTimeout:     p.durationVal("PAYMENT_TIMEOUT", 5*time.Second),

		Currency:       strings.ToLower(p.str("CURRENCY", "usd")),
		TaxRate:        p.decimalVal("TAX_RATE", "0.18"),
		ReservationTTL: p.durationVal("RESERVATION_TTL", 10*time.Minute),
		SweepInterval:  p.durationVal("SWEEP_INTERVAL", 30*time.Second),
		LockStripes:    p.intVal("LOCK_STRIPES", 64),

		AuthTokens:   p.str("AUTH_TOKENS", ""),
		SeedProducts: p.str("SEED_PRODUCTS", ""),
	}

	if cfg.PaymentSuccessRate < 0 || cfg.PaymentSuccessRate > 1 {
		p.fail("PAYMENT_SUCCESS_RATE", "must be within [0, 1]")
	}
	if cfg.TaxRate.IsNegative() {
		p.fail("TAX_RATE", "must not be negative")
	}
	if cfg.LockStripes <= 0 {
		p.fail("LOCK_STRIPES", "must be positive")
	}
	return cfg, errors.Join(p.errs...)
}

type parser struct {
	lookup func(string) string
	errs   []error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.lookup(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) fail(key, msg string) {
	p.errs = append(p.errs, fmt.Errorf("config: %s %s", key, msg))
}

func (p *parser) parse(key string, fn func(string) error) {
	v := strings.TrimSpace(p.lookup(key))
	if v == "" {
		return
	}
	if err := fn(v); err != nil {
		p.errs = append(p.errs, fmt.Errorf("config: %s=%q: %w", key, v, err))
	}
}

func (p *parser) intVal(key string, def int) int {
	out := def
	p.parse(key, func(v string) (err error) { out, err = strconv.Atoi(v); return })
	return out
}

func (p *parser) uintVal(key string, def uint64) uint64 {
	out := def
	p.parse(key, func(v string) (err error) { out, err = strconv.ParseUint(v, 10, 64); return })
	return out
}

func (p *parser) floatVal(key string, def float64) float64 {
	out := def
	p.parse(key, func(v string) (err error) { out, err = strconv.ParseFloat(v, 64); return })
	return out
}

func (p *parser) durationVal(key string, def time.Duration) time.Duration {
	out := def
	p.parse(key, func(v string) (err error) { out, err = time.ParseDuration(v); return })
	return out
}

func (p *parser) decimalVal(key, def string) decimal.Decimal {
	out := decimal.RequireFromString(def)
	p.parse(key, func(v string) (err error) { out, err = decimal.NewFromString(v); return })
	return out
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}
