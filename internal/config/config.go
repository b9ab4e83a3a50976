package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port      string
	BaseURL   string
	AppEnv    string
	LogLevel  string
	LogFormat string

	StripeSecretKey     string
	StripeWebhookSecret string
	StripePriceID       string // default subscription price
	StripeTicketPrices  string // "price_a:1,price_b:3"; empty uses the built-in table

	DatabaseURL string
	RedisURL    string

	SupabaseURL            string
	SupabaseServiceRoleKey string
	SupabaseJWTSecret      string

	CronSecret            string
	CORSAllowedOrigin     string
	RevokePremiumOnCancel bool
}

// Load reads an optional .env file and then the process environment.
// Values already present in the environment win over the file.
func Load(envFiles ...string) Config {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// A missing file is fine; deployments inject the environment directly.
		_ = godotenv.Load(f)
	}

	port := getenv("BILLING_PORT", getenv("PORT", "4242"))
	return Config{
		Port:      port,
		BaseURL:   getenv("BILLING_BASE_URL", "http://localhost:5173"),
		AppEnv:    getenv("APP_ENV", "development"),
		LogLevel:  getenv("BILLING_LOG_LEVEL", "info"),
		LogFormat: getenv("BILLING_LOG_FORMAT", "text"),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripePriceID:       os.Getenv("STRIPE_PRICE_ID"),
		StripeTicketPrices:  os.Getenv("STRIPE_TICKET_PRICES"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		SupabaseURL:            strings.TrimRight(os.Getenv("SUPABASE_URL"), "/"),
		SupabaseServiceRoleKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseJWTSecret:      os.Getenv("SUPABASE_JWT_SECRET"),

		CronSecret:            os.Getenv("CRON_SECRET"),
		CORSAllowedOrigin:     getenv("CORS_ALLOWED_ORIGIN", "*"),
		RevokePremiumOnCancel: getbool("REVOKE_PREMIUM_ON_CANCEL", true),
	}
}

// Validate reports every missing required value at once.
func (c Config) Validate() error {
	var errs []error
	if c.StripeSecretKey == "" {
		errs = append(errs, errors.New("STRIPE_SECRET_KEY is required"))
	}
	if c.StripeWebhookSecret == "" {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required"))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if (c.SupabaseURL == "") != (c.SupabaseServiceRoleKey == "") {
		errs = append(errs, errors.New("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY must be set together"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func getbool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
