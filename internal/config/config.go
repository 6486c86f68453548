package config

import (
	"os"
	"strings"
	"time"
)

type Config struct {
	// Database (Users table is shared with the pbcoach app)
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Entra External ID (primary identity provider)
	EntraTenantSubdomain string
	EntraClientID        string

	// Google Sign-In (supports web, iOS and Android client IDs)
	GoogleClientIDs []string

	// Apple Sign-In
	AppleClientID string

	// Microsoft personal accounts
	MicrosoftClientID string

	// Admin
	AdminGroupID string
	AdminEmails  []string

	// Stripe
	StripeSecretKey     string
	StripeWebhookSecret string
	StripePriceID       string
	StripePriceLookup   bool

	// Server
	Port        string
	CORSOrigins []string
	Domain      string
	SentryDSN   string
	Environment string

	VerifyTimeout time.Duration
}

func Load() *Config {
	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "pbcoach"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		EntraTenantSubdomain: getEnv("ENTRA_TENANT_SUBDOMAIN", "pickleballcoach"),
		EntraClientID:        getEnv("ENTRA_CLIENT_ID", ""),
		GoogleClientIDs:      parseCSV(getEnv("GOOGLE_CLIENT_IDS", getEnv("GOOGLE_CLIENT_ID", ""))),
		AppleClientID:        getEnv("APPLE_CLIENT_ID", ""),
		MicrosoftClientID:    getEnv("MICROSOFT_CLIENT_ID", ""),

		AdminGroupID: getEnv("ADMIN_GROUP_ID", ""),
		AdminEmails:  parseCSV(getEnv("ADMIN_EMAILS", "")),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripePriceID:       getEnv("STRIPE_PRICE_ID", ""),
		StripePriceLookup:   getEnv("STRIPE_PRICE_LOOKUP", "true") == "true",

		Port:        getEnv("PORT", "8080"),
		CORSOrigins: parseCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:5173,https://schedulecoaches.com,https://www.schedulecoaches.com")),
		Domain:      getEnv("DOMAIN", "http://localhost:5173"),
		SentryDSN:   getEnv("SENTRY_DSN", ""),
		Environment: getEnv("APP_ENV", "development"),

		VerifyTimeout: parseDuration(getEnv("VERIFY_TIMEOUT", "10s")),
	}
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

// EntraIssuer returns the External ID issuer for the configured tenant.
func (c *Config) EntraIssuer() string {
	return "https://" + c.EntraTenantSubdomain + ".ciamlogin.com/" + c.EntraTenantSubdomain + ".onmicrosoft.com/v2.0"
}

// EntraJWKSURL returns the External ID discovery keys endpoint.
func (c *Config) EntraJWKSURL() string {
	return "https://" + c.EntraTenantSubdomain + ".ciamlogin.com/" + c.EntraTenantSubdomain + ".onmicrosoft.com/discovery/v2.0/keys"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 10 * time.Second
	}
	return d
}
