// Package config handles application configuration loading from environment
// variables. It provides a centralized Config struct used across the application.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultFallbackImageURL is served whenever image generation degrades to a
// placeholder, so callers always have something renderable.
const DefaultFallbackImageURL = "https://images.unsplash.com/photo-1579621970563-ebec7560ff3e?w=1024&h=1024&fit=crop"

// Config holds all application configuration values loaded from the environment.
type Config struct {
	// Server settings
	Host string
	Port string
	Env  string // "development", "production", "testing"

	// Public URLs used when building links in emails and sitemaps.
	SiteURL          string
	FunctionsBaseURL string

	// PostgreSQL connection
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Valkey (Redis-compatible cache)
	ValkeyHost     string
	ValkeyPort     string
	ValkeyPassword string

	// S3-compatible object storage
	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3BucketPublic  string
	S3BucketPrivate string
	S3PublicURL     string

	// Image generation
	OpenAIKey           string
	OpenAIBaseURL       string
	ImageModelPrimary   string
	ImageModelSecondary string
	ImageModelTertiary  string
	FallbackImageURL    string

	// Email delivery
	EmailProvider string // "resend", "sendgrid", "smtp"
	EmailFrom     string
	ResendKey     string
	SendGridKey   string
	SMTPHost      string
	SMTPPort      int
	SMTPUser      string
	SMTPPassword  string

	// Weekly newsletter
	NewsletterBatchSize  int
	NewsletterBatchDelay time.Duration
	NewsletterLookback   time.Duration
	NewsletterMaxPosts   int

	// Access control
	AdminTokenHash string // bcrypt hash of the admin API bearer token
	CronSecret     string // shared secret for the scheduled newsletter trigger

	// Reverse proxies (addresses or CIDRs) whose X-Forwarded-For is believed
	// by the rate limiter.
	TrustedProxies []string

	TracingEnabled bool
}

// Load reads configuration from environment variables, applying defaults
// for development where appropriate. Returns an error if critical values
// are missing or malformed.
func Load() (*Config, error) {
	cfg := &Config{
		Host: envOrDefault("APP_HOST", "0.0.0.0"),
		Port: envOrDefault("APP_PORT", "8080"),
		Env:  envOrDefault("APP_ENV", "development"),

		SiteURL:          strings.TrimRight(envOrDefault("SITE_URL", "http://localhost:8080"), "/"),
		FunctionsBaseURL: strings.TrimRight(envOrDefault("FUNCTIONS_BASE_URL", "http://localhost:8080"), "/"),

		DBHost:     envOrDefault("POSTGRES_HOST", "localhost"),
		DBPort:     envOrDefault("POSTGRES_PORT", "5432"),
		DBUser:     envOrDefault("POSTGRES_USER", "standardthought"),
		DBPassword: envOrDefault("POSTGRES_PASSWORD", "changeme"),
		DBName:     envOrDefault("POSTGRES_DB", "standardthought"),

		ValkeyHost:     envOrDefault("VALKEY_HOST", "localhost"),
		ValkeyPort:     envOrDefault("VALKEY_PORT", "6379"),
		ValkeyPassword: os.Getenv("VALKEY_PASSWORD"),

		S3Endpoint:      os.Getenv("S3_ENDPOINT"),
		S3Region:        envOrDefault("S3_REGION", "us-east-1"),
		S3AccessKey:     os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:     os.Getenv("S3_SECRET_KEY"),
		S3BucketPublic:  envOrDefault("S3_BUCKET_PUBLIC", "standardthought-images"),
		S3BucketPrivate: envOrDefault("S3_BUCKET_PRIVATE", "standardthought-guides"),
		S3PublicURL:     os.Getenv("S3_PUBLIC_URL"),

		OpenAIKey:           os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:       envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		ImageModelPrimary:   envOrDefault("IMAGE_MODEL_PRIMARY", "gpt-image-1"),
		ImageModelSecondary: envOrDefault("IMAGE_MODEL_SECONDARY", "dall-e-3"),
		ImageModelTertiary:  envOrDefault("IMAGE_MODEL_TERTIARY", "dall-e-2"),
		FallbackImageURL:    envOrDefault("FALLBACK_IMAGE_URL", DefaultFallbackImageURL),

		EmailProvider: envOrDefault("EMAIL_PROVIDER", "resend"),
		EmailFrom:     envOrDefault("EMAIL_FROM", "Standardthought <newsletter@standardthought.com>"),
		ResendKey:     os.Getenv("RESEND_API_KEY"),
		SendGridKey:   os.Getenv("SENDGRID_API_KEY"),
		SMTPHost:      os.Getenv("SMTP_HOST"),
		SMTPUser:      os.Getenv("SMTP_USERNAME"),
		SMTPPassword:  os.Getenv("SMTP_PASSWORD"),

		AdminTokenHash: os.Getenv("ADMIN_TOKEN_HASH"),
		CronSecret:     os.Getenv("CRON_SECRET"),
		TrustedProxies: splitList(os.Getenv("TRUSTED_PROXIES")),
	}

	var err error
	if cfg.SMTPPort, err = envInt("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	if cfg.NewsletterBatchSize, err = envInt("NEWSLETTER_BATCH_SIZE", 10); err != nil {
		return nil, err
	}
	if cfg.NewsletterMaxPosts, err = envInt("NEWSLETTER_MAX_POSTS", 5); err != nil {
		return nil, err
	}
	if cfg.NewsletterBatchDelay, err = envDuration("NEWSLETTER_BATCH_DELAY", time.Second); err != nil {
		return nil, err
	}
	if cfg.NewsletterLookback, err = envDuration("NEWSLETTER_LOOKBACK", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.TracingEnabled, err = envBool("TRACING_ENABLED", false); err != nil {
		return nil, err
	}

	if cfg.NewsletterBatchSize < 1 {
		return nil, fmt.Errorf("NEWSLETTER_BATCH_SIZE must be at least 1")
	}
	if cfg.NewsletterMaxPosts < 1 {
		return nil, fmt.Errorf("NEWSLETTER_MAX_POSTS must be at least 1")
	}
	if cfg.NewsletterBatchDelay <= 0 {
		return nil, fmt.Errorf("NEWSLETTER_BATCH_DELAY must be positive")
	}
	if cfg.NewsletterLookback <= 0 {
		return nil, fmt.Errorf("NEWSLETTER_LOOKBACK must be positive")
	}

	switch cfg.EmailProvider {
	case "resend", "sendgrid", "smtp":
	default:
		return nil, fmt.Errorf("EMAIL_PROVIDER must be one of resend, sendgrid, smtp (got %q)", cfg.EmailProvider)
	}

	if cfg.Env == "production" {
		if cfg.DBPassword == "changeme" {
			return nil, fmt.Errorf("POSTGRES_PASSWORD must be set in production")
		}
		if cfg.AdminTokenHash == "" {
			return nil, fmt.Errorf("ADMIN_TOKEN_HASH must be set in production")
		}
		if cfg.CronSecret == "" {
			return nil, fmt.Errorf("CRON_SECRET must be set in production")
		}
	}

	return cfg, nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

// Addr returns the server listen address (host:port).
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDev returns true if the application is running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// StorageEnabled reports whether S3 credentials were supplied.
func (c *Config) StorageEnabled() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

// envOrDefault reads an environment variable, returning a fallback if unset or empty.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// splitList splits a comma-separated value, dropping blank entries.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration (e.g. 1s, 168h): %w", key, err)
	}
	return d, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return b, nil
}
