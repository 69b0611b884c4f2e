// Package config provides environment-based configuration for the locum
// API and worker processes.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Mail drivers.
const (
	MailDriverLog    = "log"
	MailDriverResend = "resend"
	MailDriverSMTP   = "smtp"
)

// Config holds all configuration for the engine and its surfaces.
type Config struct {
	// Database configuration
	DatabaseDSN string
	StoreDriver string

	// Authentication
	JWTSecret string
	JWTExpiry time.Duration

	// Server configuration
	APIPort int
	APIHost string

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration

	// RedisURL enables the shared idempotency cache and the rate limiter.
	// Empty means in-process idempotency and no rate limiting.
	RedisURL string

	// InvitationTTL is the lifetime of a staff invitation token.
	InvitationTTL time.Duration
	// AppBaseURL prefixes links in notification emails.
	AppBaseURL string

	// RespondRateLimit is the number of invitation responses allowed per
	// client per minute.
	RespondRateLimit int

	Mail        MailConfig
	Delivery    DeliveryConfig
	Credentials CredentialsConfig
}

// MailConfig holds the email channel configuration.
type MailConfig struct {
	Driver       string
	From         string
	ResendAPIKey string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
}

// DeliveryConfig holds the background worker configuration.
type DeliveryConfig struct {
	Concurrency  int
	PollInterval time.Duration
	// SweepSpec is the cron spec of the invitation expiry sweep.
	SweepSpec string
}

// CredentialsConfig holds the age keys sealing verification credentials.
type CredentialsConfig struct {
	// AgePublicKey seals credentials on submission. Format: age1...
	AgePublicKey string
	// AgePrivateKey opens them for admin review. Format: AGE-SECRET-KEY-1...
	AgePrivateKey string
}

// LoadDotEnv merges variables from the given .env files, or ./.env when
// none are named, into the process environment. Variables already set win.
// A missing file is not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := load("")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, c.StoreDriver)
	}
	switch c.Mail.Driver {
	case MailDriverLog:
	case MailDriverResend:
		if c.Mail.ResendAPIKey == "" {
			return fmt.Errorf("RESEND_API_KEY is required for the resend mail driver")
		}
	case MailDriverSMTP:
		if c.Mail.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required for the smtp mail driver")
		}
	default:
		return fmt.Errorf("unknown MAIL_DRIVER %q", c.Mail.Driver)
	}
	if c.Mail.Driver != MailDriverLog && c.Mail.From == "" {
		return fmt.Errorf("MAIL_FROM is required")
	}
	if c.InvitationTTL <= 0 {
		return fmt.Errorf("INVITATION_TTL must be positive")
	}
	if c.Delivery.Concurrency < 1 {
		return fmt.Errorf("DELIVERY_CONCURRENCY must be at least 1")
	}
	return nil
}

// LoadWithDefaults loads configuration with defaults for development.
// It does not validate required fields, useful for testing.
func LoadWithDefaults() *Config {
	return load("development-secret-key-min-32-chars")
}

func load(defaultSecret string) *Config {
	return &Config{
		DatabaseDSN:      getEnv("DATABASE_URL", "postgres://localhost:5432/locum?sslmode=disable"),
		StoreDriver:      strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		JWTSecret:        getEnv("JWT_SECRET", defaultSecret),
		JWTExpiry:        getDurationEnv("JWT_EXPIRY", 24*time.Hour),
		APIPort:          getIntEnv("API_PORT", 8080),
		APIHost:          getEnv("API_HOST", "0.0.0.0"),
		ShutdownTimeout:  getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
		RedisURL:         getEnv("REDIS_URL", ""),
		InvitationTTL:    getDurationEnv("INVITATION_TTL", 7*24*time.Hour),
		AppBaseURL:       getEnv("APP_BASE_URL", "http://localhost:3000"),
		RespondRateLimit: getIntEnv("RESPOND_RATE_LIMIT", 10),
		Mail: MailConfig{
			Driver:       strings.ToLower(getEnv("MAIL_DRIVER", MailDriverLog)),
			From:         getEnv("MAIL_FROM", ""),
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getIntEnv("SMTP_PORT", 587),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		},
		Delivery: DeliveryConfig{
			Concurrency:  getIntEnv("DELIVERY_CONCURRENCY", 4),
			PollInterval: getDurationEnv("DELIVERY_POLL_INTERVAL", 2*time.Second),
			SweepSpec:    getEnv("INVITATION_SWEEP_SPEC", "@every 5m"),
		},
		Credentials: CredentialsConfig{
			AgePublicKey:  getEnv("CREDENTIALS_AGE_PUBLIC_KEY", ""),
			AgePrivateKey: getEnv("CREDENTIALS_AGE_PRIVATE_KEY", ""),
		},
	}
}

// Addr returns the API listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.APIHost, c.APIPort)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
