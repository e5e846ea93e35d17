// Package config loads and validates service configuration from the environment and an
// optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // containers often ship without a zoneinfo database

	"github.com/spf13/viper"
)

const (
	AuthModeJWT = "jwt"
	AuthModeDev = "dev"

	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	Port string `mapstructure:"PORT"`

	// AuthMode is jwt (bearer tokens verified against JWKS) or dev (X-Debug-Subject header).
	AuthMode   string `mapstructure:"AUTH_MODE"`
	DevSubject string `mapstructure:"DEV_SUBJECT"`

	JWTIssuer                 string        `mapstructure:"JWT_ISSUER"`
	JWTAudience               string        `mapstructure:"JWT_AUDIENCE"`
	JWTJWKSURL                string        `mapstructure:"JWT_JWKS_URL"`
	JWTClockSkew              time.Duration `mapstructure:"JWT_CLOCK_SKEW"`
	JWTJWKSRefreshInterval    time.Duration `mapstructure:"JWT_JWKS_REFRESH_INTERVAL"`
	JWTJWKSMinRefreshInterval time.Duration `mapstructure:"JWT_JWKS_MIN_REFRESH_INTERVAL"`
	JWTHTTPTimeout            time.Duration `mapstructure:"JWT_HTTP_TIMEOUT"`

	StorageBackend     string        `mapstructure:"STORAGE_BACKEND"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	IdempotencyBackend string        `mapstructure:"IDEMPOTENCY_BACKEND"`
	IdempotencyTTL     time.Duration `mapstructure:"IDEMPOTENCY_TTL"`
	RedisURL           string        `mapstructure:"REDIS_URL"`

	// KafkaBrokers is a comma-separated broker list; empty keeps events in memory.
	KafkaBrokers           string `mapstructure:"KAFKA_BROKERS"`
	KafkaRenewalTopic      string `mapstructure:"KAFKA_RENEWAL_TOPIC"`
	KafkaConfirmationTopic string `mapstructure:"KAFKA_CONFIRMATION_TOPIC"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// AdminToken guards the /admin routes; empty disables them.
	AdminToken string `mapstructure:"ADMIN_TOKEN"`

	RenewalLeadDays       int           `mapstructure:"RENEWAL_LEAD_DAYS"`
	RenewalForbidEarly    bool          `mapstructure:"RENEWAL_FORBID_EARLY"`
	MedicalScrubThreshold time.Duration `mapstructure:"MEDICAL_SCRUB_THRESHOLD"`
	MITEmailDomain        string        `mapstructure:"MIT_EMAIL_DOMAIN"`

	// MembershipTimezone decides which calendar day "today" is for expiry dates.
	MembershipTimezone   string        `mapstructure:"MEMBERSHIP_TIMEZONE"`
	EmailConfirmationTTL time.Duration `mapstructure:"EMAIL_CONFIRMATION_TTL"`

	PaymentMerchantID string `mapstructure:"PAYMENT_MERCHANT_ID"`
	PaymentType       string `mapstructure:"PAYMENT_TYPE"`
	PaymentGatewayURL string `mapstructure:"PAYMENT_GATEWAY_URL"`
}

// Load reads .env (if present), then builds and validates Config from the environment.
// Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // a missing .env is fine

	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("AUTH_MODE", AuthModeJWT)
	v.SetDefault("DEV_SUBJECT", "")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")
	v.SetDefault("JWT_JWKS_URL", "")
	v.SetDefault("JWT_CLOCK_SKEW", 30*time.Second)
	// Refresh periodically to pick up key rotation even if an old key is still cached.
	v.SetDefault("JWT_JWKS_REFRESH_INTERVAL", 5*time.Minute)
	// Bound refresh frequency when a token presents an unknown kid.
	v.SetDefault("JWT_JWKS_MIN_REFRESH_INTERVAL", 10*time.Second)
	v.SetDefault("JWT_HTTP_TIMEOUT", 5*time.Second)
	v.SetDefault("STORAGE_BACKEND", BackendMemory)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("IDEMPOTENCY_BACKEND", "")
	v.SetDefault("IDEMPOTENCY_TTL", 24*time.Hour)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_RENEWAL_TOPIC", "membership.renewals")
	v.SetDefault("KAFKA_CONFIRMATION_TOPIC", "membership.email-confirmations")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("ADMIN_TOKEN", "")
	v.SetDefault("RENEWAL_LEAD_DAYS", 40)
	v.SetDefault("RENEWAL_FORBID_EARLY", false)
	v.SetDefault("MEDICAL_SCRUB_THRESHOLD", 365*24*time.Hour)
	v.SetDefault("MIT_EMAIL_DOMAIN", "mit.edu")
	v.SetDefault("MEMBERSHIP_TIMEZONE", "America/New_York")
	v.SetDefault("EMAIL_CONFIRMATION_TTL", 48*time.Hour)
	v.SetDefault("PAYMENT_MERCHANT_ID", "mit_sao_mitoc")
	v.SetDefault("PAYMENT_TYPE", "membership")
	v.SetDefault("PAYMENT_GATEWAY_URL", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.AuthMode = strings.ToLower(strings.TrimSpace(cfg.AuthMode))
	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	cfg.IdempotencyBackend = strings.ToLower(strings.TrimSpace(cfg.IdempotencyBackend))
	if cfg.IdempotencyBackend == "" {
		cfg.IdempotencyBackend = cfg.StorageBackend
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port == "" {
		return errors.New("config: PORT must be set")
	}
	switch c.AuthMode {
	case AuthModeJWT:
		if c.JWTIssuer == "" || c.JWTAudience == "" || c.JWTJWKSURL == "" {
			return errors.New("config: JWT_ISSUER, JWT_AUDIENCE and JWT_JWKS_URL are required when AUTH_MODE=jwt")
		}
	case AuthModeDev:
	default:
		return fmt.Errorf("config: AUTH_MODE must be jwt or dev, got %q", c.AuthMode)
	}

	switch c.StorageBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required when STORAGE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("config: STORAGE_BACKEND must be memory or postgres, got %q", c.StorageBackend)
	}

	switch c.IdempotencyBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required when IDEMPOTENCY_BACKEND=postgres")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("config: REDIS_URL is required when IDEMPOTENCY_BACKEND=redis")
		}
	default:
		return fmt.Errorf("config: IDEMPOTENCY_BACKEND must be memory, postgres or redis, got %q", c.IdempotencyBackend)
	}

	if c.RenewalLeadDays <= 0 || c.RenewalLeadDays >= 365 {
		return errors.New("config: RENEWAL_LEAD_DAYS must be between 1 and 364")
	}
	if c.MedicalScrubThreshold <= 0 {
		return errors.New("config: MEDICAL_SCRUB_THRESHOLD must be positive")
	}
	if strings.TrimSpace(c.MITEmailDomain) == "" {
		return errors.New("config: MIT_EMAIL_DOMAIN must be set")
	}
	if _, err := time.LoadLocation(c.MembershipTimezone); err != nil {
		return fmt.Errorf("config: MEMBERSHIP_TIMEZONE: %w", err)
	}
	if c.EmailConfirmationTTL <= 0 {
		return errors.New("config: EMAIL_CONFIRMATION_TTL must be positive")
	}
	return nil
}

// Location resolves MembershipTimezone. Validate has already rejected unknown zones.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.MembershipTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// JWT derives the verifier configuration.
func (c *Config) JWT() JWTConfig {
	return JWTConfig{
		Issuer:                 c.JWTIssuer,
		Audience:               c.JWTAudience,
		JWKSURL:                c.JWTJWKSURL,
		ClockSkew:              c.JWTClockSkew,
		JWKSRefreshInterval:    c.JWTJWKSRefreshInterval,
		JWKSMinRefreshInterval: c.JWTJWKSMinRefreshInterval,
		HTTPTimeout:            c.JWTHTTPTimeout,
	}
}

// KafkaBrokerList returns the broker addresses from the comma-separated setting.
func (c *Config) KafkaBrokerList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
