package config

import (
	"fmt"
	"log"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	AuthSigningKey string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthTokenTTL   time.Duration `mapstructure:"AUTH_TOKEN_TTL"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	CacheMaxAge    int           `mapstructure:"CACHE_MAX_AGE"`

	// Scheduled jobs
	Timezone           string `mapstructure:"TIMEZONE"`
	JobsEnabled        bool   `mapstructure:"JOBS_ENABLED"`
	BillingWorkers     int    `mapstructure:"BILLING_WORKERS"`
	BillingDueDay      int    `mapstructure:"BILLING_DUE_DAY"`
	FinalizeByPausedAt bool   `mapstructure:"FINALIZE_BY_PAUSED_AT"`

	// Outbound mail
	MailProvider      string `mapstructure:"MAIL_PROVIDER"`
	SendGridAPIKey    string `mapstructure:"SENDGRID_API_KEY"`
	MailFromAddress   string `mapstructure:"MAIL_FROM_ADDRESS"`
	MailFromName      string `mapstructure:"MAIL_FROM_NAME"`
	NotifyMaxAttempts int    `mapstructure:"NOTIFY_MAX_ATTEMPTS"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL",
	"AUTH_ISSUER", "AUTH_SIGNING_KEY", "AUTH_TOKEN_TTL", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "CACHE_MAX_AGE",
	"TIMEZONE", "JOBS_ENABLED", "BILLING_WORKERS", "BILLING_DUE_DAY", "FINALIZE_BY_PAUSED_AT",
	"MAIL_PROVIDER", "SENDGRID_API_KEY", "MAIL_FROM_ADDRESS", "MAIL_FROM_NAME", "NOTIFY_MAX_ATTEMPTS",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("AUTH_ISSUER", "eldercare")
	v.SetDefault("AUTH_TOKEN_TTL", "24h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("CACHE_MAX_AGE", 300)
	v.SetDefault("TIMEZONE", "Asia/Ho_Chi_Minh")
	v.SetDefault("JOBS_ENABLED", true)
	v.SetDefault("BILLING_WORKERS", 1)
	v.SetDefault("BILLING_DUE_DAY", 5)
	v.SetDefault("FINALIZE_BY_PAUSED_AT", false)
	v.SetDefault("MAIL_PROVIDER", "log")
	v.SetDefault("MAIL_FROM_ADDRESS", "no-reply@eldercare.local")
	v.SetDefault("MAIL_FROM_NAME", "Eldercare")
	v.SetDefault("NOTIFY_MAX_ATTEMPTS", 3)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		log.Println("WARNING: AUTH_SIGNING_KEY is empty; a development key is used. Do NOT run production like this.")
		cfg.AuthSigningKey = "development-signing-key-change-me"
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location resolves TIMEZONE. Every scheduled trigger and every "this month"
// computation uses it.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required outside development")
	}
	if c.IsProduction() && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 characters in production, got %d", len(c.AuthSigningKey))
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.BillingWorkers < 1 {
		return fmt.Errorf("BILLING_WORKERS must be >= 1, got %d", c.BillingWorkers)
	}
	if c.BillingDueDay < 1 || c.BillingDueDay > 28 {
		return fmt.Errorf("BILLING_DUE_DAY must be between 1 and 28, got %d", c.BillingDueDay)
	}
	switch c.MailProvider {
	case "log":
	case "sendgrid":
		if c.SendGridAPIKey == "" {
			return fmt.Errorf("SENDGRID_API_KEY is required when MAIL_PROVIDER is \"sendgrid\"")
		}
	default:
		return fmt.Errorf("MAIL_PROVIDER must be \"log\" or \"sendgrid\", got %q", c.MailProvider)
	}
	if c.NotifyMaxAttempts < 1 {
		return fmt.Errorf("NOTIFY_MAX_ATTEMPTS must be >= 1, got %d", c.NotifyMaxAttempts)
	}
	return nil
}
