package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

type Config struct {
	Env      string `env:"ENV"       envDefault:"local" validate:"required,oneof=local staging production"`
	Port     string `env:"PORT"      envDefault:"8080"  validate:"required"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"  validate:"oneof=debug info warn error"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`
	RedisURL    string `env:"REDIS_URL"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	JWTAccessSecret  string        `env:"JWT_ACCESS_SECRET,required"  validate:"required,min=32"`
	JWTRefreshSecret string        `env:"JWT_REFRESH_SECRET,required" validate:"required,min=32,nefield=JWTAccessSecret"`
	JWTAccessTTL     time.Duration `env:"JWT_ACCESS_TTL"  envDefault:"24h"  validate:"min=1m"`
	JWTRefreshTTL    time.Duration `env:"JWT_REFRESH_TTL" envDefault:"168h" validate:"gtfield=JWTAccessTTL"`

	OTPCodeTTL       time.Duration `env:"OTP_CODE_TTL"       envDefault:"5m"        validate:"min=30s,max=1h"`
	OTPMaxAttempts   int           `env:"OTP_MAX_ATTEMPTS"   envDefault:"5"         validate:"min=0,max=100"`
	OTPSweepSchedule string        `env:"OTP_SWEEP_SCHEDULE" envDefault:"@every 1m" validate:"required"`
	// OTPDevMode echoes codes in /send-code responses and treats SMS failures
	// as delivered. Refused in production.
	OTPDevMode bool `env:"OTP_DEV_MODE" envDefault:"false"`

	TwilioAccountSID string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `env:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber string `env:"TWILIO_FROM_NUMBER"`

	SendCodeRatePerMin int `env:"SEND_CODE_RATE_PER_MIN" envDefault:"10" validate:"min=0"`
	// TrustedProxies lists the proxy IPs or CIDRs whose X-Forwarded-For is
	// believed. Empty means client IPs come from the TCP peer only.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:"," validate:"dive,ip|cidr"`

	ResendAPIKey string `env:"RESEND_API_KEY"`
	ResendFrom   string `env:"RESEND_FROM" validate:"required_with=ResendAPIKey"`

	BcryptCost int `env:"BCRYPT_COST" envDefault:"10" validate:"min=4,max=31"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.OTPDevMode && c.Env == "production" {
		return errors.New("invalid config: OTP_DEV_MODE must not be enabled in production")
	}
	if _, err := cron.ParseStandard(c.OTPSweepSchedule); err != nil {
		return fmt.Errorf("invalid config: OTP_SWEEP_SCHEDULE: %w", err)
	}
	return nil
}

// TwilioConfigured reports whether every SMS gateway credential is present.
func (c *Config) TwilioConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFromNumber != ""
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
