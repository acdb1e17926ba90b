package config

import (
	"fmt"
	"os"
	"time"
)

// SessionConfig configures signing and verification of session tokens.
type SessionConfig struct {
	Secret []byte
	Issuer string
	TTL    time.Duration

	ClockSkew time.Duration
}

const developmentSessionSecret = "dev-only-session-secret-change-me"

// LoadSessionConfigFromEnv reads SESSION_* variables. SESSION_SECRET is required unless
// APP_ENV=development, where a fixed development secret is used.
func LoadSessionConfigFromEnv() (SessionConfig, error) {
	secret := os.Getenv("SESSION_SECRET")
	if secret == "" {
		if os.Getenv("APP_ENV") != "development" {
			return SessionConfig{}, fmt.Errorf("missing required env var: SESSION_SECRET")
		}
		secret = developmentSessionSecret
	}
	if len(secret) < 16 && os.Getenv("APP_ENV") != "development" {
		return SessionConfig{}, fmt.Errorf("SESSION_SECRET must be at least 16 bytes")
	}

	cfg := SessionConfig{
		Secret:    []byte(secret),
		Issuer:    getenv("SESSION_ISSUER", "association-api"),
		TTL:       12 * time.Hour,
		ClockSkew: 30 * time.Second,
	}

	if v := os.Getenv("SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return SessionConfig{}, fmt.Errorf("SESSION_TTL must be a duration (e.g. 12h): %w", err)
		}
		if d <= 0 {
			return SessionConfig{}, fmt.Errorf("SESSION_TTL must be positive")
		}
		cfg.TTL = d
	}
	if v := os.Getenv("SESSION_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return SessionConfig{}, fmt.Errorf("SESSION_CLOCK_SKEW must be a duration (e.g. 30s): %w", err)
		}
		cfg.ClockSkew = d
	}

	return cfg, nil
}
