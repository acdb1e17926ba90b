// Package config loads process configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type StorageBackend string

const (
	StorageMemory   StorageBackend = "memory"
	StoragePostgres StorageBackend = "postgres"
)

// Config is the full runtime configuration of cmd/api.
type Config struct {
	AppEnv string
	Port   string

	Storage     StorageBackend
	DatabaseURL string
	DBMaxConns  int32

	// RedisURL is optional; when set, session revocation and tally fan-out use redis.
	RedisURL string

	Session    SessionConfig
	BcryptCost int

	RequestTimeout time.Duration

	LogLevel  string
	LogFormat string

	BootstrapAdminPassword string
	BootstrapSeed          bool
}

func (c Config) IsDevelopment() bool { return c.AppEnv == "development" }

func Load() (Config, error) {
	cfg := Config{
		AppEnv:                 getenv("APP_ENV", "production"),
		Port:                   getenv("PORT", "8080"),
		Storage:                StorageBackend(strings.ToLower(getenv("STORAGE_BACKEND", string(StorageMemory)))),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisURL:               os.Getenv("REDIS_URL"),
		BcryptCost:             bcrypt.DefaultCost,
		RequestTimeout:         10 * time.Second,
		LogLevel:               getenv("LOG_LEVEL", "info"),
		LogFormat:              getenv("LOG_FORMAT", "json"),
		BootstrapAdminPassword: os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),
	}

	switch cfg.Storage {
	case StorageMemory:
	case StoragePostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required when STORAGE_BACKEND=postgres")
		}
	default:
		return Config{}, fmt.Errorf("unsupported STORAGE_BACKEND=%q (expected memory|postgres)", cfg.Storage)
	}

	if v := os.Getenv("DB_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("DB_MAX_CONNS must be a positive integer")
		}
		cfg.DBMaxConns = int32(n)
	}
	if v := os.Getenv("BCRYPT_COST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < bcrypt.MinCost || n > bcrypt.MaxCost {
			return Config{}, fmt.Errorf("BCRYPT_COST must be an integer in [%d, %d]", bcrypt.MinCost, bcrypt.MaxCost)
		}
		cfg.BcryptCost = n
	}
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("REQUEST_TIMEOUT must be a positive duration (e.g. 10s)")
		}
		cfg.RequestTimeout = d
	}
	if v := os.Getenv("BOOTSTRAP_SEED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("BOOTSTRAP_SEED must be a boolean: %w", err)
		}
		cfg.BootstrapSeed = b
	} else {
		cfg.BootstrapSeed = cfg.IsDevelopment()
	}

	session, err := LoadSessionConfigFromEnv()
	if err != nil {
		return Config{}, err
	}
	cfg.Session = session

	return cfg, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
