package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const minSessionSecretLen = 32

type Config struct {
	AppEnv        string `env:"APP_ENV" default:"development"`
	Port          string `env:"PORT" default:"8080"`
	SessionSecret string `env:"SESSION_SECRET"`
	RedisURL      string `env:"REDIS_URL"`
	LogLevel      string `env:"LOG_LEVEL" default:"info"`
	LogFormat     string `env:"LOG_FORMAT" default:"text"`

	GeneratorBaseURL string        `env:"GENERATOR_BASE_URL"`
	MintBaseURL      string        `env:"MINT_BASE_URL"`
	BackendTimeout   time.Duration `env:"BACKEND_TIMEOUT" default:"120s"`

	InitialQuota   int   `env:"INITIAL_QUOTA" default:"2"`
	ReplenishQuota int   `env:"REPLENISH_QUOTA" default:"5"`
	MaxUploadBytes int64 `env:"MAX_UPLOAD_BYTES" default:"10485760"` // 10 MiB

	RateLimitPerSecond float64 `env:"RATE_LIMIT_PER_SECOND" default:"2"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST" default:"5"`

	SessionMaxAge      time.Duration `env:"SESSION_MAX_AGE" default:"24h"`
	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" default:"2h"`
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := []struct{ name, value string }{
		{"SESSION_SECRET", cfg.SessionSecret},
		{"GENERATOR_BASE_URL", cfg.GeneratorBaseURL},
		{"MINT_BASE_URL", cfg.MintBaseURL},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	if len(cfg.SessionSecret) < minSessionSecretLen {
		return fmt.Errorf("SESSION_SECRET must be at least %d characters", minSessionSecretLen)
	}

	for name, raw := range map[string]string{
		"GENERATOR_BASE_URL": cfg.GeneratorBaseURL,
		"MINT_BASE_URL":      cfg.MintBaseURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s must be an absolute http(s) URL", name)
		}
	}

	if cfg.InitialQuota <= 0 {
		return errors.New("INITIAL_QUOTA must be positive")
	}
	if cfg.ReplenishQuota <= 0 {
		return errors.New("REPLENISH_QUOTA must be positive")
	}
	if cfg.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be positive")
	}
	if cfg.BackendTimeout <= 0 {
		return errors.New("BACKEND_TIMEOUT must be positive")
	}
	if cfg.RateLimitPerSecond <= 0 || cfg.RateLimitBurst <= 0 {
		return errors.New("RATE_LIMIT_PER_SECOND and RATE_LIMIT_BURST must be positive")
	}
	if cfg.SessionIdleTimeout <= 0 || cfg.SessionMaxAge <= 0 {
		return errors.New("SESSION_MAX_AGE and SESSION_IDLE_TIMEOUT must be positive")
	}

	return nil
}
