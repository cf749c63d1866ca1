// Package config loads gateway settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"nusalink.id/internal/session"
)

// Config holds everything the gateway needs at startup.
type Config struct {
	ListenAddr     string
	BackendBaseURL string
	PostgresDSN    string

	LogLevel  string
	LogFormat string

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	CookieDomain string
	CookieSecure bool
}

// Load reads NUSALINK_* environment variables, applying defaults for
// everything except the backend base URL, which is mandatory.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:     envOr("NUSALINK_LISTEN_ADDR", ":8080"),
		BackendBaseURL: strings.TrimSpace(os.Getenv("NUSALINK_BACKEND_URL")),
		PostgresDSN:    strings.TrimSpace(os.Getenv("NUSALINK_PG_DSN")),
		LogLevel:       envOr("NUSALINK_LOG_LEVEL", "info"),
		LogFormat:      envOr("NUSALINK_LOG_FORMAT", "json"),
		AccessTTL:      session.DefaultAccessTTL,
		RefreshTTL:     session.DefaultRefreshTTL,
		CookieDomain:   strings.TrimSpace(os.Getenv("NUSALINK_COOKIE_DOMAIN")),
		CookieSecure:   true,
	}

	if cfg.BackendBaseURL == "" {
		return Config{}, fmt.Errorf("config: NUSALINK_BACKEND_URL is required")
	}

	var err error
	if cfg.AccessTTL, err = envDuration("NUSALINK_ACCESS_TTL", cfg.AccessTTL); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTTL, err = envDuration("NUSALINK_REFRESH_TTL", cfg.RefreshTTL); err != nil {
		return Config{}, err
	}
	if raw := strings.TrimSpace(os.Getenv("NUSALINK_COOKIE_SECURE")); raw != "" {
		secure, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("config: NUSALINK_COOKIE_SECURE: %w", err)
		}
		cfg.CookieSecure = secure
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s must be positive", key)
	}
	return d, nil
}
