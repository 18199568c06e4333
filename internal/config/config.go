package config

import (
	"os"
	"strings"
)

const (
	defaultDBPath    = "./bakecost.db"
	defaultPort      = "8080"
	defaultEnv       = "development"
	defaultLogLevel  = "info"
	defaultTotalMode = "live"
)

// Config holds application configuration sourced from environment variables.
type Config struct {
	AdminEmail       string
	AdminPassword    string
	SessionSecret    string
	DBPath           string
	Port             string
	Env              string
	LogLevel         string
	LogFormat        string
	DefaultTotalMode string
}

// Load reads environment variables and returns a populated Config together
// with warnings about settings that are missing but not fatal.
func Load() (Config, []string) {
	// Best-effort: a missing .env is normal outside local development.
	_ = loadDotEnv(".env")

	cfg := Config{
		AdminEmail:       os.Getenv("ADMIN_EMAIL"),
		AdminPassword:    os.Getenv("ADMIN_PASSWORD"),
		SessionSecret:    os.Getenv("SESSION_SECRET"),
		DBPath:           getEnv("DB_PATH", defaultDBPath),
		Port:             getEnv("PORT", defaultPort),
		Env:              strings.ToLower(getEnv("APP_ENV", defaultEnv)),
		LogLevel:         getEnv("LOG_LEVEL", defaultLogLevel),
		DefaultTotalMode: getEnv("DEFAULT_TOTAL_MODE", defaultTotalMode),
	}

	cfg.LogFormat = os.Getenv("LOG_FORMAT")
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
		if cfg.IsDev() {
			cfg.LogFormat = "console"
		}
	}

	var warnings []string
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		warnings = append(warnings, "ADMIN_EMAIL or ADMIN_PASSWORD is not set; authentication is disabled")
	}
	if cfg.SessionSecret == "" {
		warnings = append(warnings, "SESSION_SECRET is not set")
	}

	return cfg, warnings
}

// IsDev reports whether the app runs in a development environment.
func (c Config) IsDev() bool {
	return c.Env == "development" || c.Env == "dev" || c.Env == "local"
}

// AuthEnabled reports whether an admin account is configured.
func (c Config) AuthEnabled() bool {
	return c.AdminEmail != "" && c.AdminPassword != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
