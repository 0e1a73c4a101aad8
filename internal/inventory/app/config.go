package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	SessionSecret string // Required: HMAC secret for session tokens
	SessionIssuer string // Optional: issuer claim on session tokens (default: stocktake)

	SSOAssertionSecret string // Optional: shared HMAC key the identity provider signs assertions with
	SSOTrustedIssuer   string // Optional: the only issuer accepted on SSO assertions

	AdminUsername string // Optional: bootstrap admin username (default: admin)
	AdminPassword string // Optional: bootstrap admin password (generated and logged once when unset)

	DatabaseFile string // Optional: path to SQLite database file (default: ./stocktake.db)
	PepperFile   string // Optional: path to file containing pepper for password hashing (default: ./pepper)
	TOTPIssuer   string // Optional: issuer name shown in authenticator apps (default: stocktake)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	SessionTTL           time.Duration // Session token lifetime (default: 12h)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Expired challenge cleanup interval (default: 15m)
}

func LoadConfig() Config {
	return Config{
		SessionSecret: os.Getenv("STOCKTAKE_SESSION_SECRET"),
		SessionIssuer: getEnvOrDefault("STOCKTAKE_SESSION_ISSUER", "stocktake"),

		SSOAssertionSecret: os.Getenv("STOCKTAKE_SSO_ASSERTION_SECRET"),
		SSOTrustedIssuer:   os.Getenv("STOCKTAKE_SSO_TRUSTED_ISSUER"),

		AdminUsername: getEnvOrDefault("STOCKTAKE_ADMIN_USERNAME", "admin"),
		AdminPassword: os.Getenv("STOCKTAKE_ADMIN_PASSWORD"),

		DatabaseFile: getEnvOrDefault("STOCKTAKE_DATABASE_FILE", "stocktake.db"),
		PepperFile:   getEnvOrDefault("STOCKTAKE_PEPPER_FILE", "pepper"),
		TOTPIssuer:   getEnvOrDefault("STOCKTAKE_TOTP_ISSUER", "stocktake"),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		SessionTTL:           getEnvDurationOrDefault("STOCKTAKE_SESSION_TTL", 12*time.Hour),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 15*time.Minute),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if d, err := time.ParseDuration(value); err == nil {
		return d
	}

	return defaultValue
}
