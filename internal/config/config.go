package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	AuditDBURL    string
	ClinicTZ      string
	SlotMinutes   int
	RedisAddr     string
	RedisPassword string
	LockTTL       time.Duration

	// Caller-facing retry policy for dependency failures.
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration

	ActorJWTSecret string

	// Notification delivery (best effort, email only).
	EmailProvider     string
	SendGridAPIKey    string
	NotifyFromEmail   string
	NotifyFromName    string
	ClinicianInboxMap string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		AuditDBURL:    getEnv("AUDIT_DATABASE_URL", ""),
		ClinicTZ:      getEnv("CLINIC_TZ", "UTC"),
		SlotMinutes:   getEnvAsInt("SLOT_MINUTES", 30),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		LockTTL:       getEnvAsDuration("LOCK_TTL", 15*time.Second),

		RetryMaxAttempts: getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:   getEnvAsDuration("RETRY_BASE_DELAY", 200*time.Millisecond),

		ActorJWTSecret: getEnv("ACTOR_JWT_SECRET", ""),

		EmailProvider:     getEnv("EMAIL_PROVIDER", "stub"),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		NotifyFromEmail:   getEnv("NOTIFY_FROM_EMAIL", ""),
		NotifyFromName:    getEnv("NOTIFY_FROM_NAME", "Oakwell Care"),
		ClinicianInboxMap: getEnv("CLINICIAN_INBOX_MAP_JSON", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
