package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Issuer      string // Shown in authenticator apps (default: gatehouse)
	TokenSecret string // Required in prod: signing secret for account tokens

	DatabaseFile string // Path to SQLite database file (default: ./gatehouse.db)
	PepperFile   string // Path to password hashing pepper file (default: ./pepper)

	Env       string // Environment (dev, staging, prod) (default: dev)
	LogLevel  string // Log level (debug, info, warn, error) (default: info)
	LogFormat string // Log format (json, text) (default: json)
	Port      int    // HTTP server port (default: 8080)

	SessionTTL           time.Duration // Absolute session lifetime, 0 = no expiry
	ActivityWindow       time.Duration // Online-session activity window (default: 30m)
	LockoutWindow        time.Duration // Lockout duration after repeated failures (default: 15m)
	MaxFailedAttempts    int           // Password failures before lockout (default: 5)
	NotifyQueueCapacity  int           // Outbound notification queue size (default: 100)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Expiry sweep interval (default: 20s)
}

func LoadConfig() Config {
	return Config{
		Issuer:      getEnvOrDefault("GATEHOUSE_ISSUER", "gatehouse"),
		TokenSecret: os.Getenv("GATEHOUSE_TOKEN_SECRET"),

		DatabaseFile: getEnvOrDefault("GATEHOUSE_DATABASE_FILE", "gatehouse.db"),
		PepperFile:   getEnvOrDefault("GATEHOUSE_PEPPER_FILE", "pepper"),

		Env:       getEnvOrDefault("ENV", "dev"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "json"),
		Port:      getEnvIntOrDefault("PORT", 8080),

		SessionTTL:           getEnvDurationOrDefault("SESSION_TTL", 0),
		ActivityWindow:       getEnvDurationOrDefault("ACTIVITY_WINDOW", 30*time.Minute),
		LockoutWindow:        getEnvDurationOrDefault("LOCKOUT_WINDOW", 15*time.Minute),
		MaxFailedAttempts:    getEnvIntOrDefault("MAX_FAILED_ATTEMPTS", 5),
		NotifyQueueCapacity:  getEnvIntOrDefault("NOTIFY_QUEUE_CAPACITY", 100),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 20*time.Second),
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
