package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	App struct {
		Port              string
		Debug             bool
		FrontendURL       string
		HTTPIngestEnabled bool
	}
	DB struct {
		Host     string
		Port     string
		User     string
		Password string
		DBName   string
		SSLMode  string
	}
	Redis struct {
		Enabled  bool
		Host     string
		Port     string
		Password string
		DB       int
		TTL      time.Duration
	}
	Query struct {
		DefaultLimit int
		MaxLimit     int
	}
	Ingest struct {
		PacketsPerCommit int
		InboxEnabled     bool
		InboxDir         string
		InboxInterval    time.Duration
	}
	NATS struct {
		Enabled    bool
		URL        string
		Subject    string
		QueueGroup string
	}
	RateLimit struct {
		RequestsPerSecond int
		Burst             int
	}
	Export struct {
		OutputDir string
	}
	Metrics struct {
		Enabled bool
	}
}

func Load() *Config {
	cfg := &Config{}

	// App
	cfg.App.Port = getEnv("PORT", "8080")
	cfg.App.Debug = getEnvAsBool("DEBUG", false)
	cfg.App.FrontendURL = getEnv("FRONTEND_URL", "http://localhost:3000")
	cfg.App.HTTPIngestEnabled = getEnvAsBool("HTTP_INGEST_ENABLED", false)

	// DB
	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "voeventdb")
	cfg.DB.Password = getEnv("DB_PASSWORD", "voeventdb")
	cfg.DB.DBName = getEnv("DB_NAME", "voeventdb")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")

	// Redis
	cfg.Redis.Enabled = getEnvAsBool("REDIS_ENABLED", false)
	cfg.Redis.Host = getEnv("REDIS_HOST", "localhost")
	cfg.Redis.Port = getEnv("REDIS_PORT", "6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", 0)
	cfg.Redis.TTL = getEnvAsDuration("REDIS_TTL", 10*time.Minute)

	// Query
	cfg.Query.DefaultLimit = getEnvAsInt("QUERY_DEFAULT_LIMIT", 100)
	cfg.Query.MaxLimit = getEnvAsInt("QUERY_MAX_LIMIT", 10000)

	// Ingest
	cfg.Ingest.PacketsPerCommit = getEnvAsInt("INGEST_PACKETS_PER_COMMIT", 1000)
	cfg.Ingest.InboxEnabled = getEnvAsBool("INBOX_ENABLED", false)
	cfg.Ingest.InboxDir = getEnv("INBOX_DIR", "./data/inbox")
	cfg.Ingest.InboxInterval = getEnvAsDuration("INBOX_INTERVAL", 60*time.Second)

	// NATS
	cfg.NATS.Enabled = getEnvAsBool("NATS_ENABLED", false)
	cfg.NATS.URL = getEnv("NATS_URL", "nats://localhost:4222")
	cfg.NATS.Subject = getEnv("NATS_SUBJECT", "voevent.packets")
	cfg.NATS.QueueGroup = getEnv("NATS_QUEUE", "voeventdb")

	// Rate Limit
	cfg.RateLimit.RequestsPerSecond = getEnvAsInt("RATE_LIMIT_RPS", 10)
	cfg.RateLimit.Burst = getEnvAsInt("RATE_LIMIT_BURST", 20)

	cfg.Export.OutputDir = getEnv("EXPORT_OUTPUT_DIR", "./data/export")
	cfg.Metrics.Enabled = getEnvAsBool("METRICS_ENABLED", true)

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if dur, err := time.ParseDuration(value); err == nil {
			return dur
		}
	}
	return defaultValue
}
