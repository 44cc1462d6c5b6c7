package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	ListenAddr  string

	AuthJWTSecret string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis RedisConfig

	Replicate ReplicateConfig

	Notifier NotifierConfig

	RateLimit RateLimitConfig

	// WebhookFallbackLookup enables the broad jobs query when a prediction
	// has no lookup entry. Legacy jobs predate the predictions table.
	WebhookFallbackLookup bool

	// SubmitLockTTL bounds the pre-reservation idempotency lock held while
	// a generation request is in flight. Zero disables the guard.
	SubmitLockTTL time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ReplicateConfig struct {
	APIToken   string
	BaseURL    string
	WebhookURL string
	Timeout    time.Duration
}

type NotifierConfig struct {
	FCMEndpoint string
	FCMAuthKey  string
}

// RateLimitConfig throttles generation submissions per user. SubmitRate is
// tokens per second; zero disables throttling.
type RateLimitConfig struct {
	SubmitRate  float64
	SubmitBurst int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:       getenv("APP_SERVICE", "vidra"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		ListenAddr:    getenv("LISTEN_ADDR", ":8080"),
		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		OTLPEndpoint:  getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "vidra"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME_SECONDS", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_SECONDS", 300),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},

		Replicate: ReplicateConfig{
			APIToken:   strings.TrimSpace(getenv("REPLICATE_API_TOKEN", "")),
			BaseURL:    getenv("REPLICATE_BASE_URL", "https://api.replicate.com"),
			WebhookURL: strings.TrimSpace(getenv("WEBHOOK_URL", "")),
			Timeout:    time.Duration(getenvInt("REPLICATE_TIMEOUT_SECONDS", 60)) * time.Second,
		},

		Notifier: NotifierConfig{
			FCMEndpoint: strings.TrimSpace(getenv("FCM_ENDPOINT", "")),
			FCMAuthKey:  strings.TrimSpace(getenv("FCM_AUTH_KEY", "")),
		},

		RateLimit: RateLimitConfig{
			SubmitRate:  getenvFloat("RATE_LIMIT_SUBMIT_RATE", 0),
			SubmitBurst: getenvInt("RATE_LIMIT_SUBMIT_BURST", 5),
		},

		WebhookFallbackLookup: getenvBool("WEBHOOK_FALLBACK_LOOKUP", true),
		SubmitLockTTL:         time.Duration(getenvInt("SUBMIT_LOCK_TTL_SECONDS", 120)) * time.Second,
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
