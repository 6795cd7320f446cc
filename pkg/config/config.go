package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds server configuration.
type Config struct {
	Port     string
	LogLevel string

	// Shopify Admin API access.
	ShopDomain   string // e.g. "example.myshopify.com"
	AdminToken   string // Admin API access token
	APIKey       string // app API key (session token audience)
	APISecret    string // app secret (webhook HMAC + session token signing key)
	APIVersion   string // e.g. "2024-10"
	AppURL       string // public base URL; webhook subscriptions point here
	CallTimeout  time.Duration
	GraphQLRPS   int // client-side throttle against the Admin API
	GraphQLBurst int

	// Deduplication backend: "memory", "redis" or "postgres".
	DedupBackend  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PostgresURL   string
	SweepInterval time.Duration

	// Reconciliation result store.
	ResultDBPath string

	// Public endpoint rate limiting.
	RateLimitRPS   int
	RateLimitBurst int

	// OpenTelemetry.
	OTLPEndpoint string
	OTELEnabled  bool
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "INFO"),

		ShopDomain:   os.Getenv("SHOPIFY_SHOP_DOMAIN"),
		AdminToken:   os.Getenv("SHOPIFY_ADMIN_TOKEN"),
		APIKey:       os.Getenv("SHOPIFY_API_KEY"),
		APISecret:    os.Getenv("SHOPIFY_API_SECRET"),
		APIVersion:   getEnv("SHOPIFY_API_VERSION", "2024-10"),
		AppURL:       os.Getenv("APP_URL"),
		CallTimeout:  getEnvDuration("SHOPIFY_CALL_TIMEOUT", 10*time.Second),
		GraphQLRPS:   getEnvInt("SHOPIFY_GRAPHQL_RPS", 2),
		GraphQLBurst: getEnvInt("SHOPIFY_GRAPHQL_BURST", 4),

		DedupBackend:  getEnv("DEDUP_BACKEND", "memory"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		PostgresURL:   getEnv("DATABASE_URL", "postgres://stockpilot@localhost:5432/stockpilot?sslmode=disable"),
		SweepInterval: getEnvDuration("DEDUP_SWEEP_INTERVAL", time.Hour),

		ResultDBPath: getEnv("RESULT_DB_PATH", "stockpilot.db"),

		RateLimitRPS:   getEnvInt("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 40),

		OTLPEndpoint: getEnv("OTLP_ENDPOINT", "localhost:4317"),
		OTELEnabled:  os.Getenv("OTEL_ENABLED") == "true",
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
