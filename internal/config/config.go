// Package config provides environment configuration for the orchestrator.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT settings
	JWTSecret string

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	FrontModel      string
	SupervisorModel string

	// Booking API
	BookingBaseURL      string
	BookingServiceToken string
	BookingTimeout      time.Duration

	// Tenancy
	DefaultOrgID string
	// OrgDirectoryFile seeds the organization directory at boot.
	OrgDirectoryFile string

	// Agent policy
	SupervisorMaxTurns int
	SlotGranularity    time.Duration

	// Channel config cache
	ConfigCacheTTL time.Duration

	// Notifications
	NotifyRereadAttempts int
	NotifyRereadDelay    time.Duration

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	RecordingDir     string
	NotifyWebhookURL string

	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// Redis
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		FrontModel:      getEnv("FRONT_MODEL", "gpt-4o-mini"),
		SupervisorModel: getEnv("SUPERVISOR_MODEL", "gpt-4o"),

		// Booking API
		BookingBaseURL:      getEnv("BOOKING_BASE_URL", "http://localhost:9090"),
		BookingServiceToken: getEnv("BOOKING_SERVICE_TOKEN", ""),
		BookingTimeout:      getDurationEnv("BOOKING_TIMEOUT", 15*time.Second),

		// Tenancy
		DefaultOrgID:     getEnv("DEFAULT_ORG_ID", ""),
		OrgDirectoryFile: getEnv("ORG_DIRECTORY_FILE", ""),

		// Agent policy
		SupervisorMaxTurns: getIntEnv("SUPERVISOR_MAX_TURNS", 8),
		SlotGranularity:    getDurationEnv("SLOT_GRANULARITY", time.Hour),

		// Channel config cache
		ConfigCacheTTL: getDurationEnv("CONFIG_CACHE_TTL", 60*time.Second),

		// Notifications
		NotifyRereadAttempts: getIntEnv("NOTIFY_REREAD_ATTEMPTS", 3),
		NotifyRereadDelay:    getDurationEnv("NOTIFY_REREAD_DELAY", 2*time.Second),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		RecordingDir:     getEnv("RECORDING_DIR", "./recordings"),
		NotifyWebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
