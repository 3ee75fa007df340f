package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	DatabaseURL    string
	UseMemoryQueue bool
	WorkerCount    int

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	ChatQueueURL  string
	ChatJobsTable string

	BedrockModelID string
	GeminiAPIKey   string
	GeminiModelID  string
	OracleTimeout  time.Duration

	AdminJWTSecret     string
	CORSAllowedOrigins []string
	ChatRateLimit      float64
	ChatRateBurst      int

	// Dialogue tuning. These used to drift between orchestrator
	// revisions; they are configured in exactly one place now.
	FuzzyMatchThreshold  int
	MaxAlternatives      int
	DefaultQuantity      int
	RecentPurchaseWindow time.Duration
	LowStockThreshold    int

	// Deterministic word lists for the classifier and the emergency
	// screen. Empty slices fall back to the built-in defaults.
	EmergencyPhrases []string
	SymptomWords     []string
	OrderWords       []string
	CheckoutWords    []string

	PrescriptionBucket string

	// Refill alert email configuration
	SESFromEmail      string
	SESFromName       string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		ChatQueueURL:  getEnv("CHAT_QUEUE_URL", ""),
		ChatJobsTable: getEnv("CHAT_JOBS_TABLE", "chat_jobs"),

		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:  getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		OracleTimeout:  getEnvAsDuration("ORACLE_TIMEOUT", 15*time.Second),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", nil),
		ChatRateLimit:      getEnvAsFloat("CHAT_RATE_LIMIT", 5),
		ChatRateBurst:      getEnvAsInt("CHAT_RATE_BURST", 10),

		FuzzyMatchThreshold:  getEnvAsInt("FUZZY_MATCH_THRESHOLD", 70),
		MaxAlternatives:      getEnvAsInt("MAX_ALTERNATIVES", 3),
		DefaultQuantity:      getEnvAsInt("DEFAULT_QUANTITY", 1),
		RecentPurchaseWindow: getEnvAsDuration("RECENT_PURCHASE_WINDOW", 72*time.Hour),
		LowStockThreshold:    getEnvAsInt("LOW_STOCK_THRESHOLD", 10),

		EmergencyPhrases: getEnvAsSlice("EMERGENCY_PHRASES", nil),
		SymptomWords:     getEnvAsSlice("SYMPTOM_WORDS", nil),
		OrderWords:       getEnvAsSlice("ORDER_WORDS", nil),
		CheckoutWords:    getEnvAsSlice("CHECKOUT_WORDS", nil),

		PrescriptionBucket: getEnv("PRESCRIPTION_BUCKET", ""),

		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESFromName:       getEnv("SES_FROM_NAME", "PharmaFlow"),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "PharmaFlow"),
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

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsFloat retrieves an environment variable as a float or returns a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsSlice retrieves a comma-separated environment variable as a slice
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
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
