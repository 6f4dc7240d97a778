// Package config provides environment configuration for the API server.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ShutdownTimeout    time.Duration

	// CORS
	CORSAllowedOrigins []string

	// NATS settings; an empty URL disables publishing
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// Turn pacing
	ConnectDelay       time.Duration
	RetrievalStepDelay time.Duration
	AnalyzeDelay       time.Duration
	ReasoningStepDelay time.Duration
	RevealInterval     time.Duration
	RevealChunk        int

	// Knowledge bases scanned when a turn names none
	KnowledgeBaseLabels []string

	// SSE
	SSEHeartbeatInterval time.Duration

	// Rate limiting
	RateLimitRequests     int
	RateLimitWindow       time.Duration
	TurnRateLimitRequests int

	// Logging
	LogLevel string

	// Tracing
	ServiceName     string
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables, after loading a .env
// file from the working directory when one exists.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 0),
		ShutdownTimeout:    getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		CORSAllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS", nil),

		// NATS
		NATSURL:      getEnv("NATS_URL", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// Pacing
		ConnectDelay:       getDurationEnv("CONNECT_DELAY", 400*time.Millisecond),
		RetrievalStepDelay: getDurationEnv("RETRIEVAL_STEP_DELAY", 400*time.Millisecond),
		AnalyzeDelay:       getDurationEnv("ANALYZE_DELAY", 400*time.Millisecond),
		ReasoningStepDelay: getDurationEnv("REASONING_STEP_DELAY", 400*time.Millisecond),
		RevealInterval:     getDurationEnv("REVEAL_INTERVAL", 15*time.Millisecond),
		RevealChunk:        getIntEnv("REVEAL_CHUNK", 3),

		KnowledgeBaseLabels: getListEnv("KNOWLEDGE_BASE_LABELS", nil),

		SSEHeartbeatInterval: getDurationEnv("SSE_HEARTBEAT_INTERVAL", 15*time.Second),

		// Rate limiting
		RateLimitRequests:     getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:       getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		TurnRateLimitRequests: getIntEnv("TURN_RATE_LIMIT_REQUESTS", 20),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		ServiceName:     getEnv("SERVICE_NAME", "presales-assistant"),
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

// getListEnv splits a comma separated value, dropping blank entries.
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
