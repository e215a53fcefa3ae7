package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ServerConfig holds the API process settings read from the environment.
type ServerConfig struct {
	// Addr is the HTTP listen address. Default: ":8080"
	Addr string

	// DatabaseURL is the PostgreSQL DSN for the profile store.
	// Empty disables the store; requests must then carry profiles inline.
	DatabaseURL string

	// ProvidersConfigPath points at the providers YAML. Empty uses built-in defaults.
	ProvidersConfigPath string

	// Admin configures JWT protection of the circuit admin routes.
	Admin AdminConfig

	// HTTP tunes request handling.
	HTTP HTTPConfig

	// Match bounds the ranking limit accepted from callers.
	Match MatchConfig

	// EnableTracing installs the OpenTelemetry SDK tracer provider.
	EnableTracing bool
}

// AdminConfig holds admin authentication settings.
type AdminConfig struct {
	// JWTSecret signs HS256 admin tokens. Must be at least 32 bytes.
	JWTSecret string
	// Role is the required value of the "role" claim. Default: "admin"
	Role string
}

// HTTPConfig holds request handling settings.
type HTTPConfig struct {
	// MaxBodyBytes limits request bodies. Default: 1 MiB
	MaxBodyBytes int64
	// RequestTimeout bounds one request. Default: 30s
	RequestTimeout time.Duration
	// ShutdownTimeout bounds graceful shutdown. Default: 10s
	ShutdownTimeout time.Duration
	// RateLimitRPS is the per-IP token refill rate. Default: 10
	RateLimitRPS float64
	// RateLimitBurst is the per-IP bucket size. Default: 20
	RateLimitBurst int
}

// MatchConfig holds ranking limits.
type MatchConfig struct {
	// DefaultLimit when the caller sends none. Default: 10
	DefaultLimit int
	// MaxLimit caps caller supplied limits. Default: 100
	MaxLimit int
}

// LoadServerConfig loads the API configuration from environment variables.
// Unset or unparsable variables fall back to defaults.
func LoadServerConfig() (*ServerConfig, error) {
	config := &ServerConfig{
		Addr:                getEnvOrDefault("HTTP_ADDR", ":8080"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		ProvidersConfigPath: os.Getenv("PROVIDERS_CONFIG"),
		Admin: AdminConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
			Role:      getEnvOrDefault("ADMIN_ROLE", "admin"),
		},
		HTTP: HTTPConfig{
			MaxBodyBytes:    int64(getEnvInt("HTTP_MAX_BODY_BYTES", 1<<20)),
			RequestTimeout:  getEnvDuration("HTTP_REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
			RateLimitRPS:    getEnvFloat("RATE_LIMIT_RPS", 10),
			RateLimitBurst:  getEnvInt("RATE_LIMIT_BURST", 20),
		},
		Match: MatchConfig{
			DefaultLimit: getEnvInt("MATCH_DEFAULT_LIMIT", 10),
			MaxLimit:     getEnvInt("MATCH_MAX_LIMIT", 100),
		},
		EnableTracing: getEnvBool("TRACING_ENABLED", false),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}
	return config, nil
}

// Validate checks configuration correctness.
func (c *ServerConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("HTTP_ADDR cannot be empty")
	}

	if len(c.Admin.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}

	if c.Admin.Role == "" {
		return fmt.Errorf("ADMIN_ROLE cannot be empty")
	}

	if c.HTTP.MaxBodyBytes <= 0 {
		return fmt.Errorf("HTTP_MAX_BODY_BYTES must be positive")
	}

	if c.HTTP.RequestTimeout <= 0 {
		return fmt.Errorf("HTTP_REQUEST_TIMEOUT must be positive")
	}

	if c.HTTP.ShutdownTimeout <= 0 {
		return fmt.Errorf("HTTP_SHUTDOWN_TIMEOUT must be positive")
	}

	if c.HTTP.RateLimitRPS <= 0 || c.HTTP.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}

	if c.Match.MaxLimit <= 0 || c.Match.MaxLimit > 1000 {
		return fmt.Errorf("MATCH_MAX_LIMIT must be between 1 and 1000")
	}

	if c.Match.DefaultLimit <= 0 || c.Match.DefaultLimit > c.Match.MaxLimit {
		return fmt.Errorf("MATCH_DEFAULT_LIMIT must be between 1 and MATCH_MAX_LIMIT")
	}

	return nil
}

// getEnvOrDefault returns environment variable value or default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration parses duration environment variable with default.
// Supports formats like "30s", "1m", "2h".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
