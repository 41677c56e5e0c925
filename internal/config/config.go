package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"segment-cache/internal/domain"
	"segment-cache/internal/store"
)

// Backend names accepted by CACHE_BACKEND
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendBolt     = "bolt"
	BackendPostgres = "postgres"
)

// Config holds all application configuration, loaded from the environment (.env in development)
type Config struct {
	// Server Configuration
	Environment        string
	ServerPort         string
	RateLimitPerMinute int // Rate limit per IP address on the admin endpoints

	// Cache engine
	Backend       string        // memory, redis, bolt or postgres
	DefaultTTL    time.Duration // TTL used when Set is called without WithTTL
	SweepSchedule string        // cron spec for expired-record reclamation, empty disables

	// Redis configuration
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string

	// Bolt configuration
	BoltPath string

	// DB configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
}

// LoadConfig loads configuration from environment variables
// Returns error if the resulting configuration is invalid
func LoadConfig() (*Config, error) {
	cfg := &Config{
		// Server defaults
		Environment:        getEnv("ENVIRONMENT", "development"),
		ServerPort:         getEnv("SERVER_PORT", "8081"),
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 60),

		// Cache engine
		Backend:       getEnv("CACHE_BACKEND", BackendMemory),
		DefaultTTL:    getEnvAsMillis("CACHE_DEFAULT_TTL_MS", domain.DefaultTTL),
		SweepSchedule: getEnvAllowEmpty("CACHE_SWEEP_SCHEDULE", "@every 1m"),

		// Redis configuration
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvAsInt("REDIS_DB", 0),
		RedisKeyPrefix: getEnv("REDIS_KEY_PREFIX", "segcache"),

		// Bolt configuration
		BoltPath: getEnv("BOLT_PATH", "data/segment-cache.bolt"),

		// Database configuration
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "segmentcache"),
		DBSSLMode:  getEnv("DB_SSL_MODE", "disable"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when nothing is set in the environment
func Default() *Config {
	return &Config{
		Environment:        "development",
		ServerPort:         "8081",
		RateLimitPerMinute: 60,
		Backend:            BackendMemory,
		DefaultTTL:         domain.DefaultTTL,
		SweepSchedule:      "@every 1m",
		RedisAddr:          "localhost:6379",
		RedisKeyPrefix:     "segcache",
		BoltPath:           "data/segment-cache.bolt",
		DBHost:             "localhost",
		DBPort:             "5432",
		DBUser:             "postgres",
		DBName:             "segmentcache",
		DBSSLMode:          "disable",
	}
}

// Validate checks if all required configuration is present and valid
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendRedis, BackendBolt, BackendPostgres:
	default:
		return fmt.Errorf("CACHE_BACKEND must be one of memory, redis, bolt, postgres, got %q", c.Backend)
	}

	if c.DefaultTTL <= 0 {
		return fmt.Errorf("CACHE_DEFAULT_TTL_MS must be positive, got %d", c.DefaultTTL.Milliseconds())
	}

	if c.SweepSchedule != "" {
		if _, err := store.ParseSchedule(c.SweepSchedule); err != nil {
			return fmt.Errorf("CACHE_SWEEP_SCHEDULE: %w", err)
		}
	}

	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got %d", c.RateLimitPerMinute)
	}

	if c.Backend == BackendRedis && c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required for the redis backend")
	}

	if c.Backend == BackendBolt && c.BoltPath == "" {
		return fmt.Errorf("BOLT_PATH is required for the bolt backend")
	}

	// Validate database password in production
	if c.Backend == BackendPostgres && c.Environment == "production" && c.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required in production")
	}

	return nil
}

// PostgresDSN builds the connection string for the postgres backend
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode,
	)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Helper functions for reading environment variables

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAllowEmpty is like getEnv but honours an explicitly empty value
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

// getEnvAsInt reads an environment variable as integer or returns default
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsMillis reads an environment variable holding milliseconds
func getEnvAsMillis(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return time.Duration(value) * time.Millisecond
}
