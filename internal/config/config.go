// Package config handles application configuration loading and management.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig
	Cache     CacheConfig
	DocDB     DocDBConfig
	Vault     VaultConfig
	Auth      AuthConfig
	LLM       LLMConfig
	Realtime  RealtimeConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host        string
	Port        int
	GinMode     string
	CORSOrigins []string
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CacheConfig holds cache-related configuration.
type CacheConfig struct {
	Type      string
	Host      string
	Port      string
	Password  string
	DB        int
	TTL       time.Duration
	KeyPrefix string
}

// DocDBConfig holds document database configuration.
type DocDBConfig struct {
	Type     string
	URI      string
	Database string
}

// VaultConfig holds vault configuration.
type VaultConfig struct {
	Type          string
	EnvFiles      []string
	EncryptionKey string
}

// AuthConfig holds credential verification settings.
type AuthConfig struct {
	JWTSecret string
}

// LLMConfig holds settings for the completion router.
type LLMConfig struct {
	RequestTimeout     time.Duration
	DefaultTemperature float64
	DefaultMaxTokens   int
	ProvidersSeedPath  string
}

// RealtimeConfig holds settings for the realtime broker and session registry.
type RealtimeConfig struct {
	IdleTimeout      time.Duration
	SweepInterval    time.Duration
	AuditLogDir      string
	SessionRetention time.Duration
}

// RateLimitConfig holds settings for provider rate limiting.
type RateLimitConfig struct {
	Backend string
	Prefix  string
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			Port:        getEnvAsInt("SERVER_PORT", 8080),
			GinMode:     getEnv("GIN_MODE", "debug"),
			CORSOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		},
		Cache: CacheConfig{
			Type:      getEnv("CACHE_TYPE", "redis"),
			Host:      getEnv("REDIS_HOST", "localhost"),
			Port:      getEnv("REDIS_PORT", "6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			TTL:       time.Duration(getEnvAsInt("CACHE_TTL_SECONDS", 300)) * time.Second,
			KeyPrefix: getEnv("CACHE_KEY_PREFIX", "opsbridge:"),
		},
		DocDB: DocDBConfig{
			Type:     getEnv("DOCDB_TYPE", "mongodb"),
			URI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGODB_DATABASE", "opsbridge"),
		},
		Vault: VaultConfig{
			Type:          getEnv("VAULT_TYPE", "dotenv"),
			EnvFiles:      getEnvAsList("VAULT_ENV_FILES", []string{".env"}),
			EncryptionKey: getEnv("SECRETS_ENCRYPTION_KEY", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		LLM: LLMConfig{
			RequestTimeout:     getEnvAsDuration("LLM_REQUEST_TIMEOUT", 60*time.Second),
			DefaultTemperature: getEnvAsFloat("LLM_DEFAULT_TEMPERATURE", 0.7),
			DefaultMaxTokens:   getEnvAsInt("LLM_DEFAULT_MAX_TOKENS", 1000),
			ProvidersSeedPath:  getEnv("LLM_PROVIDERS_SEED_PATH", ""),
		},
		Realtime: RealtimeConfig{
			IdleTimeout:      getEnvAsDuration("REALTIME_IDLE_TIMEOUT", 5*time.Minute),
			SweepInterval:    getEnvAsDuration("REALTIME_SWEEP_INTERVAL", 30*time.Second),
			AuditLogDir:      getEnv("REALTIME_AUDIT_LOG_DIR", "./data/logs"),
			SessionRetention: getEnvAsDuration("AUTOMATION_SESSION_RETENTION", time.Hour),
		},
		RateLimit: RateLimitConfig{
			Backend: getEnv("RATE_LIMIT_BACKEND", "memory"),
			Prefix:  getEnv("RATE_LIMIT_PREFIX", "ratelimit"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsFloat gets an environment variable as a float with a default value.
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go duration strings ("90s") or plain seconds ("90").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping empty items.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
