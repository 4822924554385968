package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	KurrentDB KurrentDBConfig
	Auth      AuthConfig
	AI        AIConfig
	Mocks     MocksConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// KurrentDBConfig holds configuration for the audit event store.
type KurrentDBConfig struct {
	// Host is the KurrentDB server hostname
	Host string
	// Port is the gRPC/HTTP port (default 2113)
	Port int
	// Insecure disables TLS (for development)
	Insecure bool
	// Username for authentication (optional)
	Username string
	// Password for authentication (optional)
	Password string
	// Enabled controls whether audit events are published at all
	Enabled bool
}

type AuthConfig struct {
	JWTSecret string
	// TokenTTL is how long an admin session token stays valid
	TokenTTL time.Duration
}

// AIConfig holds everything the analysis pipeline needs to know about
// the upstream model and the reliability policies wrapped around it.
type AIConfig struct {
	// MockMode serves canned templates instead of calling the real model,
	// unless the request sets forceReal
	MockMode bool
	// APIKey for the Anthropic API
	APIKey string
	// Model identifier passed to the generation call
	Model string
	// Timeout bounds a single generation call
	Timeout time.Duration

	// Fixed-window admission control for real model calls
	RateWindow   time.Duration
	RateMaxCalls int

	// Circuit breaker policy
	BreakerFailures int
	BreakerCooldown time.Duration
}

type MocksConfig struct {
	// Path to a JSON file overriding the embedded mock templates.
	// Empty means embedded defaults; Mock Studio edits stay in memory.
	Path string
}

func Load() (*Config, error) {
	// Optional .env for local development; a missing file is fine.
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 4000),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "clinia"),
			Password: getEnv("DB_PASSWORD", "clinia"),
			Database: getEnv("DB_NAME", "clinia"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		KurrentDB: KurrentDBConfig{
			Host:     getEnv("KURRENTDB_HOST", "localhost"),
			Port:     getEnvInt("KURRENTDB_PORT", 2113),
			Insecure: getEnvBool("KURRENTDB_INSECURE", true),
			Username: getEnv("KURRENTDB_USERNAME", ""),
			Password: getEnv("KURRENTDB_PASSWORD", ""),
			Enabled:  getEnvBool("KURRENTDB_ENABLED", false),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
			TokenTTL:  getEnvDuration("ADMIN_TOKEN_TTL_HOURS", 8) * time.Hour,
		},
		AI: AIConfig{
			MockMode:        getEnvBool("CLINIA_MOCK_AI", true),
			APIKey:          getEnv("ANTHROPIC_API_KEY", ""),
			Model:           getEnv("AI_MODEL", "claude-3-5-haiku-20241022"),
			Timeout:         getEnvDuration("AI_TIMEOUT_SECONDS", 30) * time.Second,
			RateWindow:      getEnvDuration("AI_RATE_WINDOW_SECONDS", 300) * time.Second,
			RateMaxCalls:    getEnvInt("AI_RATE_MAX_CALLS", 20),
			BreakerFailures: getEnvInt("AI_BREAKER_FAILURES", 3),
			BreakerCooldown: getEnvDuration("AI_BREAKER_COOLDOWN_SECONDS", 60) * time.Second,
		},
		Mocks: MocksConfig{
			Path: getEnv("MOCKS_PATH", ""),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue))
}
