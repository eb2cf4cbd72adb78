// File: internal/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the backend server settings.
type Config struct {
	ServerPort     string
	Environment    string
	LogLevel       string
	DatabaseDriver string // "sqlite" or "postgres"
	DatabaseDSN    string
	APIKey         string
	JWTSecretKey   string
	TokenTTL       time.Duration
	RedisURL       string
	RedisChannel   string
	NodeID         string
	WriteRateLimit int // message writes per minute per identity
}

// ClientConfig holds what a chatsync client needs to reach the backend.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Token   string
}

// Configured reports whether both connection settings are present.
func (c ClientConfig) Configured() bool {
	return strings.TrimSpace(c.BaseURL) != "" && strings.TrimSpace(c.APIKey) != ""
}

func loadDotEnv() string {
	env := os.Getenv("ENV")
	if strings.ToLower(env) != "production" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found; continuing with environment variables")
		}
	}
	return env
}

// New reads server configuration from environment variables or .env file.
func New() (*Config, error) {
	env := loadDotEnv()

	cfg := &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		Environment:    env,
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseDriver: strings.ToLower(getEnv("DATABASE_DRIVER", "sqlite")),
		DatabaseDSN:    getEnv("DATABASE_DSN", "designdesk.db"),
		APIKey:         getEnv("BACKEND_API_KEY", ""),
		JWTSecretKey:   getEnv("JWT_SECRET_KEY", ""),
		TokenTTL:       getEnvAsDuration("TOKEN_TTL", 24*time.Hour),
		RedisURL:       getEnv("REDIS_URL", ""),
		RedisChannel:   getEnv("REDIS_CHANNEL", "designdesk:changes"),
		NodeID:         getEnv("NODE_ID", ""),
		WriteRateLimit: getEnvAsInt("WRITE_RATE_LIMIT", 60),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that must be present for the server to start.
func (c *Config) Validate() error {
	missing := []string{}
	if c.APIKey == "" {
		missing = append(missing, "BACKEND_API_KEY")
	}
	if c.JWTSecretKey == "" {
		missing = append(missing, "JWT_SECRET_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	if c.WriteRateLimit <= 0 {
		return fmt.Errorf("WRITE_RATE_LIMIT must be positive")
	}
	return nil
}

// LoadClient reads the client connection settings. Absent values are not an
// error here; the client reports NotConfigured when it is used.
func LoadClient() ClientConfig {
	loadDotEnv()
	return ClientConfig{
		BaseURL: strings.TrimRight(getEnv("DESIGNDESK_URL", ""), "/"),
		APIKey:  getEnv("DESIGNDESK_API_KEY", ""),
		Token:   getEnv("DESIGNDESK_TOKEN", ""),
	}
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an env var as an integer, with a fallback.
func getEnvAsInt(key string, defaultValue int) int {
	strValue := getEnv(key, "")
	if strValue == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(strValue)
	if err != nil {
		log.Printf("Warning: could not parse env var %s as integer. Using default value.", key)
		return defaultValue
	}
	return intValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if strValue == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(strValue)
	if err != nil {
		log.Printf("Warning: could not parse env var %s as duration. Using default value.", key)
		return defaultValue
	}
	return d
}
