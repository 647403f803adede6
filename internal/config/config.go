// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxFileBytes is the attachment size ceiling applied when
// MAX_FILE_BYTES is unset (10 MiB).
const DefaultMaxFileBytes = 10 * 1024 * 1024

// defaultAllowedFileTypes lists the attachment MIME types embedded into
// agent messages when ALLOWED_FILE_TYPES is unset.
var defaultAllowedFileTypes = []string{
	"image/png",
	"image/jpeg",
	"image/gif",
	"image/webp",
	"text/plain",
	"application/pdf",
}

// Config holds all application configuration.
type Config struct {
	// Webhook authentication
	GitHubWebhookSecret string
	SlackSigningSecret  string

	// Slack directory / file access
	SlackBotToken  string
	SlackBotUserID string

	// Bot identity on GitHub, matched with and without the "[bot]" suffix.
	GitHubBotLogin string

	// Agent runtime delivery
	AgentRuntimeURL string
	AgentAPIKey     string

	// Association store
	FirestoreProjectID  string
	FirestoreDatabaseID string

	// Server settings
	Port                  string
	GinMode               string
	LogLevel              string
	ServerReadTimeout     time.Duration
	ServerWriteTimeout    time.Duration
	ServerShutdownTimeout time.Duration

	// Attachment policy
	MaxFileBytes     int64
	AllowedFileTypes []string
}

// Load reads configuration from environment variables.
// Panics if any required configuration is missing or invalid.
func Load() *Config {
	cfg := &Config{
		GitHubWebhookSecret: os.Getenv("GITHUB_WEBHOOK_SECRET"),
		SlackSigningSecret:  os.Getenv("SLACK_SIGNING_SECRET"),
		SlackBotToken:       os.Getenv("SLACK_BOT_TOKEN"),
		SlackBotUserID:      os.Getenv("SLACK_BOT_USER_ID"),
		GitHubBotLogin:      os.Getenv("GITHUB_BOT_LOGIN"),
		AgentRuntimeURL:     os.Getenv("AGENT_RUNTIME_URL"),
		AgentAPIKey:         os.Getenv("AGENT_API_KEY"),
		FirestoreProjectID:  os.Getenv("FIRESTORE_PROJECT_ID"),
		FirestoreDatabaseID: os.Getenv("FIRESTORE_DATABASE_ID"),

		Port:     getEnvDefault("PORT", "8080"),
		GinMode:  getEnvDefault("GIN_MODE", "debug"),
		LogLevel: getEnvDefault("LOG_LEVEL", "info"),
	}

	cfg.ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second)
	cfg.ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second)
	cfg.ServerShutdownTimeout = getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second)

	cfg.MaxFileBytes = getEnvInt64("MAX_FILE_BYTES", DefaultMaxFileBytes)
	cfg.AllowedFileTypes = getEnvList("ALLOWED_FILE_TYPES", defaultAllowedFileTypes)

	cfg.validate()

	return cfg
}

// validate checks that all required configuration is present and valid.
// Panics if any validation fails.
func (c *Config) validate() {
	required := map[string]string{
		"GITHUB_WEBHOOK_SECRET": c.GitHubWebhookSecret,
		"SLACK_SIGNING_SECRET":  c.SlackSigningSecret,
		"SLACK_BOT_TOKEN":       c.SlackBotToken,
		"SLACK_BOT_USER_ID":     c.SlackBotUserID,
		"GITHUB_BOT_LOGIN":      c.GitHubBotLogin,
		"AGENT_RUNTIME_URL":     c.AgentRuntimeURL,
		"FIRESTORE_PROJECT_ID":  c.FirestoreProjectID,
		"FIRESTORE_DATABASE_ID": c.FirestoreDatabaseID,
	}

	for name, value := range required {
		if value == "" {
			panic(fmt.Sprintf("required environment variable %s is not set", name))
		}
	}

	if c.GinMode != "debug" && c.GinMode != "release" && c.GinMode != "test" {
		panic(fmt.Sprintf("invalid GIN_MODE: %s (must be debug, release, or test)", c.GinMode))
	}

	if c.LogLevel != "debug" && c.LogLevel != "info" && c.LogLevel != "warn" && c.LogLevel != "error" {
		panic(fmt.Sprintf("invalid LOG_LEVEL: %s (must be debug, info, warn, or error)", c.LogLevel))
	}

	if c.ServerReadTimeout <= 0 {
		panic("SERVER_READ_TIMEOUT must be positive")
	}
	if c.ServerWriteTimeout <= 0 {
		panic("SERVER_WRITE_TIMEOUT must be positive")
	}
	if c.ServerShutdownTimeout <= 0 {
		panic("SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.MaxFileBytes <= 0 {
		panic("MAX_FILE_BYTES must be positive")
	}
}

// getEnvDefault gets an environment variable with a default value.
func getEnvDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable with a default value.
// Panics if the value cannot be parsed as a duration.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		panic(fmt.Sprintf("invalid duration value for %s: %s", key, value))
	}
	return d
}

// getEnvInt64 gets an integer environment variable with a default value.
// Panics if the value cannot be parsed.
func getEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		panic(fmt.Sprintf("invalid integer value for %s: %s", key, value))
	}
	return n
}

// getEnvList gets a comma-separated environment variable with a default value.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
