package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port string
	Env  string

	// Storage: "postgres" requires DatabaseURL, "sqlite" uses SQLitePath,
	// "memory" keeps everything in-process.
	Store       string
	SQLitePath  string
	DatabaseURL string
	RedisURL    string

	// Squad defaults, applied when a create request omits the setting.
	ConsensusMode        string
	CommitTimeoutSeconds int
	MaxMembers           int
	ConvergenceWindow    int

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     // Enable auto-blocking after repeated violations
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		Env:                  getEnv("ENV", "development"),
		Store:                getEnv("STORE", "sqlite"),
		SQLitePath:           getEnv("SQLITE_PATH", "squadbot.db"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisURL:             os.Getenv("REDIS_URL"),
		ConsensusMode:        getEnv("CONSENSUS_MODE", "majority"),
		CommitTimeoutSeconds: getEnvInt("COMMIT_TIMEOUT_SECONDS", 300),
		MaxMembers:           getEnvInt("MAX_MEMBERS", 10),
		ConvergenceWindow:    getEnvInt("CONVERGENCE_WINDOW", 20),
		AutoBlockEnabled:     getEnv("AUTO_BLOCK_ENABLED", "false") == "true",
	}

	// Parse whitelist (comma-separated IPs or CIDRs)
	if whitelist := os.Getenv("RATE_LIMIT_WHITELIST"); whitelist != "" {
		for _, entry := range strings.Split(whitelist, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.RateLimitWhitelist = append(cfg.RateLimitWhitelist, entry)
			}
		}
	}

	// In production, require a durable database
	if cfg.Env == "production" && cfg.Store == "postgres" && cfg.DatabaseURL == "" {
		panic("DATABASE_URL is required when STORE=postgres")
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
