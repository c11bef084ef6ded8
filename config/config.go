// Package config provides application configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port      string
	DBPath    string
	PromptDir string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	ModelName     string

	MaxRetries  int
	IdleTimeout time.Duration
	CallTimeout time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		DBPath:        getEnv("DB_PATH", "./data/onboarding.db"),
		PromptDir:     getEnv("PROMPT_DIR", "./configs"),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		ModelName:     getEnv("MODEL_NAME", "gpt-4o-mini"),
		MaxRetries:    getEnvInt("MAX_RETRIES", 3),
		IdleTimeout:   getEnvDuration("IDLE_TIMEOUT", 30*time.Minute),
		CallTimeout:   getEnvDuration("MODEL_CALL_TIMEOUT", 90*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.PromptDir == "" {
		return fmt.Errorf("PROMPT_DIR cannot be empty")
	}
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY cannot be empty")
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("MAX_RETRIES must be > 0")
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("IDLE_TIMEOUT must be > 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
