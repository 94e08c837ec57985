// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port               string
	AllowedOrigins     []string
	DBPath             string
	MaxRequestBodySize int64
	Retention          time.Duration // 0 disables pruning of stored sessions
	OpenAI             OpenAIConfig
	Run                RunConfig
}

// OpenAIConfig controls the remote assistant client.
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	AssistantsFile  string // optional YAML override of the embedded definitions
	VectorStoreName string
}

// RunConfig bounds the run-lifecycle loop.
type RunConfig struct {
	PollInterval    time.Duration
	PollTimeout     time.Duration
	MaxActionRounds int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:               getEnv("PORT", "5000"),
		AllowedOrigins:     getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		DBPath:             getEnv("DB_PATH", "./data/formfill.db"),
		MaxRequestBodySize: int64(getEnvInt("MAX_REQUEST_BODY_BYTES", 1<<20)),
		Retention:          getEnvDuration("RECORD_RETENTION", 30*24*time.Hour),
		OpenAI: OpenAIConfig{
			APIKey:          getEnv("OPENAI_API_KEY", ""),
			BaseURL:         getEnv("OPENAI_BASE_URL", ""),
			AssistantsFile:  getEnv("ASSISTANTS_FILE", ""),
			VectorStoreName: getEnv("VECTOR_STORE_NAME", "Personal Data"),
		},
		Run: RunConfig{
			PollInterval:    getEnvDuration("RUN_POLL_INTERVAL", 500*time.Millisecond),
			PollTimeout:     getEnvDuration("RUN_POLL_TIMEOUT", 2*time.Minute),
			MaxActionRounds: getEnvInt("RUN_MAX_ACTION_ROUNDS", 8),
		},
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
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY cannot be empty")
	}
	if c.OpenAI.VectorStoreName == "" {
		return fmt.Errorf("VECTOR_STORE_NAME cannot be empty")
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_BYTES must be > 0")
	}
	if c.Retention < 0 {
		return fmt.Errorf("RECORD_RETENTION must be >= 0")
	}
	if c.Run.PollInterval < 0 {
		return fmt.Errorf("RUN_POLL_INTERVAL must be >= 0")
	}
	if c.Run.PollTimeout <= 0 {
		return fmt.Errorf("RUN_POLL_TIMEOUT must be > 0")
	}
	if c.Run.MaxActionRounds <= 0 {
		return fmt.Errorf("RUN_MAX_ACTION_ROUNDS must be > 0")
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
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

// getEnvList splits a comma separated variable, dropping empty entries.
func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
