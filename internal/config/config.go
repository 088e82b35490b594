// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration. Secrets are not here; they
// live in SSM under ParamPrefix and are resolved lazily by the clients.
type Config struct {
	ParamPrefix   string        // SSM prefix, e.g. /b2b-bot
	AssistantID   string        // fixed assistant configuration id
	WorkingChatID int64         // operations chat receiving lead forwards
	StateTable    string        // DynamoDB table; empty = memory-only sessions
	WebhookSecret string        // optional Telegram secret token
	GuideURL      string        // optional welcome guide link
	PollInterval  time.Duration // assistant run-status poll cadence
	WaitTimeout   time.Duration // hard bound on one assistant exchange
}

// Load reads configuration from environment variables. A .env file is
// honored for local runs and silently skipped when absent.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ParamPrefix:   getEnv("PARAM_PREFIX", ""),
		AssistantID:   getEnv("OPENAI_ASSISTANT_ID", ""),
		WorkingChatID: getEnvInt64("WORKING_CHAT_ID", 0),
		StateTable:    getEnv("STATE_TABLE", ""),
		WebhookSecret: getEnv("TELEGRAM_WEBHOOK_SECRET", ""),
		GuideURL:      getEnv("CHECKLIST_URL", ""),
		PollInterval:  getEnvDuration("ASSISTANT_POLL_INTERVAL", time.Second),
		WaitTimeout:   getEnvDuration("ASSISTANT_WAIT_TIMEOUT", 90*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.ParamPrefix == "" {
		return fmt.Errorf("PARAM_PREFIX cannot be empty")
	}
	if c.AssistantID == "" {
		return fmt.Errorf("OPENAI_ASSISTANT_ID cannot be empty")
	}
	if c.WorkingChatID == 0 {
		return fmt.Errorf("WORKING_CHAT_ID cannot be empty")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("ASSISTANT_POLL_INTERVAL must be > 0")
	}
	if c.WaitTimeout <= 0 {
		return fmt.Errorf("ASSISTANT_WAIT_TIMEOUT must be > 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
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
