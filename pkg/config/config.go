package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	envConfigPath        = "TGCMD_CONFIG"
	envRouterEnabled     = "TGCMD_ROUTER_ENABLED"
	envTelegramBotToken  = "TELEGRAM_BOT_TOKEN"
	envTelegramAllowFrom = "TELEGRAM_ALLOW_FROM"

	defaultWorkers     = 16
	defaultQueueSize   = 256
	defaultEventBuffer = 64
)

// ErrConfigNotFound is returned by LoadConfig when no config.json exists in
// the fallback locations.
var ErrConfigNotFound = errors.New("config.json not found")

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Channels  ChannelsConfig  `json:"channels"`
	Router    RouterConfig    `json:"router"`
	Assistant AssistantConfig `json:"assistant"`
	Gateway   GatewayConfig   `json:"gateway"`
	Logging   LoggingConfig   `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// ChannelsConfig stores transport adapter settings.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

// TelegramConfig configures Telegram channel integration.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allow_from"`
}

// RouterConfig tunes command routing and correlation tracking.
type RouterConfig struct {
	// Enabled gates non-debug commands. Unset means enabled.
	Enabled               *bool `json:"enabled,omitempty"`
	Workers               int   `json:"workers"`
	QueueSize             int   `json:"queue_size"`
	EventBuffer           int   `json:"event_buffer"`
	CorrelationTTLSeconds int   `json:"correlation_ttl_seconds"`
}

// AssistantConfig selects the LLM backend used by /ask. An empty provider
// disables the command.
type AssistantConfig struct {
	Provider string                 `json:"provider"`
	Model    string                 `json:"model"`
	OpenAI   OpenAIProviderConfig   `json:"openai"`
	OpenCode OpenCodeProviderConfig `json:"opencode"`
}

// OpenCodeProviderConfig configures the OpenCode provider client.
type OpenCodeProviderConfig struct {
	BaseURL               string `json:"base_url"`
	Username              string `json:"username"`
	PasswordEnv           string `json:"password_env"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// OpenAIProviderConfig configures the OpenAI provider client.
type OpenAIProviderConfig struct {
	BaseURL               string `json:"base_url"`
	APIKeyEnv             string `json:"api_key_env"`
	Organization          string `json:"organization"`
	Project               string `json:"project"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// GatewayConfig configures HTTP status server bind settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// RoutingEnabled reports the initial routing toggle.
func (c RouterConfig) RoutingEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

func (c RouterConfig) WorkerCount() int {
	if c.Workers <= 0 {
		return defaultWorkers
	}
	return c.Workers
}

func (c RouterConfig) InboundQueueSize() int {
	if c.QueueSize <= 0 {
		return defaultQueueSize
	}
	return c.QueueSize
}

func (c RouterConfig) EventBufferSize() int {
	if c.EventBuffer <= 0 {
		return defaultEventBuffer
	}
	return c.EventBuffer
}

// CorrelationTTL is zero when pending waiters never expire.
func (c RouterConfig) CorrelationTTL() time.Duration {
	if c.CorrelationTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.CorrelationTTLSeconds) * time.Second
}

// Validate rejects settings that cannot be applied.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is required")
	}
	if c.Router.Workers < 0 {
		return fmt.Errorf("router.workers must not be negative, got %d", c.Router.Workers)
	}
	if c.Router.CorrelationTTLSeconds < 0 {
		return fmt.Errorf("router.correlation_ttl_seconds must not be negative, got %d", c.Router.CorrelationTTLSeconds)
	}

	switch strings.TrimSpace(c.Assistant.Provider) {
	case "", "openai", "opencode":
	default:
		return fmt.Errorf("unsupported assistant provider: %s", c.Assistant.Provider)
	}

	return nil
}

// LoadConfig resolves config.json, unmarshals it, and applies environment overrides.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	if token := strings.TrimSpace(os.Getenv(envTelegramBotToken)); token != "" {
		cfg.Channels.Telegram.Token = token
	}

	if rawAllowFrom := strings.TrimSpace(os.Getenv(envTelegramAllowFrom)); rawAllowFrom != "" {
		cfg.Channels.Telegram.AllowFrom = parseCSV(rawAllowFrom)
	}

	if raw := strings.TrimSpace(os.Getenv(envRouterEnabled)); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", envRouterEnabled, err)
		}
		cfg.Router.Enabled = &enabled
	}

	return nil
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is TGCMD_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w (checked %s and %s)", ErrConfigNotFound, candidates[0], candidates[1])
}
