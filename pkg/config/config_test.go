package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadConfigFromEnvPath(t *testing.T) {
	path := writeConfig(t, `{
	  "channels": {"telegram": {"enabled": true, "token": "file-token", "allow_from": ["1"]}},
	  "router": {"enabled": false, "workers": 4, "correlation_ttl_seconds": 600},
	  "assistant": {"provider": "openai", "model": "openai/gpt-5-nano"},
	  "gateway": {"host": "127.0.0.1", "port": 18790},
	  "logging": {"format": "json", "level": "debug", "add_source": true}
	}`)

	t.Setenv("TGCMD_CONFIG", path)
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("TELEGRAM_ALLOW_FROM", "")
	t.Setenv("TGCMD_ROUTER_ENABLED", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Logging.Format != "json" {
		t.Fatalf("logging.format = %q, want %q", cfg.Logging.Format, "json")
	}
	if !cfg.Logging.AddSource {
		t.Fatal("logging.add_source = false, want true")
	}
	if cfg.Router.RoutingEnabled() {
		t.Fatal("router.enabled = true, want false")
	}
	if got := cfg.Router.WorkerCount(); got != 4 {
		t.Fatalf("router.workers = %d, want 4", got)
	}
	if got := cfg.Router.CorrelationTTL(); got != 10*time.Minute {
		t.Fatalf("correlation ttl = %s, want 10m", got)
	}
	if cfg.Channels.Telegram.Token != "file-token" {
		t.Fatalf("telegram token = %q, want file-token", cfg.Channels.Telegram.Token)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, `{"channels": {"telegram": {"token": "file-token"}}}`)

	t.Setenv("TGCMD_CONFIG", path)
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("TELEGRAM_ALLOW_FROM", " 10, ,20 ")
	t.Setenv("TGCMD_ROUTER_ENABLED", "false")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Channels.Telegram.Token != "env-token" {
		t.Fatalf("telegram token = %q, want env-token", cfg.Channels.Telegram.Token)
	}
	if got := cfg.Channels.Telegram.AllowFrom; len(got) != 2 || got[0] != "10" || got[1] != "20" {
		t.Fatalf("allow_from = %v, want [10 20]", got)
	}
	if cfg.Router.RoutingEnabled() {
		t.Fatal("expected env override to disable routing")
	}
}

func TestLoadConfigRejectsBadRouterEnabled(t *testing.T) {
	t.Setenv("TGCMD_CONFIG", writeConfig(t, `{}`))
	t.Setenv("TGCMD_ROUTER_ENABLED", "maybe")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for unparsable TGCMD_ROUTER_ENABLED")
	}
}

func TestLoadConfigInvalidEnvPath(t *testing.T) {
	t.Setenv("TGCMD_CONFIG", filepath.Join(t.TempDir(), "missing.json"))

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing config path")
	}
}

func TestLoadConfigReportsNotFound(t *testing.T) {
	t.Setenv("TGCMD_CONFIG", "")
	t.Chdir(t.TempDir())

	_, err := LoadConfig()
	if !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("LoadConfig error = %v, want ErrConfigNotFound", err)
	}
}

func TestRouterDefaults(t *testing.T) {
	t.Parallel()

	var cfg RouterConfig
	if !cfg.RoutingEnabled() {
		t.Fatal("routing should default to enabled")
	}
	if cfg.WorkerCount() != defaultWorkers {
		t.Fatalf("workers = %d, want %d", cfg.WorkerCount(), defaultWorkers)
	}
	if cfg.InboundQueueSize() != defaultQueueSize {
		t.Fatalf("queue size = %d, want %d", cfg.InboundQueueSize(), defaultQueueSize)
	}
	if cfg.EventBufferSize() != defaultEventBuffer {
		t.Fatalf("event buffer = %d, want %d", cfg.EventBufferSize(), defaultEventBuffer)
	}
	if cfg.CorrelationTTL() != 0 {
		t.Fatalf("ttl = %s, want 0", cfg.CorrelationTTL())
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "zero value", cfg: Config{}},
		{name: "negative workers", cfg: Config{Router: RouterConfig{Workers: -1}}, wantErr: true},
		{name: "negative ttl", cfg: Config{Router: RouterConfig{CorrelationTTLSeconds: -5}}, wantErr: true},
		{name: "opencode", cfg: Config{Assistant: AssistantConfig{Provider: "opencode"}}},
		{name: "unknown provider", cfg: Config{Assistant: AssistantConfig{Provider: "llama"}}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
