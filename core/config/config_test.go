package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Telegram:   TelegramConfig{Token: "123:abc"},
		Completion: CompletionConfig{OpenAIKey: "sk-test"},
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, Normalize(cfg))

	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
	assert.Equal(t, ProviderOpenAI, cfg.Completion.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Completion.Model)
	assert.Equal(t, "sk-test", cfg.Completion.APIKey)
	assert.Equal(t, DefaultSystemPrompt, cfg.Completion.SystemPrompt)
	assert.Equal(t, 30*time.Second, cfg.Completion.CompletionTimeout())
	assert.Equal(t, 3, cfg.Dialog.MaxTurns)
	assert.Equal(t, 20, cfg.Dialog.HistoryLimit)
	assert.Equal(t, time.Duration(0), cfg.Sessions.IdleTTL())
	assert.Equal(t, time.Minute, cfg.Sessions.SweepInterval())
	assert.Equal(t, 3*time.Second, cfg.Sender.AckTimeout())
}

func TestNormalizeErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing token", func(c *Config) { c.Telegram.Token = "" }},
		{"bad run mode", func(c *Config) { c.Telegram.RunMode = "carrier-pigeon" }},
		{"webhook without url", func(c *Config) { c.Telegram.RunMode = RunModeWebhook }},
		{"negative longpoll timeout", func(c *Config) { c.Telegram.LongPollTimeoutSeconds = -1 }},
		{"unknown provider", func(c *Config) { c.Completion.Provider = "eliza" }},
		{"missing api key", func(c *Config) { c.Completion.OpenAIKey = "" }},
		{"gemini without key", func(c *Config) { c.Completion.Provider = ProviderGemini }},
		{"negative history limit", func(c *Config) { c.Dialog.HistoryLimit = -5 }},
		{"negative idle ttl", func(c *Config) { c.Sessions.IdleTTLMinutes = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, Normalize(cfg))
		})
	}
	assert.Error(t, Normalize(nil))
}

func TestNormalizeGemini(t *testing.T) {
	cfg := validConfig()
	cfg.Completion.Provider = " Gemini "
	cfg.Completion.GeminiKey = "g-key"
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, ProviderGemini, cfg.Completion.Provider)
	assert.Equal(t, "g-key", cfg.Completion.APIKey)
	assert.Equal(t, "gemini-1.5-flash", cfg.Completion.Model)
}

func TestNormalizePollingAlias(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.RunMode = "polling"
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
}

func TestLoadYAMLWithEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
telegram:
  token: "from-yaml"
completion:
  provider: openai
  model: gpt-4o
dialog:
  max_turns: 5
ops:
  listen: " :9090 "
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("BOT_TOKEN", "from-env")
	t.Setenv("OPENAI_API_KEY", "sk-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Telegram.Token)
	assert.Equal(t, "gpt-4o", cfg.Completion.Model)
	assert.Equal(t, "sk-env", cfg.Completion.APIKey)
	assert.Equal(t, 5, cfg.Dialog.MaxTurns)
	assert.Equal(t, ":9090", cfg.Ops.Listen)
	assert.Same(t, cfg, cfg.CoreConfig())
}

func TestLoadMissingFileUsesEnv(t *testing.T) {
	t.Setenv("BOT_TOKEN", "env-only")
	t.Setenv("OPENAI_API_KEY", "sk-env")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "env-only", cfg.Telegram.Token)
}

func TestLoadAcceptsLegacyTokenVariable(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "legacy-token")
	t.Setenv("OPENAI_API_KEY", "sk-env")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "legacy-token", cfg.Telegram.Token)

	t.Setenv("BOT_TOKEN", "primary")
	cfg, err = Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "primary", cfg.Telegram.Token)
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("telegram: [unclosed"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}
