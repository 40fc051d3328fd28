package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token string `yaml:"token" envconfig:"BOT_TOKEN"`
	// LegacyToken is the variable older deployments export; used when Token is empty.
	LegacyToken string `yaml:"-" envconfig:"TELEGRAM_BOT_TOKEN"`
	RunMode     string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// SenderConfig tunes the outbound Telegram dispatcher.
type SenderConfig struct {
	QueueSize      int `yaml:"queue_size"`
	Workers        int `yaml:"workers"`
	MaxRetries     int `yaml:"max_retries"`
	RetryBackoffMS int `yaml:"retry_backoff_ms"`
	MaxDurationMS  int `yaml:"max_duration_ms"`
	// AckTimeoutMS bounds callback acknowledgements, which are best-effort.
	AckTimeoutMS int `yaml:"ack_timeout_ms"`
}

// CompletionConfig selects and tunes the LLM completion provider.
type CompletionConfig struct {
	Provider          string  `yaml:"provider" envconfig:"COMPLETION_PROVIDER"`
	Model             string  `yaml:"model" envconfig:"COMPLETION_MODEL"`
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url" envconfig:"COMPLETION_BASE_URL"`
	TimeoutSeconds    int     `yaml:"timeout_seconds" envconfig:"COMPLETION_TIMEOUT_SECONDS"`
	MaxTokens         int     `yaml:"max_tokens"`
	Temperature       float32 `yaml:"temperature"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	Concurrency       int     `yaml:"concurrency"`
	SystemPrompt      string  `yaml:"system_prompt"`

	OpenAIKey string `yaml:"-" envconfig:"OPENAI_API_KEY"`
	GeminiKey string `yaml:"-" envconfig:"GEMINI_API_KEY"`
}

// DialogConfig controls the conversational script.
type DialogConfig struct {
	MaxTurns     int `yaml:"max_turns" envconfig:"DIALOG_MAX_TURNS"`
	HistoryLimit int `yaml:"history_limit" envconfig:"DIALOG_HISTORY_LIMIT"`
}

// SessionsConfig controls the in-memory session store lifecycle.
// IdleTTLMinutes of 0 keeps sessions for the process lifetime.
type SessionsConfig struct {
	IdleTTLMinutes       int `yaml:"idle_ttl_minutes" envconfig:"SESSIONS_IDLE_TTL_MINUTES"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
}

// OpsConfig configures the optional operator HTTP endpoint.
type OpsConfig struct {
	Listen string `yaml:"listen" envconfig:"OPS_LISTEN"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// ProviderOpenAI selects the OpenAI chat completions API.
	ProviderOpenAI = "openai"
	// ProviderGemini selects the Google Gemini API.
	ProviderGemini = "gemini"
)

const (
	defaultModelOpenAI      = "gpt-4o-mini"
	defaultModelGemini      = "gemini-1.5-flash"
	defaultCompletionTO     = 30
	defaultRequestsPerSec   = 5
	defaultBurst            = 5
	defaultConcurrency      = 4
	defaultMaxTurns         = 3
	defaultHistoryLimit     = 20
	defaultSweepIntervalSec = 60
	defaultAckTimeoutMS     = 3000

	// DefaultSystemPrompt is the system instruction sent with every completion.
	DefaultSystemPrompt = "You are a helpful, empathetic assistant trained to help with emotional and psychological issues."
)

// Config aggregates the whole application configuration.
type Config struct {
	Telegram   TelegramConfig   `yaml:"telegram"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	Logging    LoggingConfig    `yaml:"logging"`
	Sender     SenderConfig     `yaml:"sender"`
	Completion CompletionConfig `yaml:"completion"`
	Dialog     DialogConfig     `yaml:"dialog"`
	Sessions   SessionsConfig   `yaml:"sessions"`
	Ops        OpsConfig        `yaml:"ops"`
}

// CoreConfig satisfies the runner's ConfigCarrier.
func (c *Config) CoreConfig() *Config {
	return c
}

// Load reads configuration from a YAML file and environment variables.
// A missing file is tolerated so the bot can be configured from env alone.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		cfg.Telegram.Token = strings.TrimSpace(cfg.Telegram.LegacyToken)
	}
	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required (BOT_TOKEN or TELEGRAM_BOT_TOKEN)")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	if cfg.Sender.AckTimeoutMS <= 0 {
		cfg.Sender.AckTimeoutMS = defaultAckTimeoutMS
	}

	if err := normalizeCompletion(&cfg.Completion); err != nil {
		return err
	}

	if cfg.Dialog.MaxTurns <= 0 {
		cfg.Dialog.MaxTurns = defaultMaxTurns
	}
	if cfg.Dialog.HistoryLimit < 0 {
		return fmt.Errorf("dialog.history_limit must be >= 0")
	}
	if cfg.Dialog.HistoryLimit == 0 {
		cfg.Dialog.HistoryLimit = defaultHistoryLimit
	}

	if cfg.Sessions.IdleTTLMinutes < 0 {
		return fmt.Errorf("sessions.idle_ttl_minutes must be >= 0")
	}
	if cfg.Sessions.SweepIntervalSeconds <= 0 {
		cfg.Sessions.SweepIntervalSeconds = defaultSweepIntervalSec
	}
	cfg.Ops.Listen = strings.TrimSpace(cfg.Ops.Listen)
	return nil
}

func normalizeCompletion(c *CompletionConfig) error {
	p := strings.ToLower(strings.TrimSpace(c.Provider))
	if p == "" {
		p = ProviderOpenAI
	}
	switch p {
	case ProviderOpenAI:
		if c.APIKey == "" {
			c.APIKey = c.OpenAIKey
		}
		if c.Model == "" {
			c.Model = defaultModelOpenAI
		}
	case ProviderGemini:
		if c.APIKey == "" {
			c.APIKey = c.GeminiKey
		}
		if c.Model == "" {
			c.Model = defaultModelGemini
		}
	default:
		return fmt.Errorf("invalid completion.provider %q; allowed: openai, gemini", c.Provider)
	}
	c.Provider = p

	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("completion api key is required for provider %q", p)
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = defaultCompletionTO
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("completion.max_tokens must be >= 0")
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = defaultRequestsPerSec
	}
	if c.Burst <= 0 {
		c.Burst = defaultBurst
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if strings.TrimSpace(c.SystemPrompt) == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	return nil
}

// CompletionTimeout returns the per-call completion deadline.
func (c CompletionConfig) CompletionTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// IdleTTL returns the session idle TTL; zero disables eviction.
func (s SessionsConfig) IdleTTL() time.Duration {
	return time.Duration(s.IdleTTLMinutes) * time.Minute
}

// SweepInterval returns how often the session janitor runs.
func (s SessionsConfig) SweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalSeconds) * time.Second
}

// AckTimeout returns the deadline for best-effort callback acknowledgements.
func (s SenderConfig) AckTimeout() time.Duration {
	return time.Duration(s.AckTimeoutMS) * time.Millisecond
}
