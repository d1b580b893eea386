package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// BotConfig holds credentials of a single bot identity.
type BotConfig struct {
	Token string `yaml:"token"`
	// Secret is embedded in the webhook path and must match on every inbound call.
	Secret string `yaml:"secret"`
}

// TelegramConfig holds settings shared by the user-facing and admin-facing bots.
type TelegramConfig struct {
	UserBot  BotConfig `yaml:"user_bot"`
	AdminBot BotConfig `yaml:"admin_bot"`
	// AdminID is the single identity allowed to drive the admin bot.
	AdminID int64 `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	// PublicURL is the externally reachable base URL used when registering webhooks.
	PublicURL string `yaml:"public_url" envconfig:"TELEGRAM_PUBLIC_URL"`
	// Offline skips the getMe handshake on startup (useful behind egress filters).
	Offline bool `yaml:"offline" envconfig:"TELEGRAM_OFFLINE"`
}

// WebhookConfig specifies the inbound HTTP listener.
type WebhookConfig struct {
	Listen         string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port           int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
	ReadTimeoutMS  int    `yaml:"read_timeout_ms" envconfig:"WEBHOOK_READ_TIMEOUT_MS"`
	WriteTimeoutMS int    `yaml:"write_timeout_ms" envconfig:"WEBHOOK_WRITE_TIMEOUT_MS"`
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

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": button presses
// - "message": standard text messages
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// SenderConfig tunes the asynchronous outbound dispatcher.
type SenderConfig struct {
	Workers        int `yaml:"workers" envconfig:"SENDER_WORKERS"`
	QueueSize      int `yaml:"queue_size" envconfig:"SENDER_QUEUE_SIZE"`
	MaxRetries     int `yaml:"max_retries" envconfig:"SENDER_MAX_RETRIES"`
	RetryBackoffMS int `yaml:"retry_backoff_ms" envconfig:"SENDER_RETRY_BACKOFF_MS"`
	MaxDurationMS  int `yaml:"max_duration_ms" envconfig:"SENDER_MAX_DURATION_MS"`
}

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Sender    SenderConfig    `yaml:"sender"`
}

// Load reads configuration from a YAML file and environment variables into dst.
// dst is usually a project config that embeds Config.
func Load(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", dst); err != nil {
		return fmt.Errorf("failed to process env: %w", err)
	}
	return nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	// Bot credentials are taken from env when present; they are never committed to YAML in prod.
	overrideFromEnv(&cfg.Telegram.UserBot.Token, "USER_BOT_TOKEN")
	overrideFromEnv(&cfg.Telegram.UserBot.Secret, "USER_WEBHOOK_SECRET")
	overrideFromEnv(&cfg.Telegram.AdminBot.Token, "ADMIN_BOT_TOKEN")
	overrideFromEnv(&cfg.Telegram.AdminBot.Secret, "ADMIN_WEBHOOK_SECRET")

	if strings.TrimSpace(cfg.Telegram.UserBot.Token) == "" {
		return fmt.Errorf("telegram.user_bot.token is required")
	}
	if strings.TrimSpace(cfg.Telegram.AdminBot.Token) == "" {
		return fmt.Errorf("telegram.admin_bot.token is required")
	}
	if strings.TrimSpace(cfg.Telegram.UserBot.Secret) == "" {
		return fmt.Errorf("telegram.user_bot.secret is required")
	}
	if strings.TrimSpace(cfg.Telegram.AdminBot.Secret) == "" {
		return fmt.Errorf("telegram.admin_bot.secret is required")
	}
	if cfg.Telegram.UserBot.Secret == cfg.Telegram.AdminBot.Secret {
		return fmt.Errorf("telegram.user_bot.secret and telegram.admin_bot.secret must differ")
	}
	if cfg.Telegram.AdminID <= 0 {
		return fmt.Errorf("telegram.admin_id must be > 0")
	}
	cfg.Telegram.PublicURL = strings.TrimRight(strings.TrimSpace(cfg.Telegram.PublicURL), "/")

	if cfg.Webhook.Port <= 0 {
		cfg.Webhook.Port = 8080
	}
	if cfg.Webhook.ReadTimeoutMS <= 0 {
		cfg.Webhook.ReadTimeoutMS = 10_000
	}
	if cfg.Webhook.WriteTimeoutMS <= 0 {
		cfg.Webhook.WriteTimeoutMS = 15_000
	}

	if cfg.Sender.MaxRetries < 0 {
		return fmt.Errorf("sender.max_retries must be >= 0")
	}

	allowed := map[string]struct{}{
		UpdateCallback: {},
		UpdateMessage:  {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}
	return nil
}

func overrideFromEnv(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}
