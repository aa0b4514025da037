// Package config loads service configuration from the environment so main
// stays lean. Tunables default to values safe for a single-operator
// deployment; only credentials are mandatory.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Chat transport.
	BotToken string `env:"BOT_TOKEN"`
	// OwnerID receives escalations and may query pending state. 0 disables
	// escalation messages (they are still logged).
	OwnerID int64 `env:"OWNER_ID" envDefault:"0"`

	// Mail transport.
	IMAPHost   string        `env:"IMAP_HOST" envDefault:"imap.gmail.com"`
	IMAPPort   int           `env:"IMAP_PORT" envDefault:"993"`
	IMAPUser   string        `env:"IMAP_USER"`
	IMAPPass   string        `env:"IMAP_PASS"`
	MailSender string        `env:"MAIL_SENDER" envDefault:"noreply@steampowered.com"`
	PollEvery  time.Duration `env:"POLL_INTERVAL" envDefault:"10s"`

	// Core policy.
	DailyLimit int `env:"DAILY_LIMIT" envDefault:"3"`
	// PendingTTL expires pending requests that never received a code.
	// 0 keeps them forever.
	PendingTTL time.Duration `env:"PENDING_TTL" envDefault:"0"`
	// SinglePendingFallback delivers an unmatched code to the only pending
	// requester instead of escalating. Matches the historical behavior; turn
	// off to force escalation of every unmatched code.
	SinglePendingFallback bool `env:"SINGLE_PENDING_FALLBACK" envDefault:"true"`

	// State.
	DataDir  string `env:"DATA_DIR" envDefault:"."`
	RedisURL string `env:"REDIS_URL"`

	// Ops HTTP surface.
	OpsAddr string `env:"OPS_ADDR" envDefault:":8080"`
}

// FromEnv parses and validates the full configuration.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports missing required settings. These are the only errors that
// may stop the process.
func (c Config) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}
	if c.IMAPUser == "" || c.IMAPPass == "" {
		return fmt.Errorf("IMAP_USER and IMAP_PASS are required")
	}
	if c.DailyLimit < 0 {
		return fmt.Errorf("DAILY_LIMIT must be non-negative, got %d", c.DailyLimit)
	}
	if c.PollEvery <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.PollEvery)
	}
	return nil
}
