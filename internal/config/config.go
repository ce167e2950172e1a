// Package config turns viper settings and environment secrets into the
// typed configuration the bot is built from.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"

	"github.com/jdelaire/openbot/core/ratelimit"
	"github.com/jdelaire/openbot/internal/keychain"
)

// ErrMissingToken is returned when an enabled adapter has no token.
var ErrMissingToken = errors.New("missing bot token")

type Config struct {
	// Owners lists owner identities per platform.
	Owners           map[string][]string
	TrustedPlatforms []string
	Prefixes         []string
	RateLimit        ratelimit.Config
	CooldownHorizon  time.Duration
	SessionTTL       time.Duration
	JanitorSchedule  string
	CommandsFile     string
	Socket           string

	Access   AccessConfig
	Telegram TelegramConfig
	Discord  DiscordConfig
	Webchat  WebchatConfig
	Logging  LoggingConfig
}

type AccessConfig struct {
	// DB is the SQLite path. Empty keeps access lists in memory.
	DB string
	// Banned and BlacklistedChats seed the lists, as "platform:id" or a
	// bare id for every platform.
	Banned           []Scoped
	BlacklistedChats []Scoped
}

// Scoped is an identity on one platform, or on every platform when
// Platform is "*".
type Scoped struct {
	Platform string
	ID       string
}

type TelegramConfig struct {
	Enabled     bool
	BaseURL     string
	PollTimeout time.Duration
}

type DiscordConfig struct {
	Enabled bool
}

type WebchatConfig struct {
	Enabled bool
	Listen  string
	Admins  []string
}

type LoggingConfig struct {
	Level     string
	Format    string
	AddSource bool
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("prefixes", []string{"/", "!", "."})
	v.SetDefault("trusted_platforms", []string{})

	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("rate_limit.max", 10)
	v.SetDefault("rate_limit.strikes", 3)
	v.SetDefault("rate_limit.block", 5*time.Minute)
	v.SetDefault("rate_limit.table_limit", 10000)

	v.SetDefault("cooldown.horizon", time.Hour)
	v.SetDefault("sessions.ttl", 2*time.Minute)
	v.SetDefault("janitor.schedule", "*/5 * * * *")
	v.SetDefault("commands_file", "")
	v.SetDefault("socket", "/tmp/openbot/openbot.sock")

	v.SetDefault("access.db", "")
	v.SetDefault("access.banned", []string{})
	v.SetDefault("access.blacklisted_chats", []string{})

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.base_url", "https://api.telegram.org")
	v.SetDefault("telegram.poll_timeout", 30*time.Second)
	v.SetDefault("discord.enabled", false)
	v.SetDefault("webchat.enabled", false)
	v.SetDefault("webchat.listen", "127.0.0.1:8089")
	v.SetDefault("webchat.admins", []string{})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.add_source", false)
}

// FromViper reads and validates the configuration.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Owners:           make(map[string][]string),
		TrustedPlatforms: v.GetStringSlice("trusted_platforms"),
		Prefixes:         v.GetStringSlice("prefixes"),
		RateLimit: ratelimit.Config{
			Window:     v.GetDuration("rate_limit.window"),
			Max:        v.GetInt("rate_limit.max"),
			Strikes:    v.GetInt("rate_limit.strikes"),
			Block:      v.GetDuration("rate_limit.block"),
			TableLimit: v.GetInt("rate_limit.table_limit"),
		},
		CooldownHorizon: v.GetDuration("cooldown.horizon"),
		SessionTTL:      v.GetDuration("sessions.ttl"),
		JanitorSchedule: strings.TrimSpace(v.GetString("janitor.schedule")),
		CommandsFile:    strings.TrimSpace(v.GetString("commands_file")),
		Socket:          strings.TrimSpace(v.GetString("socket")),
		Access: AccessConfig{
			DB:               strings.TrimSpace(v.GetString("access.db")),
			Banned:           parseScoped(v.GetStringSlice("access.banned")),
			BlacklistedChats: parseScoped(v.GetStringSlice("access.blacklisted_chats")),
		},
		Telegram: TelegramConfig{
			Enabled:     v.GetBool("telegram.enabled"),
			BaseURL:     strings.TrimRight(v.GetString("telegram.base_url"), "/"),
			PollTimeout: v.GetDuration("telegram.poll_timeout"),
		},
		Discord: DiscordConfig{Enabled: v.GetBool("discord.enabled")},
		Webchat: WebchatConfig{
			Enabled: v.GetBool("webchat.enabled"),
			Listen:  v.GetString("webchat.listen"),
			Admins:  v.GetStringSlice("webchat.admins"),
		},
		Logging: LoggingConfig{
			Level:     v.GetString("logging.level"),
			Format:    v.GetString("logging.format"),
			AddSource: v.GetBool("logging.add_source"),
		},
	}

	for platform, ids := range v.GetStringMapStringSlice("owners") {
		cfg.Owners[strings.ToLower(platform)] = ids
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.RateLimit.Window <= 0 || c.RateLimit.Max <= 0 {
		return fmt.Errorf("rate_limit.window and rate_limit.max must be positive")
	}
	if c.RateLimit.Strikes <= 0 || c.RateLimit.Block <= 0 {
		return fmt.Errorf("rate_limit.strikes and rate_limit.block must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("sessions.ttl must be positive")
	}
	if c.CooldownHorizon <= 0 {
		return fmt.Errorf("cooldown.horizon must be positive")
	}
	if len(c.Prefixes) == 0 {
		return fmt.Errorf("prefixes must not be empty")
	}
	return nil
}

// Enabled reports the names of the enabled adapters.
func (c Config) Enabled() []string {
	var out []string
	if c.Telegram.Enabled {
		out = append(out, "telegram")
	}
	if c.Discord.Enabled {
		out = append(out, "discord")
	}
	if c.Webchat.Enabled {
		out = append(out, "webchat")
	}
	return out
}

func parseScoped(entries []string) []Scoped {
	out := make([]Scoped, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		platform, id, ok := strings.Cut(e, ":")
		if !ok {
			platform, id = "*", e
		}
		out = append(out, Scoped{Platform: strings.ToLower(platform), ID: id})
	}
	return out
}

// Secrets are the adapter tokens. They come from the environment and never
// from the config file.
type Secrets struct {
	TelegramToken string `env:"OPENBOT_TELEGRAM_TOKEN"`
	DiscordToken  string `env:"OPENBOT_DISCORD_TOKEN"`
}

// LoadSecrets parses the environment. Empty tokens are looked up with
// fallback, keyed by account name; fallback may be nil.
func LoadSecrets(fallback func(account string) (string, error)) (Secrets, error) {
	var s Secrets
	if err := env.Parse(&s); err != nil {
		return Secrets{}, fmt.Errorf("parse secrets: %w", err)
	}
	if fallback == nil {
		return s, nil
	}
	if s.TelegramToken == "" {
		s.TelegramToken, _ = fallback(keychain.TelegramToken)
	}
	if s.DiscordToken == "" {
		s.DiscordToken, _ = fallback(keychain.DiscordToken)
	}
	return s, nil
}

// Check reports ErrMissingToken for an enabled adapter without a token.
func (s Secrets) Check(cfg Config) error {
	if cfg.Telegram.Enabled && s.TelegramToken == "" {
		return fmt.Errorf("telegram: %w (set OPENBOT_TELEGRAM_TOKEN or run `openbot secret set telegram`)", ErrMissingToken)
	}
	if cfg.Discord.Enabled && s.DiscordToken == "" {
		return fmt.Errorf("discord: %w (set OPENBOT_DISCORD_TOKEN or run `openbot secret set discord`)", ErrMissingToken)
	}
	return nil
}
