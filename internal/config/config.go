// Package config defines the top-level configuration for the bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rehan1020/tgbot/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by TGBOT_* environment
// variables.
type Config struct {
	App      AppConfig              `toml:"app"`
	Engine   EngineConfig           `toml:"engine"`
	Postgres PostgresConfig         `toml:"postgres"`
	Redis    RedisConfig            `toml:"redis"`
	S3       S3Config               `toml:"s3"`
	Telegram TelegramConfig         `toml:"telegram"`
	Notify   NotifyConfig           `toml:"notify"`
	Server   ServerConfig           `toml:"server"`
	Chains   map[string]ChainConfig `toml:"chains"`
	OneInch  OneInchConfig          `toml:"oneinch"`
	Jupiter  JupiterConfig          `toml:"jupiter"`
	Resolver ResolverConfig         `toml:"resolver"`
}

// AppConfig holds process-level settings.
type AppConfig struct {
	// Mode selects which subsystems run: "bot" (Telegram listener, engine,
	// API), "trade" (engine + HTTP intake, no Telegram listener), or
	// "monitor" (read-only API, engine not started).
	Mode     string `toml:"mode"`
	LogLevel string `toml:"log_level"`
}

// EngineConfig holds position lifecycle parameters.
type EngineConfig struct {
	// MaxPositions caps concurrently open (pending + active) positions.
	MaxPositions int `toml:"max_positions"`
	// CapitalPercent is the fraction of the quote balance committed per
	// entry (0.05 = 5%).
	CapitalPercent float64 `toml:"capital_percent"`
	// SlippagePercent is the swap tolerance fraction (0.01 = 1%).
	SlippagePercent float64  `toml:"slippage_percent"`
	PollInterval    duration `toml:"poll_interval"`
	// DryRun starts the engine in simulation mode. Admins can flip it at
	// runtime with /dryrun.
	DryRun bool `toml:"dry_run"`
	// QuoteToken is the default quote symbol when a pair name does not
	// carry one.
	QuoteToken string `toml:"quote_token"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Redis is optional: it
// backs the price cache, the event bus behind /ws, and API rate
// limiting; everything degrades gracefully without it.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	// PriceTTL bounds how long cached price observations survive.
	PriceTTL duration `toml:"price_ttl"`
}

// S3Config holds S3-compatible object storage parameters for the
// archive journal. Optional.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	// ArchiveInterval is the cadence of the archive ticker.
	ArchiveInterval duration `toml:"archive_interval"`
	// RetentionDays sets the archive cutoff: rows closed or recorded more
	// than this many days ago are exported.
	RetentionDays int `toml:"retention_days"`
}

// TelegramConfig holds the bot listener parameters.
type TelegramConfig struct {
	BotToken string `toml:"bot_token"`
	// APIURL overrides the Telegram API host, mainly for tests.
	APIURL string `toml:"api_url"`
	// SignalChatID is the chat whose messages are scanned for signals.
	SignalChatID int64 `toml:"signal_chat_id"`
	// NotifyChatID receives operator notifications; defaults to the
	// signal chat when unset.
	NotifyChatID int64 `toml:"notify_chat_id"`
	// Allowlist restricts command access to these user IDs when non-empty.
	Allowlist   []int64  `toml:"allowlist"`
	PollTimeout duration `toml:"poll_timeout"`
}

// NotifyConfig holds notification channel settings. The Telegram sender
// reuses the bot token from [telegram].
type NotifyConfig struct {
	DiscordWebhookURL string `toml:"discord_webhook_url"`
	// Events filters which lifecycle events are delivered; empty means all.
	Events []string `toml:"events"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimit caps signal submissions per client IP within
	// RateLimitWindow. Zero disables limiting. Requires Redis.
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// ChainConfig holds per-chain node access and key material. The map key
// under [chains.<name>] must be a supported chain name.
type ChainConfig struct {
	RPCURL           string `toml:"rpc_url"`
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// OneInchConfig holds 1inch API parameters shared by all EVM chains.
type OneInchConfig struct {
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
	PriceURL string `toml:"price_url"`
}

// JupiterConfig holds Jupiter API parameters for the Solana backend.
// Empty URLs fall back to the public v6 endpoints.
type JupiterConfig struct {
	QuoteURL string `toml:"quote_url"`
	SwapURL  string `toml:"swap_url"`
	PriceURL string `toml:"price_url"`
}

// ResolverConfig holds chain-detection lookup parameters.
type ResolverConfig struct {
	DexScreenerURL   string   `toml:"dexscreener_url"`
	GeckoTerminalURL string   `toml:"geckoterminal_url"`
	Timeout          duration `toml:"timeout"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder
// can parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// Load starts from these and layers the TOML file and environment on top.
func Defaults() Config {
	return Config{
		App: AppConfig{
			Mode:     "bot",
			LogLevel: "info",
		},
		Engine: EngineConfig{
			MaxPositions:    1,
			CapitalPercent:  0.05,
			SlippagePercent: 0.01,
			PollInterval:    duration{10 * time.Second},
			DryRun:          true,
			QuoteToken:      "USDT",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "tgbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			PriceTTL:   duration{5 * time.Minute},
		},
		S3: S3Config{
			Enabled:         false,
			Endpoint:        "http://localhost:9000",
			Region:          "us-east-1",
			Bucket:          "tgbot-archive",
			UseSSL:          false,
			ForcePathStyle:  true,
			ArchiveInterval: duration{24 * time.Hour},
			RetentionDays:   90,
		},
		Telegram: TelegramConfig{
			PollTimeout: duration{25 * time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"position_created", "position_opened", "position_closed", "error"},
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       10,
			RateLimitWindow: duration{time.Minute},
		},
		Chains: map[string]ChainConfig{},
		Resolver: ResolverConfig{
			Timeout: duration{10 * time.Second},
		},
	}
}

// validModes enumerates the accepted values for AppConfig.Mode.
var validModes = map[string]bool{
	"bot":     true,
	"trade":   true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for AppConfig.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.App.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("app: unknown mode %q (valid: bot, trade, monitor)", c.App.Mode))
	}
	if !validLogLevels[strings.ToLower(c.App.LogLevel)] {
		errs = append(errs, fmt.Sprintf("app: unknown log_level %q (valid: debug, info, warn, error)", c.App.LogLevel))
	}

	// Engine
	if c.Engine.MaxPositions < 1 {
		errs = append(errs, "engine: max_positions must be >= 1")
	}
	if c.Engine.CapitalPercent <= 0 || c.Engine.CapitalPercent > 1 {
		errs = append(errs, fmt.Sprintf("engine: capital_percent must be in (0, 1], got %v", c.Engine.CapitalPercent))
	}
	if c.Engine.SlippagePercent < 0 || c.Engine.SlippagePercent >= 1 {
		errs = append(errs, fmt.Sprintf("engine: slippage_percent must be in [0, 1), got %v", c.Engine.SlippagePercent))
	}
	if c.Engine.PollInterval.Duration <= 0 {
		errs = append(errs, "engine: poll_interval must be positive")
	}

	// Telegram — the listener needs credentials in bot mode; the other
	// modes only need them when notifications are pointed at a chat.
	if mode == "bot" {
		if c.Telegram.BotToken == "" {
			errs = append(errs, "telegram: bot_token is required for mode bot")
		}
		if c.Telegram.SignalChatID == 0 {
			errs = append(errs, "telegram: signal_chat_id is required for mode bot")
		}
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.ArchiveInterval.Duration <= 0 {
			errs = append(errs, "s3: archive_interval must be positive")
		}
		if c.S3.RetentionDays < 0 {
			errs = append(errs, "s3: retention_days must be >= 0")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateLimitWindow.Duration <= 0 {
			errs = append(errs, "server: rate_limit_window must be positive when rate_limit is set")
		}
	}

	// Chains — names must be supported, and trading needs at least a node
	// endpoint per configured chain.
	for name, chain := range c.Chains {
		if !domain.Chain(name).Valid() {
			errs = append(errs, fmt.Sprintf("chains: unknown chain %q", name))
			continue
		}
		if chain.RPCURL == "" {
			errs = append(errs, fmt.Sprintf("chains.%s: rpc_url must not be empty", name))
		}
		if chain.EncryptedKeyPath != "" && chain.KeyPassword == "" {
			errs = append(errs, fmt.Sprintf("chains.%s: key_password is required when encrypted_key_path is set", name))
		}
	}
	if (mode == "bot" || mode == "trade") && len(c.Chains) == 0 {
		errs = append(errs, "chains: at least one chain must be configured for trading modes")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
