package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TGBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TGBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set
// (i.e. not empty). This lets operators inject secrets at deploy time
// without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── App ──
	setStr(&cfg.App.Mode, "TGBOT_MODE")
	setStr(&cfg.App.LogLevel, "TGBOT_LOG_LEVEL")

	// ── Engine ──
	setInt(&cfg.Engine.MaxPositions, "TGBOT_ENGINE_MAX_POSITIONS")
	setFloat64(&cfg.Engine.CapitalPercent, "TGBOT_ENGINE_CAPITAL_PERCENT")
	setFloat64(&cfg.Engine.SlippagePercent, "TGBOT_ENGINE_SLIPPAGE_PERCENT")
	setDuration(&cfg.Engine.PollInterval, "TGBOT_ENGINE_POLL_INTERVAL")
	setBool(&cfg.Engine.DryRun, "TGBOT_ENGINE_DRY_RUN")
	setStr(&cfg.Engine.QuoteToken, "TGBOT_ENGINE_QUOTE_TOKEN")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "TGBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "TGBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TGBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TGBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TGBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TGBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TGBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TGBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TGBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TGBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "TGBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "TGBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TGBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TGBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TGBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TGBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TGBOT_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.PriceTTL, "TGBOT_REDIS_PRICE_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "TGBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "TGBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TGBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "TGBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TGBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TGBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TGBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TGBOT_S3_FORCE_PATH_STYLE")
	setDuration(&cfg.S3.ArchiveInterval, "TGBOT_S3_ARCHIVE_INTERVAL")
	setInt(&cfg.S3.RetentionDays, "TGBOT_S3_RETENTION_DAYS")

	// ── Telegram ──
	setStr(&cfg.Telegram.BotToken, "TGBOT_TELEGRAM_BOT_TOKEN")
	setStr(&cfg.Telegram.APIURL, "TGBOT_TELEGRAM_API_URL")
	setInt64(&cfg.Telegram.SignalChatID, "TGBOT_TELEGRAM_SIGNAL_CHAT_ID")
	setInt64(&cfg.Telegram.NotifyChatID, "TGBOT_TELEGRAM_NOTIFY_CHAT_ID")
	setInt64Slice(&cfg.Telegram.Allowlist, "TGBOT_TELEGRAM_ALLOWLIST")
	setDuration(&cfg.Telegram.PollTimeout, "TGBOT_TELEGRAM_POLL_TIMEOUT")

	// ── Notify ──
	setStr(&cfg.Notify.DiscordWebhookURL, "TGBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TGBOT_NOTIFY_EVENTS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TGBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TGBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TGBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "TGBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "TGBOT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "TGBOT_SERVER_RATE_LIMIT_WINDOW")

	// ── Chains ──
	// Per-chain overrides use the chain name: TGBOT_CHAIN_SOLANA_RPC_URL,
	// TGBOT_CHAIN_ETHEREUM_PRIVATE_KEY, and so on. A variable for a chain
	// absent from the TOML file creates the chain entry.
	applyChainOverrides(cfg)

	// ── 1inch / Jupiter / Resolver ──
	setStr(&cfg.OneInch.APIKey, "TGBOT_ONEINCH_API_KEY")
	setStr(&cfg.OneInch.BaseURL, "TGBOT_ONEINCH_BASE_URL")
	setStr(&cfg.OneInch.PriceURL, "TGBOT_ONEINCH_PRICE_URL")
	setStr(&cfg.Jupiter.QuoteURL, "TGBOT_JUPITER_QUOTE_URL")
	setStr(&cfg.Jupiter.SwapURL, "TGBOT_JUPITER_SWAP_URL")
	setStr(&cfg.Jupiter.PriceURL, "TGBOT_JUPITER_PRICE_URL")
	setStr(&cfg.Resolver.DexScreenerURL, "TGBOT_RESOLVER_DEXSCREENER_URL")
	setStr(&cfg.Resolver.GeckoTerminalURL, "TGBOT_RESOLVER_GECKOTERMINAL_URL")
	setDuration(&cfg.Resolver.Timeout, "TGBOT_RESOLVER_TIMEOUT")
}

// knownChainNames are the chain keys probed for TGBOT_CHAIN_* overrides.
var knownChainNames = []string{"solana", "ethereum", "sepolia", "goerli", "bsc", "base", "arbitrum"}

func applyChainOverrides(cfg *Config) {
	if cfg.Chains == nil {
		cfg.Chains = map[string]ChainConfig{}
	}
	for _, name := range knownChainNames {
		prefix := "TGBOT_CHAIN_" + strings.ToUpper(name) + "_"
		chain := cfg.Chains[name]
		before := chain
		setStr(&chain.RPCURL, prefix+"RPC_URL")
		setStr(&chain.PrivateKey, prefix+"PRIVATE_KEY")
		setStr(&chain.EncryptedKeyPath, prefix+"ENCRYPTED_KEY_PATH")
		setStr(&chain.KeyPassword, prefix+"KEY_PASSWORD")
		if _, exists := cfg.Chains[name]; exists || chain != before {
			cfg.Chains[name] = chain
		}
	}
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

func setInt64Slice(dst *[]int64, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]int64, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if n, err := strconv.ParseInt(p, 10, 64); err == nil {
				cleaned = append(cleaned, n)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
