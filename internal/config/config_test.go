package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
[app]
mode = "bot"

[telegram]
bot_token = "12345:token"
signal_chat_id = -100200300

[chains.solana]
rpc_url = "https://api.mainnet-beta.solana.com"
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Engine.MaxPositions != 1 {
		t.Errorf("max_positions = %d, want default 1", cfg.Engine.MaxPositions)
	}
	if cfg.Engine.CapitalPercent != 0.05 {
		t.Errorf("capital_percent = %v, want default 0.05", cfg.Engine.CapitalPercent)
	}
	if cfg.Engine.PollInterval.Duration != 10*time.Second {
		t.Errorf("poll_interval = %v, want default 10s", cfg.Engine.PollInterval.Duration)
	}
	if !cfg.Engine.DryRun {
		t.Error("dry_run = false, want default true")
	}
	if cfg.Redis.Enabled {
		t.Error("redis enabled by default, want disabled")
	}
	if cfg.S3.ArchiveInterval.Duration != 24*time.Hour {
		t.Errorf("archive_interval = %v, want default 24h", cfg.S3.ArchiveInterval.Duration)
	}
	if cfg.Telegram.BotToken != "12345:token" {
		t.Errorf("bot_token = %q", cfg.Telegram.BotToken)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadParsesDurationsAndSections(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, `
[app]
mode = "trade"
log_level = "debug"

[engine]
max_positions = 3
poll_interval = "30s"
quote_token = "USDC"

[telegram]
bot_token = "x"
signal_chat_id = 1
allowlist = [11, 22]

[redis]
enabled = true
price_ttl = "1m"

[chains.ethereum]
rpc_url = "https://eth.example.com"
private_key = "0xabc123"

[chains.solana]
rpc_url = "https://sol.example.com"
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Engine.PollInterval.Duration != 30*time.Second {
		t.Errorf("poll_interval = %v, want 30s", cfg.Engine.PollInterval.Duration)
	}
	if cfg.Engine.QuoteToken != "USDC" {
		t.Errorf("quote_token = %q, want USDC", cfg.Engine.QuoteToken)
	}
	if cfg.Redis.PriceTTL.Duration != time.Minute {
		t.Errorf("price_ttl = %v, want 1m", cfg.Redis.PriceTTL.Duration)
	}
	if len(cfg.Telegram.Allowlist) != 2 || cfg.Telegram.Allowlist[1] != 22 {
		t.Errorf("allowlist = %v, want [11 22]", cfg.Telegram.Allowlist)
	}
	if got := cfg.Chains["ethereum"].RPCURL; got != "https://eth.example.com" {
		t.Errorf("ethereum rpc = %q", got)
	}
	if len(cfg.Chains) != 2 {
		t.Errorf("chains = %d entries, want 2", len(cfg.Chains))
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TGBOT_MODE", "monitor")
	t.Setenv("TGBOT_ENGINE_DRY_RUN", "false")
	t.Setenv("TGBOT_ENGINE_POLL_INTERVAL", "5s")
	t.Setenv("TGBOT_POSTGRES_PASSWORD", "sekret")
	t.Setenv("TGBOT_TELEGRAM_ALLOWLIST", "1, 2,3")
	t.Setenv("TGBOT_CHAIN_BSC_RPC_URL", "https://bsc.example.com")

	cfg, err := Load(writeConfigFile(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.App.Mode != "monitor" {
		t.Errorf("mode = %q, want monitor", cfg.App.Mode)
	}
	if cfg.Engine.DryRun {
		t.Error("dry_run = true, want env override false")
	}
	if cfg.Engine.PollInterval.Duration != 5*time.Second {
		t.Errorf("poll_interval = %v, want 5s", cfg.Engine.PollInterval.Duration)
	}
	if cfg.Postgres.Password != "sekret" {
		t.Errorf("postgres password = %q", cfg.Postgres.Password)
	}
	if len(cfg.Telegram.Allowlist) != 3 || cfg.Telegram.Allowlist[2] != 3 {
		t.Errorf("allowlist = %v, want [1 2 3]", cfg.Telegram.Allowlist)
	}
	if got := cfg.Chains["bsc"].RPCURL; got != "https://bsc.example.com" {
		t.Errorf("bsc rpc = %q, want env-created chain entry", got)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Defaults()
	cfg.App.Mode = "warp"
	cfg.Engine.CapitalPercent = 1.5
	cfg.Engine.MaxPositions = 0
	cfg.Chains = map[string]ChainConfig{
		"dogechain": {RPCURL: "https://doge.example.com"},
		"ethereum":  {},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	for _, want := range []string{
		"unknown mode",
		"capital_percent",
		"max_positions",
		"unknown chain \"dogechain\"",
		"chains.ethereum: rpc_url",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestValidateRequiresTelegramInBotMode(t *testing.T) {
	cfg := Defaults()
	cfg.App.Mode = "bot"
	cfg.Chains = map[string]ChainConfig{"solana": {RPCURL: "https://sol.example.com"}}

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "bot_token") {
		t.Errorf("Validate() = %v, want bot_token requirement", err)
	}

	cfg.App.Mode = "monitor"
	if err := cfg.Validate(); err != nil {
		t.Errorf("monitor mode Validate() = %v, want nil without telegram", err)
	}
}

func TestValidateRequiresChainsForTrading(t *testing.T) {
	cfg := Defaults()
	cfg.App.Mode = "trade"

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "at least one chain") {
		t.Errorf("Validate() = %v, want chain requirement", err)
	}
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Telegram.BotToken = "12345:token"
	cfg.Postgres.Password = "hunter2"
	cfg.OneInch.APIKey = "1inch-key"
	cfg.Chains = map[string]ChainConfig{
		"ethereum": {RPCURL: "https://eth.example.com", PrivateKey: "0xdeadbeef"},
	}

	red := RedactedConfig(&cfg)

	if red.Telegram.BotToken != "***" {
		t.Errorf("bot token = %q, want ***", red.Telegram.BotToken)
	}
	if red.Postgres.Password != "***" {
		t.Errorf("postgres password = %q, want ***", red.Postgres.Password)
	}
	if red.Chains["ethereum"].PrivateKey != "***" {
		t.Errorf("chain key = %q, want ***", red.Chains["ethereum"].PrivateKey)
	}
	if red.Chains["ethereum"].RPCURL != "https://eth.example.com" {
		t.Error("rpc url was redacted, want kept")
	}
	if cfg.Chains["ethereum"].PrivateKey != "0xdeadbeef" {
		t.Error("original config mutated by redaction")
	}
}
