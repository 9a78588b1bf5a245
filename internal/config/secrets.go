package config

// RedactedConfig returns a copy of cfg with sensitive fields replaced by
// the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Telegram.BotToken)
	redact(&out.Notify.DiscordWebhookURL)
	redact(&out.Server.APIKey)
	redact(&out.OneInch.APIKey)

	// Chains hold key material; rebuild the map so mutations to the
	// redacted copy never touch the original.
	out.Chains = make(map[string]ChainConfig, len(cfg.Chains))
	for name, chain := range cfg.Chains {
		redact(&chain.PrivateKey)
		redact(&chain.KeyPassword)
		out.Chains[name] = chain
	}

	// Copy slices so callers cannot mutate the original through the
	// redacted copy.
	if cfg.Notify.Events != nil {
		out.Notify.Events = make([]string, len(cfg.Notify.Events))
		copy(out.Notify.Events, cfg.Notify.Events)
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = make([]string, len(cfg.Server.CORSOrigins))
		copy(out.Server.CORSOrigins, cfg.Server.CORSOrigins)
	}
	if cfg.Telegram.Allowlist != nil {
		out.Telegram.Allowlist = make([]int64, len(cfg.Telegram.Allowlist))
		copy(out.Telegram.Allowlist, cfg.Telegram.Allowlist)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
