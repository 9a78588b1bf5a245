package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/rehan1020/tgbot/internal/blob/s3"
	"github.com/rehan1020/tgbot/internal/cache/redis"
	"github.com/rehan1020/tgbot/internal/chain"
	"github.com/rehan1020/tgbot/internal/config"
	"github.com/rehan1020/tgbot/internal/dex"
	"github.com/rehan1020/tgbot/internal/dex/jupiter"
	"github.com/rehan1020/tgbot/internal/dex/oneinch"
	"github.com/rehan1020/tgbot/internal/domain"
	"github.com/rehan1020/tgbot/internal/engine"
	"github.com/rehan1020/tgbot/internal/notify"
	"github.com/rehan1020/tgbot/internal/store/postgres"
	"github.com/rehan1020/tgbot/internal/telegram"
	"github.com/rehan1020/tgbot/internal/wallet"
)

// Dependencies bundles everything the application modes need. Wire
// constructs it; the returned cleanup function tears it down in reverse
// order.
type Dependencies struct {
	// Postgres
	Store     *postgres.Client
	Positions domain.PositionStore
	Trades    domain.TradeLogStore
	Users     domain.UserStore
	Audit     domain.AuditStore

	// Redis (nil unless enabled)
	Redis       *redis.Client
	PriceCache  domain.PriceCache
	Bus         domain.EventBus
	RateLimiter domain.RateLimiter

	// S3 (nil unless enabled)
	Archiver domain.Archiver

	// Trading (nil in monitor mode)
	Registry *dex.Registry
	Resolver domain.ChainResolver
	Engine   *engine.Engine

	// Telegram Bot API client (nil without a bot token)
	Telegram *telegram.Client

	// Notifications
	Notifier *notify.Notifier
	Hooks    *notify.Hooks
}

// needsTrading reports whether the mode runs the lifecycle engine and
// therefore needs DEX backends and the chain resolver.
func needsTrading(mode string) bool {
	return mode == "bot" || mode == "trade"
}

// Wire constructs the concrete dependency graph from the configuration.
// The cleanup function must be called on shutdown; it is safe to call
// even when Wire returns an error.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	mode := strings.ToLower(cfg.App.Mode)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL: every mode persists through the position store. ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	}, logger)
	if err != nil {
		cleanup()
		return nil, cleanup, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, cleanup, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Store = pgClient
	deps.Positions = postgres.NewPositionStore(pool)
	deps.Trades = postgres.NewTradeLogStore(pool)
	deps.Users = postgres.NewUserStore(pool)
	deps.Audit = postgres.NewAuditStore(pool)

	// --- Redis: optional price cache, event bus, and rate limiter. ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, cleanup, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Redis = redisClient
		deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Redis.PriceTTL.Duration)
		deps.Bus = redis.NewEventBus(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	}

	// --- S3: optional archive of closed positions and trade history. ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, cleanup, fmt.Errorf("wire: s3: %w", err)
		}

		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			deps.Positions,
			deps.Trades,
			deps.Audit,
		)
	}

	// --- Telegram Bot API client, shared by the listener and notifier. ---
	if cfg.Telegram.BotToken != "" {
		tgClient, err := telegram.NewClient(telegram.ClientConfig{
			Token:  cfg.Telegram.BotToken,
			APIURL: cfg.Telegram.APIURL,
		})
		if err != nil {
			cleanup()
			return nil, cleanup, fmt.Errorf("wire: telegram: %w", err)
		}
		deps.Telegram = tgClient
	}

	// --- Notifications. ---
	var senders []notify.Sender
	if deps.Telegram != nil {
		chatID := cfg.Telegram.NotifyChatID
		if chatID == 0 {
			chatID = cfg.Telegram.SignalChatID
		}
		if chatID != 0 {
			senders = append(senders, notify.NewTelegramSender(deps.Telegram, chatID))
		}
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	deps.Hooks = notify.NewHooks(deps.Notifier)

	// --- Trading: resolver, DEX backends, lifecycle engine. ---
	if needsTrading(mode) {
		deps.Resolver = chain.NewDetector(chain.Config{
			DexScreenerURL:   cfg.Resolver.DexScreenerURL,
			GeckoTerminalURL: cfg.Resolver.GeckoTerminalURL,
			Timeout:          cfg.Resolver.Timeout.Duration,
		}, logger)

		registry, err := buildRegistry(cfg, logger)
		if err != nil {
			cleanup()
			return nil, cleanup, fmt.Errorf("wire: backends: %w", err)
		}
		closers = append(closers, func() {
			if err := registry.CloseAll(); err != nil {
				logger.Warn("closing backends", slog.String("error", err.Error()))
			}
		})
		deps.Registry = registry

		eng, err := engine.New(engine.Config{
			MaxPositions:    cfg.Engine.MaxPositions,
			CapitalPercent:  cfg.Engine.CapitalPercent,
			SlippagePercent: cfg.Engine.SlippagePercent,
			PollInterval:    cfg.Engine.PollInterval.Duration,
			DryRun:          cfg.Engine.DryRun,
			QuoteToken:      cfg.Engine.QuoteToken,
		}, engine.Dependencies{
			Positions: deps.Positions,
			Trades:    deps.Trades,
			Backends:  registry,
			Resolver:  deps.Resolver,
			Prices:    deps.PriceCache,
			Bus:       deps.Bus,
		}, logger)
		if err != nil {
			cleanup()
			return nil, cleanup, fmt.Errorf("wire: engine: %w", err)
		}
		eng.AddHook(deps.Hooks)
		deps.Engine = eng
	}

	return deps, cleanup, nil
}

// buildRegistry creates one DEX backend per configured chain. A chain
// without usable key material still gets a backend: quotes and prices
// work, swaps are refused until a key is supplied.
func buildRegistry(cfg *config.Config, logger *slog.Logger) (*dex.Registry, error) {
	registry := dex.NewRegistry()

	for name, chainCfg := range cfg.Chains {
		ch := domain.Chain(strings.ToLower(name))
		if !ch.Valid() {
			_ = registry.CloseAll()
			return nil, fmt.Errorf("unknown chain %q", name)
		}

		key, err := wallet.LoadKey(wallet.KeyConfig{
			Chain:            ch,
			RawKey:           chainCfg.PrivateKey,
			EncryptedKeyPath: chainCfg.EncryptedKeyPath,
			KeyPassword:      chainCfg.KeyPassword,
		})
		if err != nil {
			if !errors.Is(err, domain.ErrWalletLocked) {
				_ = registry.CloseAll()
				return nil, fmt.Errorf("%s wallet: %w", ch, err)
			}
			logger.Warn("no wallet key, backend is read-only", slog.String("chain", string(ch)))
		}

		var backend domain.DEX
		if ch == domain.ChainSolana {
			backend, err = jupiter.New(jupiter.Config{
				RPCURL:     chainCfg.RPCURL,
				QuoteURL:   cfg.Jupiter.QuoteURL,
				SwapURL:    cfg.Jupiter.SwapURL,
				PriceURL:   cfg.Jupiter.PriceURL,
				PrivateKey: key,
			}, logger)
		} else {
			backend, err = oneinch.New(oneinch.Config{
				Chain:      ch,
				APIKey:     cfg.OneInch.APIKey,
				RPCURL:     chainCfg.RPCURL,
				BaseURL:    cfg.OneInch.BaseURL,
				PriceURL:   cfg.OneInch.PriceURL,
				PrivateKey: key,
			}, logger)
		}
		if err != nil {
			_ = registry.CloseAll()
			return nil, fmt.Errorf("%s backend: %w", ch, err)
		}
		registry.Register(backend)
	}

	return registry, nil
}
