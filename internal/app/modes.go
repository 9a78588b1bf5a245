package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rehan1020/tgbot/internal/server"
	"github.com/rehan1020/tgbot/internal/server/handler"
	"github.com/rehan1020/tgbot/internal/server/ws"
	"github.com/rehan1020/tgbot/internal/telegram"
)

// shutdownGrace bounds how long the HTTP server may drain in-flight
// requests after cancellation.
const shutdownGrace = 10 * time.Second

// BotMode runs the full bot: the Telegram listener feeding signals into
// the engine, the monitor loop, the HTTP API, and the archive ticker.
func (a *App) BotMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting bot mode",
		slog.Bool("dry_run", deps.Engine.DryRun()),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Engine.Run(ctx)
	})

	bot, err := telegram.NewBot(telegram.BotConfig{
		SignalChatID: a.cfg.Telegram.SignalChatID,
		Allowlist:    a.cfg.Telegram.Allowlist,
		PollTimeout:  a.cfg.Telegram.PollTimeout.Duration,
		Mode:         a.cfg.App.Mode,
		PollInterval: a.cfg.Engine.PollInterval.Duration,
	}, telegram.BotDeps{
		Client:    deps.Telegram,
		Engine:    deps.Engine,
		Positions: deps.Positions,
		Users:     deps.Users,
		Backends:  deps.Registry,
		Notify:    deps.Hooks,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("bot mode: %w", err)
	}
	g.Go(func() error {
		return bot.Run(ctx)
	})

	a.startArchiver(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	return g.Wait()
}

// TradeMode runs the engine without the Telegram listener; signals
// arrive over POST /api/signals only.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode",
		slog.Bool("dry_run", deps.Engine.DryRun()),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Engine.Run(ctx)
	})

	a.startArchiver(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	return g.Wait()
}

// MonitorMode serves the read-only API over existing positions. The
// engine does not run and no swaps can happen.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	// The API is the whole point of this mode; ignore server.enabled.
	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// startHTTPServer adds the HTTP server and, when an event bus exists,
// the WebSocket hub to the errgroup. Handlers that lack a dependency in
// the current mode are simply not registered.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	var dryRun func() bool
	if deps.Engine != nil {
		dryRun = deps.Engine.DryRun
	}

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(deps.Store, redisPinger(deps), a.logger),
		Status:    handler.NewStatusHandler(a.cfg.App.Mode, a.cfg.Engine.PollInterval.Duration, time.Now().UTC(), dryRun),
		Positions: handler.NewPositionHandler(deps.Positions, a.logger),
	}
	if deps.PriceCache != nil {
		handlers.Prices = handler.NewPriceHandler(deps.PriceCache, deps.Positions, a.logger)
	}
	if deps.Engine != nil {
		handlers.Signals = handler.NewSignalHandler(deps.Engine, a.logger)
	}

	var hub *ws.Hub
	if deps.Bus != nil {
		hub = ws.NewHub(deps.Bus, a.logger, ws.Config{
			Mode:      a.cfg.App.Mode,
			StartedAt: time.Now().UTC(),
			DryRun:    dryRun,
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("server shutdown", slog.String("error", err.Error()))
		}
		return ctx.Err()
	})
}

// startArchiver adds the periodic cold-storage export when S3 is
// configured. Export failures are logged and retried next interval.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}

	interval := a.cfg.S3.ArchiveInterval.Duration
	retention := time.Duration(a.cfg.S3.RetentionDays) * 24 * time.Hour

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}

			cutoff := time.Now().UTC().Add(-retention)
			if n, err := deps.Archiver.ArchivePositions(ctx, cutoff); err != nil {
				a.logger.WarnContext(ctx, "position archive failed", slog.String("error", err.Error()))
			} else if n > 0 {
				a.logger.InfoContext(ctx, "positions archived", slog.Int64("count", n))
			}
			if n, err := deps.Archiver.ArchiveTrades(ctx, cutoff); err != nil {
				a.logger.WarnContext(ctx, "trade archive failed", slog.String("error", err.Error()))
			} else if n > 0 {
				a.logger.InfoContext(ctx, "trades archived", slog.Int64("count", n))
			}
		}
	})
}

// redisPinger returns the Redis client as a health-check dependency, or
// a typed nil the handler skips when Redis is not configured.
func redisPinger(deps *Dependencies) handler.Pinger {
	if deps.Redis == nil {
		return nil
	}
	return deps.Redis
}
