// Package server exposes the read API, the HTTP signal intake, and the
// WebSocket event stream.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rehan1020/tgbot/internal/domain"
	"github.com/rehan1020/tgbot/internal/server/handler"
	"github.com/rehan1020/tgbot/internal/server/middleware"
	"github.com/rehan1020/tgbot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit caps POST /api/signals submissions per client IP within
	// RateLimitWindow. Zero disables the limiter.
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers. Nil
// entries are skipped, so modes that lack a capability simply leave the
// handler unset.
type Handlers struct {
	Health    *handler.HealthHandler
	Positions *handler.PositionHandler
	Signals   *handler.SignalHandler
	Prices    *handler.PriceHandler
	Status    *handler.StatusHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux.
// It wires up middleware (CORS, logging, auth) and attaches the
// WebSocket hub. limiter may be nil; it only guards signal intake.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	if handlers.Health != nil {
		mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	}

	if handlers.Status != nil {
		mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}

	if handlers.Positions != nil {
		mux.HandleFunc("GET /api/positions", handlers.Positions.ListOpen)
		mux.HandleFunc("GET /api/positions/history", handlers.Positions.History)
		mux.HandleFunc("GET /api/positions/stats", handlers.Positions.Stats)
		mux.HandleFunc("GET /api/positions/{id}", handlers.Positions.GetPosition)
	}

	if handlers.Prices != nil {
		mux.HandleFunc("GET /api/prices", handlers.Prices.GetPrices)
	}

	if handlers.Signals != nil {
		var submit http.Handler = http.HandlerFunc(handlers.Signals.SubmitSignal)
		if limiter != nil && cfg.RateLimit > 0 {
			submit = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow)(submit)
		}
		mux.Handle("POST /api/signals", submit)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain: auth closest to the mux, CORS outermost
	// so preflights never hit auth.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
