package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/rehan1020/tgbot/internal/domain"
	"github.com/rehan1020/tgbot/internal/intake"
)

// defaultPollTimeout is the getUpdates long-poll hold; it stays under
// the client's 30s HTTP timeout.
const defaultPollTimeout = 25 * time.Second

// errorBackoff is the pause after a failed getUpdates call.
const errorBackoff = 5 * time.Second

// Engine is the slice of the lifecycle engine the bot drives.
type Engine interface {
	ProcessSignal(ctx context.Context, sig domain.Signal) (domain.Position, error)
	Stats(ctx context.Context) (domain.PositionStats, error)
	DryRun() bool
	SetDryRun(v bool)
}

// BackendDirectory is the view of the DEX registry the bot needs for
// balance reporting. It is declared locally so this package does not
// depend on the concrete registry implementation.
type BackendDirectory interface {
	Chains() []domain.Chain
	Resolve(chain domain.Chain) (domain.DEX, error)
}

// PositionReader is the store view the command surface reads.
type PositionReader interface {
	ListOpen(ctx context.Context) ([]domain.Position, error)
	ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error)
}

// UserDirectory is the user-store view the command surface needs.
type UserDirectory interface {
	Register(ctx context.Context, id int64, username string) (domain.User, error)
	GetByID(ctx context.Context, id int64) (domain.User, error)
	SetNotify(ctx context.Context, id int64, enabled bool) error
}

// IntakeNotifier mirrors intake outcomes to the operator notification
// channels.
type IntakeNotifier interface {
	PositionCreated(ctx context.Context, pos domain.Position) error
	SignalRejected(ctx context.Context, sig domain.Signal, reason error) error
}

// BotConfig tunes the update listener and command surface.
type BotConfig struct {
	// SignalChatID is the chat whose messages are scanned for signals.
	SignalChatID int64
	// Allowlist restricts command access to these Telegram user IDs when
	// non-empty. Signal intake is governed by SignalChatID, not by this.
	Allowlist []int64
	// PollTimeout is the getUpdates long-poll duration. Defaults to 25s.
	PollTimeout time.Duration
	// Mode and PollInterval are surfaced by /status.
	Mode         string
	PollInterval time.Duration
}

// BotDeps wires the bot's collaborators. Client, Engine, Positions, and
// Users are required; Backends and Notify may be nil.
type BotDeps struct {
	Client    *Client
	Engine    Engine
	Positions PositionReader
	Users     UserDirectory
	Backends  BackendDirectory
	Notify    IntakeNotifier
}

// Bot consumes Telegram updates: trading signals from the signal chat
// and operator commands from registered users.
type Bot struct {
	client    *Client
	cfg       BotConfig
	engine    Engine
	positions PositionReader
	users     UserDirectory
	backends  BackendDirectory
	notify    IntakeNotifier
	logger    *slog.Logger

	offset int64
}

// NewBot creates the bot listener.
func NewBot(cfg BotConfig, deps BotDeps, logger *slog.Logger) (*Bot, error) {
	if deps.Client == nil {
		return nil, fmt.Errorf("telegram: client is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("telegram: engine is required")
	}
	if deps.Positions == nil {
		return nil, fmt.Errorf("telegram: position store is required")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("telegram: user store is required")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	return &Bot{
		client:    deps.Client,
		cfg:       cfg,
		engine:    deps.Engine,
		positions: deps.Positions,
		users:     deps.Users,
		backends:  deps.Backends,
		notify:    deps.Notify,
		logger:    logger.With(slog.String("component", "telegram")),
	}, nil
}

// Run long-polls for updates until the context is cancelled. Poll
// failures back off and retry; only cancellation ends the loop.
func (b *Bot) Run(ctx context.Context) error {
	me, err := b.client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram: verify token: %w", err)
	}
	b.logger.InfoContext(ctx, "bot listening",
		slog.String("username", me.Username),
		slog.Int64("signal_chat", b.cfg.SignalChatID),
	)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		updates, err := b.client.GetUpdates(ctx, b.offset, b.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.WarnContext(ctx, "get updates failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(errorBackoff):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= b.offset {
				b.offset = u.UpdateID + 1
			}
			if u.Message == nil || u.Message.Text == "" {
				continue
			}
			b.handleMessage(ctx, *u.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg Message) {
	if strings.HasPrefix(msg.Text, "/") {
		b.handleCommand(ctx, msg)
		return
	}
	if msg.Chat.ID != b.cfg.SignalChatID {
		return
	}
	if !intake.IsSignalMessage(msg.Text) {
		return
	}
	b.handleSignal(ctx, msg)
}

// handleSignal parses a signal-chat message and submits it to the
// engine, replying with the outcome either way.
func (b *Bot) handleSignal(ctx context.Context, msg Message) {
	sig, err := intake.Parse(msg.Text)
	if err != nil {
		b.logger.WarnContext(ctx, "signal parse failed",
			slog.Int64("chat", msg.Chat.ID),
			slog.String("error", err.Error()),
		)
		b.reply(ctx, msg, fmt.Sprintf("Signal ignored: %v", err))
		return
	}

	if sig.Direction == domain.DirectionShort {
		b.reply(ctx, msg, "Short signals are not tradable on spot, skipping.")
		return
	}

	pos, err := b.engine.ProcessSignal(ctx, sig)
	if err != nil {
		b.logger.WarnContext(ctx, "signal rejected",
			slog.String("pair", sig.PairName),
			slog.String("error", err.Error()),
		)
		b.reply(ctx, msg, rejectionText(err))
		if b.notify != nil {
			_ = b.notify.SignalRejected(ctx, sig, err)
		}
		return
	}

	b.reply(ctx, msg, fmt.Sprintf(
		"Position #%d created: %s on %s\nEntry target %s, TP %s, SL %s",
		pos.ID, pos.PairName, pos.Chain,
		fmtPrice(pos.TargetEntryPrice), fmtPrice(pos.TakeProfitPrice), fmtPrice(pos.StopLossPrice),
	))
	if b.notify != nil {
		_ = b.notify.PositionCreated(ctx, pos)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg Message) {
	if msg.From == nil || msg.From.IsBot {
		return
	}
	if len(b.cfg.Allowlist) > 0 && !b.allowlisted(msg.From.ID) {
		return
	}

	cmd, arg := splitCommand(msg.Text)

	if cmd == "/start" {
		b.cmdStart(ctx, msg)
		return
	}

	user, err := b.users.GetByID(ctx, msg.From.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			b.reply(ctx, msg, "You are not registered yet. Send /start first.")
			return
		}
		b.logger.ErrorContext(ctx, "user lookup failed",
			slog.Int64("user", msg.From.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	switch cmd {
	case "/help":
		b.reply(ctx, msg, helpText)
	case "/positions":
		b.cmdPositions(ctx, msg)
	case "/history":
		b.cmdHistory(ctx, msg)
	case "/stats":
		b.cmdStats(ctx, msg)
	case "/balance":
		b.cmdBalance(ctx, msg)
	case "/notify":
		b.cmdNotify(ctx, msg, arg)
	case "/dryrun":
		b.cmdDryRun(ctx, msg, user, arg)
	case "/status":
		b.cmdStatus(ctx, msg)
	default:
		b.reply(ctx, msg, "Unknown command. Send /help for the list.")
	}
}

const helpText = `*Commands*
/positions - open positions
/history - recently closed positions
/stats - lifetime counts and PnL
/balance - wallet balances per chain
/notify on|off - toggle trade notifications
/dryrun on|off - toggle simulation (admin)
/status - engine status`

func (b *Bot) cmdStart(ctx context.Context, msg Message) {
	user, err := b.users.Register(ctx, msg.From.ID, msg.From.Username)
	if err != nil {
		b.logger.ErrorContext(ctx, "user registration failed",
			slog.Int64("user", msg.From.ID),
			slog.String("error", err.Error()),
		)
		b.reply(ctx, msg, "Registration failed, please try again.")
		return
	}
	if user.IsAdmin() {
		b.reply(ctx, msg, "Registered as *admin*. Send /help for commands.")
		return
	}
	b.reply(ctx, msg, "Registered. Send /help for commands.")
}

func (b *Bot) cmdPositions(ctx context.Context, msg Message) {
	open, err := b.positions.ListOpen(ctx)
	if err != nil {
		b.logger.ErrorContext(ctx, "list open failed", slog.String("error", err.Error()))
		b.reply(ctx, msg, "Could not load positions.")
		return
	}
	if len(open) == 0 {
		b.reply(ctx, msg, "No open positions.")
		return
	}

	var sb strings.Builder
	sb.WriteString("*Open positions*\n")
	for _, p := range open {
		fmt.Fprintf(&sb, "#%d %s [%s] %s\n", p.ID, p.PairName, p.Status, p.Chain)
		if p.Status == domain.PositionStatusActive {
			fmt.Fprintf(&sb, "  in at %s, TP %s, SL %s\n",
				fmtPrice(p.ActualEntryPrice), fmtPrice(p.TakeProfitPrice), fmtPrice(p.StopLossPrice))
		} else {
			fmt.Fprintf(&sb, "  entry %s, TP %s, SL %s\n",
				fmtPrice(p.TargetEntryPrice), fmtPrice(p.TakeProfitPrice), fmtPrice(p.StopLossPrice))
		}
	}
	b.reply(ctx, msg, sb.String())
}

func (b *Bot) cmdHistory(ctx context.Context, msg Message) {
	recent, err := b.positions.ListRecent(ctx, domain.ListOpts{Limit: 10})
	if err != nil {
		b.logger.ErrorContext(ctx, "list recent failed", slog.String("error", err.Error()))
		b.reply(ctx, msg, "Could not load history.")
		return
	}

	var sb strings.Builder
	sb.WriteString("*Recent positions*\n")
	n := 0
	for _, p := range recent {
		if !p.Status.IsTerminal() {
			continue
		}
		n++
		fmt.Fprintf(&sb, "#%d %s [%s]", p.ID, p.PairName, p.Status)
		if p.PnLPercent != nil && p.PnLAbsolute != nil {
			fmt.Fprintf(&sb, " %+.2f%% (%+.2f %s)", *p.PnLPercent, *p.PnLAbsolute, p.QuoteToken)
		}
		sb.WriteString("\n")
	}
	if n == 0 {
		b.reply(ctx, msg, "No closed positions yet.")
		return
	}
	b.reply(ctx, msg, sb.String())
}

func (b *Bot) cmdStats(ctx context.Context, msg Message) {
	stats, err := b.engine.Stats(ctx)
	if err != nil {
		b.logger.ErrorContext(ctx, "stats failed", slog.String("error", err.Error()))
		b.reply(ctx, msg, "Could not load stats.")
		return
	}

	var sb strings.Builder
	sb.WriteString("*Stats*\n")
	for _, status := range []domain.PositionStatus{
		domain.PositionStatusPending,
		domain.PositionStatusActive,
		domain.PositionStatusClosedTP,
		domain.PositionStatusClosedSL,
		domain.PositionStatusFailed,
	} {
		if c := stats.ByStatus[status]; c > 0 {
			fmt.Fprintf(&sb, "%s: %d\n", status, c)
		}
	}
	fmt.Fprintf(&sb, "total: %d\n", stats.Total())
	fmt.Fprintf(&sb, "realized PnL: %+.2f", stats.TotalPnL)
	b.reply(ctx, msg, sb.String())
}

func (b *Bot) cmdBalance(ctx context.Context, msg Message) {
	if b.backends == nil {
		b.reply(ctx, msg, "No trading backends configured.")
		return
	}
	chains := b.backends.Chains()
	if len(chains) == 0 {
		b.reply(ctx, msg, "No trading backends configured.")
		return
	}

	var sb strings.Builder
	sb.WriteString("*Balances*\n")
	for _, chain := range chains {
		backend, err := b.backends.Resolve(chain)
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "%s: %s %s", chain, fmtPrice(backend.GetNativeBalance(ctx)), chain.NativeSymbol())
		for _, sym := range []string{"USDT", "USDC"} {
			addr, ok := domain.QuoteTokenAddress(chain, sym)
			if !ok {
				continue
			}
			fmt.Fprintf(&sb, ", %s %s", fmtPrice(backend.GetTokenBalance(ctx, addr)), sym)
		}
		sb.WriteString("\n")
	}
	b.reply(ctx, msg, sb.String())
}

func (b *Bot) cmdNotify(ctx context.Context, msg Message, arg string) {
	enabled, ok := parseOnOff(arg)
	if !ok {
		b.reply(ctx, msg, "Usage: /notify on|off")
		return
	}
	if err := b.users.SetNotify(ctx, msg.From.ID, enabled); err != nil {
		b.logger.ErrorContext(ctx, "set notify failed",
			slog.Int64("user", msg.From.ID),
			slog.String("error", err.Error()),
		)
		b.reply(ctx, msg, "Could not update notification setting.")
		return
	}
	if enabled {
		b.reply(ctx, msg, "Notifications enabled.")
		return
	}
	b.reply(ctx, msg, "Notifications disabled.")
}

func (b *Bot) cmdDryRun(ctx context.Context, msg Message, user domain.User, arg string) {
	if !user.IsAdmin() {
		b.reply(ctx, msg, "Admins only.")
		return
	}
	enabled, ok := parseOnOff(arg)
	if !ok {
		b.reply(ctx, msg, "Usage: /dryrun on|off")
		return
	}
	b.engine.SetDryRun(enabled)
	if enabled {
		b.reply(ctx, msg, "Dry run *on*: swaps are simulated.")
		return
	}
	b.reply(ctx, msg, "Dry run *off*: swaps are live.")
}

func (b *Bot) cmdStatus(ctx context.Context, msg Message) {
	dryRun := "off"
	if b.engine.DryRun() {
		dryRun = "on"
	}
	b.reply(ctx, msg, fmt.Sprintf(
		"*Status*\nmode: %s\ndry run: %s\npoll interval: %s",
		b.cfg.Mode, dryRun, b.cfg.PollInterval,
	))
}

func (b *Bot) allowlisted(id int64) bool {
	for _, allowed := range b.cfg.Allowlist {
		if allowed == id {
			return true
		}
	}
	return false
}

func (b *Bot) reply(ctx context.Context, msg Message, text string) {
	if err := b.client.SendReply(ctx, msg.Chat.ID, msg.MessageID, text); err != nil {
		b.logger.WarnContext(ctx, "reply failed",
			slog.Int64("chat", msg.Chat.ID),
			slog.String("error", err.Error()),
		)
	}
}

// rejectionText maps engine rejections to operator-readable replies.
func rejectionText(err error) string {
	switch {
	case errors.Is(err, domain.ErrCapacityExceeded):
		return "Rejected: position slots are full."
	case errors.Is(err, domain.ErrChainUnresolved):
		return "Rejected: could not determine the token's chain."
	case errors.Is(err, domain.ErrNoBackendForChain):
		return "Rejected: no trading backend for that chain."
	case errors.Is(err, domain.ErrInvalidSignal):
		return fmt.Sprintf("Rejected: %v", err)
	default:
		return "Rejected: internal error, check the logs."
	}
}

// splitCommand separates "/cmd@bot arg..." into the lowercased command
// and its trimmed argument.
func splitCommand(text string) (cmd, arg string) {
	cmd, arg, _ = strings.Cut(text, " ")
	if at := strings.Index(cmd, "@"); at > 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), strings.TrimSpace(arg)
}

func parseOnOff(arg string) (enabled, ok bool) {
	switch strings.ToLower(arg) {
	case "on":
		return true, true
	case "off":
		return false, true
	default:
		return false, false
	}
}

// fmtPrice renders a price without exponent notation; micro-cap token
// prices routinely sit below 1e-4.
func fmtPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
