// Package notify mirrors position lifecycle events to operator channels.
// A Notifier fans each message out to every registered sender (Telegram,
// Discord); an event allowlist picks which lifecycle transitions are
// surfaced, so a noisy deployment can mute everything but closes.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Sender is one delivery channel for operator notifications.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier fans notifications out to its senders, filtered by event type.
type Notifier struct {
	senders []Sender
	allow   map[string]struct{}
	logger  *slog.Logger
}

// NewNotifier builds a Notifier over the given senders. events is the
// allowlist consulted by Notify; nil or empty means every event passes.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	n := &Notifier{
		senders: senders,
		logger:  logger.With(slog.String("component", "notifier")),
	}
	if len(events) > 0 {
		n.allow = make(map[string]struct{}, len(events))
		for _, e := range events {
			n.allow[strings.TrimSpace(e)] = struct{}{}
		}
	}
	return n
}

// Notify delivers to every sender when the event type is allowed, and
// silently drops the message otherwise.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.enabled(event) {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyAll delivers to every sender, ignoring the event allowlist.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

func (n *Notifier) enabled(event string) bool {
	if n.allow == nil {
		return true
	}
	_, ok := n.allow[event]
	return ok
}

// dispatch sends through every sender. One failing channel never blocks
// the others; failures are joined into the returned error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		err := s.Send(ctx, title, message)
		if err == nil {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
			continue
		}
		n.logger.ErrorContext(ctx, "sender failed",
			slog.String("sender", s.Name()),
			slog.String("error", err.Error()),
		)
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}
