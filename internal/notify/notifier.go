// Package notify alerts operators about breaker transitions, settlement
// losses, and fatal pipeline errors over Telegram and Discord. The config's
// notify.events list narrows which event kinds go out.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Event kinds the pipeline emits.
const (
	EventBreakerTripped = "breaker_tripped"
	EventBreakerReset   = "breaker_reset"
	EventSettlementLoss = "settlement_loss"
	EventFatal          = "fatal"
)

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans one alert out to every configured sender.
type Notifier struct {
	senders []Sender
	allowed map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier over the given senders. Notify forwards only
// the event kinds listed in events; an empty list forwards everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers the alert when its event kind passes the configured filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.allowed) > 0 && !n.allowed[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.fanOut(ctx, title, message)
}

// NotifyAll delivers the alert to every sender regardless of the filter.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.fanOut(ctx, title, message)
}

// fanOut tries every sender even after one fails; a dead webhook must not
// silence the others. Failures come back as one combined error.
func (n *Notifier) fanOut(ctx context.Context, title, message string) error {
	var failures []string
	for _, s := range n.senders {
		err := s.Send(ctx, title, message)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", s.Name(), err))
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(failures) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(failures), strings.Join(failures, "; "))
	}
	return nil
}
