// Package notify delivers operator alerts over one or more channels
// (Telegram, Discord). Alerts are filtered by event type so operators only
// receive what they subscribed to, and sends can be throttled through a
// shared rate limiter to respect chat-API limits.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/ibfadebot/internal/domain"
)

// Sender is one delivery channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a short identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier fans one notification out to all senders. Notify forwards only
// events in the allowed set; an empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger

	limiter     domain.RateLimiter
	limit       int
	limitWindow time.Duration
}

// NewNotifier creates a Notifier delivering to the given senders, forwarding
// only the listed event types. An empty events slice allows all events.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// WithRateLimit throttles sends through the given limiter: at most limit
// notifications per sender per window. Over-limit sends are dropped with a
// warning rather than queued.
func (n *Notifier) WithRateLimit(limiter domain.RateLimiter, limit int, window time.Duration) *Notifier {
	n.limiter = limiter
	n.limit = limit
	n.limitWindow = window
	return n
}

// Notify sends to all senders when the event type is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyAll sends to all senders regardless of event type.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch iterates over all senders. Errors are collected into one combined
// error; a single sender failure never blocks the remaining senders.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if !n.allowSend(ctx, s.Name()) {
			n.logger.WarnContext(ctx, "notification rate limited",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
			continue
		}

		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// allowSend consults the rate limiter when one is configured. Limiter errors
// fail open: a broken Redis must not silence operator alerts.
func (n *Notifier) allowSend(ctx context.Context, sender string) bool {
	if n.limiter == nil {
		return true
	}
	ok, err := n.limiter.Allow(ctx, "notify:"+sender, n.limit, n.limitWindow)
	if err != nil {
		n.logger.WarnContext(ctx, "rate limiter unavailable",
			slog.String("sender", sender),
			slog.String("error", err.Error()),
		)
		return true
	}
	return ok
}
