// Package notify delivers operator alerts over Telegram and Discord.
// Delivery is fire-and-forget: sender failures are logged and never reach
// the trading path.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"polyarb/internal/config"
	"polyarb/internal/domain"
)

// Event types the notifier can filter on.
const (
	EventOpportunity    = "opportunity"
	EventPositionOpened = "position_opened"
	EventPositionClosed = "position_closed"
	EventError          = "error"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches alerts to all configured senders, filtered by event
// type. An empty event list allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// FromConfig builds a Notifier with whichever channels the config enables.
// With no credentials configured the notifier is a no-op.
func FromConfig(cfg config.NotifyConfig, logger *slog.Logger) *Notifier {
	var senders []Sender
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		senders = append(senders, NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.DiscordWebhookURL != "" {
		senders = append(senders, NewDiscordSender(cfg.DiscordWebhookURL))
	}
	return NewNotifier(senders, cfg.Events, logger)
}

// NewNotifier creates a Notifier delivering to the given senders.
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

// Opportunity alerts on a newly detected mispricing.
func (n *Notifier) Opportunity(ctx context.Context, o domain.Opportunity) {
	n.notify(ctx, EventOpportunity, "Opportunity detected", fmt.Sprintf(
		"%s\nSide: %s @ %.3f\nEdge: %.1f%% (conf %.2f)\nSize: $%.0f",
		truncateQuestion(o.Contract.Question),
		o.Side, o.VenuePrice, o.EdgePercent, o.Confidence, o.RecommendedSize,
	))
}

// PositionOpened alerts on a new fill.
func (n *Notifier) PositionOpened(ctx context.Context, p *domain.Position) {
	n.notify(ctx, EventPositionOpened, "Position opened", fmt.Sprintf(
		"%s\nSide: %s @ %.3f\nCost: $%.2f\n%s",
		truncateQuestion(p.Contract.Question),
		p.Side, p.EntryPrice, p.CostBasis, p.EntryReason,
	))
}

// PositionClosed alerts on an exit with the realized result.
func (n *Notifier) PositionClosed(ctx context.Context, p *domain.Position) {
	reason := string(domain.ExitManual)
	if p.ExitReason != nil {
		reason = string(*p.ExitReason)
	}
	n.notify(ctx, EventPositionClosed, "Position closed", fmt.Sprintf(
		"%s\nSide: %s, exit via %s\nP&L: $%.2f (ROI %.1f%%)",
		truncateQuestion(p.Contract.Question),
		p.Side, reason, p.RealizedPnL, p.ROI(),
	))
}

// Error alerts on an operational failure worth a human look.
func (n *Notifier) Error(ctx context.Context, where string, err error) {
	n.notify(ctx, EventError, "Bot error", fmt.Sprintf("%s: %v", where, err))
}

func (n *Notifier) notify(ctx context.Context, event, title, message string) {
	if len(n.senders) == 0 {
		return
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.Debug("event filtered out", slog.String("event", event))
		return
	}

	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.Error("sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()))
			continue
		}
		n.logger.Debug("notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title))
	}
}

func truncateQuestion(q string) string {
	if len(q) <= 80 {
		return q
	}
	return q[:80] + "..."
}
