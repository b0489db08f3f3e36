// Package notify delivers strategy lifecycle events to operator channels.
// Events are dispatched to all registered senders (Telegram, Discord, etc.)
// and can be filtered by event type so operators receive only the alerts they
// care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/fundingbot/internal/domain"
)

// sendTimeout bounds each fire-and-forget delivery.
const sendTimeout = 15 * time.Second

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier implements domain.EventSink over one or more Senders. It maintains
// a set of allowed event types; events outside the set are dropped. Delivery
// is asynchronous so a slow channel never blocks the trading loop.
type Notifier struct {
	senders []Sender
	events  map[domain.EventType]bool // allowed event types
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders. Only
// events whose type appears in the events slice are forwarded. If events is
// empty, all event types are allowed.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventType]bool, len(events))
	for _, e := range events {
		allowed[domain.EventType(strings.TrimSpace(e))] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Publish formats the event and dispatches it to all senders in the
// background.
func (n *Notifier) Publish(ev domain.StrategyEvent) {
	if len(n.senders) == 0 {
		return
	}
	if len(n.events) > 0 && !n.events[ev.Type] {
		return
	}

	title, message := format(ev)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		n.dispatch(ctx, title, message)
	}()
}

// dispatch iterates over all senders. A single sender failure does not
// prevent delivery to the remaining senders.
func (n *Notifier) dispatch(ctx context.Context, title, message string) {
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
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
}

// format renders a StrategyEvent into a title and body for operator channels.
func format(ev domain.StrategyEvent) (title, message string) {
	switch ev.Type {
	case domain.EventStrategyCreated:
		title = fmt.Sprintf("Strategy opened: %s", ev.Symbol)
	case domain.EventStrategyClosing:
		title = fmt.Sprintf("Strategy closing: %s (%s)", ev.Symbol, ev.Reason)
	case domain.EventStrategyClosed:
		title = fmt.Sprintf("Strategy closed: %s (%s)", ev.Symbol, ev.Reason)
	case domain.EventStrategyError:
		title = fmt.Sprintf("Strategy ERROR: %s", ev.Symbol)
	case domain.EventLiquidationRisk:
		title = fmt.Sprintf("Liquidation risk: %s", ev.Symbol)
	default:
		title = fmt.Sprintf("%s: %s", ev.Type, ev.Symbol)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "strategy %s", ev.StrategyID)
	if ev.State != "" {
		fmt.Fprintf(&b, "\nstate: %s", ev.State)
	}
	if ev.PnLUSD != 0 || ev.PnLPct != 0 {
		fmt.Fprintf(&b, "\npnl: %.2f USD (%.2f%%)", ev.PnLUSD, ev.PnLPct)
	}
	if ev.Detail != "" {
		fmt.Fprintf(&b, "\n%s", ev.Detail)
	}
	return title, b.String()
}

// Compile-time interface check.
var _ domain.EventSink = (*Notifier)(nil)
