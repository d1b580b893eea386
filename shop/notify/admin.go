package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/cardshop/core/logger"
	"github.com/m3rciful/cardshop/core/telegram"
	"github.com/m3rciful/cardshop/core/telegram/callbacks"
	"github.com/m3rciful/cardshop/core/telegram/format"
	"github.com/m3rciful/cardshop/core/telegram/keyboard"
	"github.com/m3rciful/cardshop/shop/intent"
	"github.com/m3rciful/cardshop/shop/orders"
)

// AdminNotifier delivers order summaries to the administrator through the admin bot.
type AdminNotifier struct {
	Outbox  *Outbox
	AdminID int64
	// OnFailure, when set, is called for every summary that could not be handed off.
	OnFailure func(event string)
}

var _ orders.Notifier = (*AdminNotifier)(nil)

// NotifyAdmin implements orders.Notifier.
func (n *AdminNotifier) NotifyAdmin(ctx context.Context, s orders.Summary) error {
	msg := telegram.Message{
		ChatID:    n.AdminID,
		Text:      SummaryText(s),
		ParseMode: tele.ModeMarkdown,
	}
	if s.Event == orders.EventPending {
		msg.Markup = keyboard.InlineButtons([]keyboard.InlineBtn{
			{Text: "🛠 Process", Data: callbacks.Data(intent.PrefixProcessOrder, s.Order.ID)},
		})
	}
	err := n.Outbox.Send(ctx, "notify_admin", msg)
	if err != nil {
		if n.OnFailure != nil {
			n.OnFailure(s.Event)
		}
		return fmt.Errorf("notify admin about order %s: %w", s.Order.ID, err)
	}
	logger.LogEvent(ctx, logger.SVCNotify, slog.LevelDebug, "admin.notified",
		slog.String("status", "ok"),
		slog.String("order_id", s.Order.ID),
		slog.String("event", s.Event),
	)
	return nil
}

// SummaryText renders the admin message for s in Markdown.
func SummaryText(s orders.Summary) string {
	o := s.Order
	var b strings.Builder
	if s.Event == orders.EventLowStock && s.Stock != nil {
		b.WriteString("📉 *Low stock*\n\n")
		fmt.Fprintf(&b, "Category: %s (%s)\n", format.Escape(s.Stock.CategoryName), format.Escape(s.Stock.CategoryID))
		fmt.Fprintf(&b, "Codes left: %d of %d\n", s.Stock.Available, s.Stock.Total)
		fmt.Fprintf(&b, "Last order: `%s`\n", o.ID)
		return b.String()
	}
	switch s.Event {
	case orders.EventOutOfStock:
		b.WriteString("⚠️ *Fulfillment failed*\n\n")
	default:
		b.WriteString("🆕 *New pending order*\n\n")
	}
	fmt.Fprintf(&b, "Order: `%s`\n", o.ID)
	user := fmt.Sprintf("%d", o.UserID)
	if s.Username != "" {
		user += " (@" + format.Escape(s.Username) + ")"
	}
	fmt.Fprintf(&b, "User: %s\n", user)
	fmt.Fprintf(&b, "Category: %s (%s)\n", format.Escape(o.CategoryName), format.Escape(o.CategoryID))
	fmt.Fprintf(&b, "Delivery: %s\n", o.DeliveryType)
	fmt.Fprintf(&b, "Price: $%s\n", o.Price)
	if o.UserInput != nil {
		fmt.Fprintf(&b, "Input: %s\n", format.Escape(*o.UserInput))
	}
	if s.Cause != "" {
		fmt.Fprintf(&b, "Cause: %s\n", format.Escape(s.Cause))
	}
	return b.String()
}
