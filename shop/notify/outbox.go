// Package notify relays outbound messages for both bots and implements the
// admin notification channel of the order engine.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/cardshop/core/logger"
	"github.com/m3rciful/cardshop/core/telegram"
	"github.com/m3rciful/cardshop/core/telegram/sender"
)

// DefaultDirectTimeout bounds sends that bypass the queue.
const DefaultDirectTimeout = 5 * time.Second

// Outbox sends messages through one bot identity. With a dispatcher the send
// is queued and retried in the background; a saturated queue falls back to a
// direct send bounded by DirectTimeout. Without a dispatcher every send is direct.
type Outbox struct {
	Bot           string
	Messenger     telegram.Messenger
	Dispatcher    *sender.Dispatcher
	DirectTimeout time.Duration
}

// Send delivers msg. action names the send in logs and metrics.
func (o *Outbox) Send(ctx context.Context, action string, msg telegram.Message) error {
	if o == nil || o.Messenger == nil {
		return errors.New("notify: outbox has no messenger")
	}
	if o.Dispatcher != nil {
		err := o.Dispatcher.Enqueue(ctx, sender.Job{
			Action: action,
			ChatID: msg.ChatID,
			Run: func(ctx context.Context) error {
				return o.Messenger.Send(ctx, msg)
			},
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, sender.ErrQueueFull) {
			return fmt.Errorf("enqueue %s: %w", action, err)
		}
		logger.LogEvent(ctx, logger.SVCNotify, slog.LevelWarn, "send.queue_full",
			slog.String("bot", o.Bot),
			slog.String("action", action),
			slog.Int64("chat_id", msg.ChatID),
		)
	}
	return o.direct(ctx, msg)
}

func (o *Outbox) direct(ctx context.Context, msg telegram.Message) error {
	timeout := o.DirectTimeout
	if timeout <= 0 {
		timeout = DefaultDirectTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return o.Messenger.Send(ctx, msg)
}
