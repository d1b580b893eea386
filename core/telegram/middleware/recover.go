package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/cardshop/core/logger"
	"github.com/m3rciful/cardshop/core/telegram/event"
)

// Recover turns a handler panic into an error so one bad update never takes
// down the webhook server.
func Recover(next event.HandlerFunc) event.HandlerFunc {
	return func(ctx context.Context, u *event.Update) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.LogEvent(ctx, logger.TG, slog.LevelError, "tg.panic",
					slog.String("status", "fail"),
					slog.Any("err", r),
					slog.String("stack", string(debug.Stack())),
				)
				err = fmt.Errorf("panic while handling update: %v", r)
			}
		}()
		return next(ctx, u)
	}
}
