package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/m3rciful/cardshop/core/logger"
	"github.com/m3rciful/cardshop/core/telegram/event"
)

// Coder is implemented by domain errors that expose a stable err_code.
type Coder interface {
	Code() string
}

// Logger stamps the context with a correlation id and update metadata, logs
// a sampled receipt line and one handler.handled summary per update.
func Logger(next event.HandlerFunc) event.HandlerFunc {
	return func(ctx context.Context, u *event.Update) error {
		if u == nil {
			return next(ctx, u)
		}
		start := time.Now()
		rid := logger.BuildRID(u.ID, u.ChatID, u.UserID)
		ctx = logger.WithRID(ctx, rid)
		ctx = logger.WithUpdateMeta(ctx, u.ID, u.UserID, u.ChatID)
		ctx = logger.WithBot(ctx, u.Bot)
		ctx = logger.WithLogger(ctx, logger.Component("tg"))

		if logger.ShouldSampleDebug() {
			attrs := []slog.Attr{slog.String("status", "ok")}
			if u.Username != "" {
				attrs = append(attrs, slog.String("username", logger.SanitizeLimit(u.Username, 64)))
			}
			switch u.Kind() {
			case event.KindCallback:
				attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(u.CallbackData, 128)))
			case event.KindMessage:
				attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(u.Text, 256)))
			}
			logger.LogEvent(ctx, nil, slog.LevelDebug, "update.received", attrs...)
		}

		err := next(ctx, u)

		messages, kb := u.Counters()
		attrs := []slog.Attr{
			slog.String("status", logger.Status(err)),
			slog.String("handler", u.Handler),
			slog.String("outcome", u.Outcome),
			slog.Int64("duration_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
			slog.Int("messages", messages),
			slog.Bool("kb", kb),
		}
		level := slog.LevelInfo
		if err != nil {
			level = slog.LevelError
			attrs = append(attrs, slog.String("err", err.Error()))
			var coder Coder
			if errors.As(err, &coder) {
				attrs = append(attrs, slog.String("err_code", coder.Code()))
			}
		}
		logger.LogEvent(ctx, nil, level, "handler.handled", attrs...)
		return err
	}
}
