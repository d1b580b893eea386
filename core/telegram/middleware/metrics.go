package middleware

import (
	"context"
	"time"

	"github.com/m3rciful/cardshop/core/telegram/event"
)

// Observer receives one record per handled update.
type Observer interface {
	ObserveUpdate(bot, kind, handler string, err error, took time.Duration)
}

// Metrics reports every update to obs. A nil observer disables the middleware.
func Metrics(obs Observer) event.MiddlewareFunc {
	return func(next event.HandlerFunc) event.HandlerFunc {
		if obs == nil {
			return next
		}
		return func(ctx context.Context, u *event.Update) error {
			start := time.Now()
			err := next(ctx, u)
			if u != nil {
				obs.ObserveUpdate(u.Bot, u.Kind(), u.Handler, err, time.Since(start))
			}
			return err
		}
	}
}
