package middleware

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	coreconfig "github.com/m3rciful/cardshop/core/config"
	"github.com/m3rciful/cardshop/core/logger"
	"github.com/m3rciful/cardshop/core/telegram/event"
)

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	Interval  time.Duration
	Exclude   map[string]struct{}
	OnLimited event.HandlerFunc
	// Now is the clock; time.Now when nil.
	Now func() time.Time
}

// RateLimitOptionsFromConfig converts the rate_limit config section.
func RateLimitOptionsFromConfig(cfg coreconfig.RateLimitConfig) RateLimitOptions {
	opts := RateLimitOptions{
		Interval: time.Duration(cfg.IntervalMS) * time.Millisecond,
		Exclude:  make(map[string]struct{}, len(cfg.ExcludeUpdates)),
	}
	for _, kind := range cfg.ExcludeUpdates {
		if kind = strings.ToLower(strings.TrimSpace(kind)); kind != "" {
			opts.Exclude[kind] = struct{}{}
		}
	}
	return opts
}

// RateLimit enforces a minimum interval between updates from the same user
// on the same bot. Limited updates are dropped silently unless OnLimited is set.
func RateLimit(opts RateLimitOptions) event.MiddlewareFunc {
	lim := newLimiter(opts.Interval)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return func(next event.HandlerFunc) event.HandlerFunc {
		return func(ctx context.Context, u *event.Update) error {
			if u == nil || u.UserID == 0 || opts.Interval <= 0 {
				return next(ctx, u)
			}
			if _, skip := opts.Exclude[u.Kind()]; skip {
				return next(ctx, u)
			}
			if lim.allow(u.Bot+":"+formatID(u.UserID), now()) {
				return next(ctx, u)
			}
			u.Handler = "rate_limited"
			logger.LogEvent(ctx, logger.TG, slog.LevelWarn, "tg.rate_limit",
				slog.String("status", "rate_limited"),
				slog.Int64("user_id", u.UserID),
				slog.Int64("chat_id", u.ChatID),
			)
			if opts.OnLimited != nil {
				return opts.OnLimited(ctx, u)
			}
			return nil
		}
	}
}

// limiter remembers the last update per key. Keys idle longer than the
// horizon are swept, at most once per horizon.
type limiter struct {
	mu        sync.Mutex
	interval  time.Duration
	horizon   time.Duration
	lastSeen  map[string]time.Time
	lastSweep time.Time
}

func newLimiter(interval time.Duration) *limiter {
	return &limiter{
		interval: interval,
		horizon:  interval * 100,
		lastSeen: make(map[string]time.Time),
	}
}

func (l *limiter) allow(key string, ts time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if last, ok := l.lastSeen[key]; ok && ts.Sub(last) < l.interval {
		return false
	}
	l.lastSeen[key] = ts
	if ts.Sub(l.lastSweep) >= l.horizon {
		for k, seen := range l.lastSeen {
			if ts.Sub(seen) > l.horizon {
				delete(l.lastSeen, k)
			}
		}
		l.lastSweep = ts
	}
	return true
}

func (l *limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lastSeen)
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
