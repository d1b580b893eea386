package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	coreconfig "github.com/m3rciful/cardshop/core/config"
	"github.com/m3rciful/cardshop/core/telegram/event"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverConvertsPanic(t *testing.T) {
	h := Recover(func(context.Context, *event.Update) error {
		panic("boom")
	})
	err := h(context.Background(), &event.Update{ID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestRateLimitPerUserAndBot(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	calls := 0
	limited := 0
	h := RateLimit(RateLimitOptions{
		Interval: time.Second,
		Now:      func() time.Time { return now },
		OnLimited: func(context.Context, *event.Update) error {
			limited++
			return nil
		},
	})(func(context.Context, *event.Update) error {
		calls++
		return nil
	})

	ctx := context.Background()
	require.NoError(t, h(ctx, &event.Update{Bot: "user", UserID: 1, Text: "hi"}))
	require.NoError(t, h(ctx, &event.Update{Bot: "user", UserID: 1, Text: "again"}))
	require.NoError(t, h(ctx, &event.Update{Bot: "admin", UserID: 1, Text: "hi"}))
	require.NoError(t, h(ctx, &event.Update{Bot: "user", UserID: 2, Text: "hi"}))

	now = now.Add(2 * time.Second)
	require.NoError(t, h(ctx, &event.Update{Bot: "user", UserID: 1, Text: "later"}))

	assert.Equal(t, 4, calls)
	assert.Equal(t, 1, limited)
}

func TestRateLimitExclusions(t *testing.T) {
	opts := RateLimitOptionsFromConfig(coreconfig.RateLimitConfig{IntervalMS: 60_000, ExcludeUpdates: []string{" Callback "}})
	calls := 0
	h := RateLimit(opts)(func(context.Context, *event.Update) error {
		calls++
		return nil
	})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, h(ctx, &event.Update{Bot: "user", UserID: 5, CallbackData: "view_wallet"}))
	}
	assert.Equal(t, 3, calls)
}

func TestLimiterSweepsIdleKeysOncePerHorizon(t *testing.T) {
	lim := newLimiter(time.Second)
	t0 := time.Unix(1_700_000_000, 0)

	require.True(t, lim.allow("user:1", t0))
	require.True(t, lim.allow("user:2", t0.Add(time.Second)))
	require.True(t, lim.allow("user:3", t0.Add(50*time.Second)))
	assert.Equal(t, 3, lim.size())

	require.True(t, lim.allow("user:4", t0.Add(150*time.Second)))
	assert.Equal(t, 2, lim.size())

	require.True(t, lim.allow("user:5", t0.Add(200*time.Second)))
	assert.Equal(t, 3, lim.size(), "no sweep before the next horizon")
	assert.False(t, lim.allow("user:5", t0.Add(200*time.Second+time.Millisecond)))
}

type codedErr struct{}

func (codedErr) Error() string { return "coded" }
func (codedErr) Code() string  { return "E_CODED" }

type recordingObserver struct {
	bot, kind, handler string
	err                error
}

func (r *recordingObserver) ObserveUpdate(bot, kind, handler string, err error, _ time.Duration) {
	r.bot, r.kind, r.handler, r.err = bot, kind, handler, err
}

func TestLoggerAndMetricsPassThrough(t *testing.T) {
	obs := &recordingObserver{}
	want := codedErr{}
	h := event.Chain(func(ctx context.Context, u *event.Update) error {
		u.Handler = "browse_products"
		u.NoteReply(true)
		return want
	}, Recover, Logger, Metrics(obs))

	err := h(context.Background(), &event.Update{ID: 9, Bot: "user", UserID: 3, ChatID: 3, Text: "1"})
	assert.True(t, errors.Is(err, want))
	assert.Equal(t, "user", obs.bot)
	assert.Equal(t, event.KindMessage, obs.kind)
	assert.Equal(t, "browse_products", obs.handler)
	assert.Equal(t, want, obs.err)
}

func TestMetricsNilObserver(t *testing.T) {
	called := false
	h := Metrics(nil)(func(context.Context, *event.Update) error {
		called = true
		return nil
	})
	require.NoError(t, h(context.Background(), &event.Update{}))
	assert.True(t, called)
}
