// Package app is the composition root: it builds stores, the order engine,
// both bots and the HTTP server from Config, and runs them.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/cardshop/core/bootstrap"
	coreconfig "github.com/m3rciful/cardshop/core/config"
	"github.com/m3rciful/cardshop/core/logger"
	"github.com/m3rciful/cardshop/core/telegram"
	"github.com/m3rciful/cardshop/core/telegram/event"
	"github.com/m3rciful/cardshop/core/telegram/middleware"
	"github.com/m3rciful/cardshop/core/telegram/sender"
	"github.com/m3rciful/cardshop/core/telegram/state"
	"github.com/m3rciful/cardshop/shop/bans"
	"github.com/m3rciful/cardshop/shop/bot"
	"github.com/m3rciful/cardshop/shop/gate"
	"github.com/m3rciful/cardshop/shop/metrics"
	"github.com/m3rciful/cardshop/shop/notify"
	"github.com/m3rciful/cardshop/shop/orders"
	"github.com/m3rciful/cardshop/shop/store"
	"github.com/m3rciful/cardshop/shop/store/memory"
	"github.com/m3rciful/cardshop/shop/store/postgres"
	"github.com/m3rciful/cardshop/shop/webhook"
)

const shutdownTimeout = 10 * time.Second

// Overrides replace infrastructure, mainly in tests.
type Overrides struct {
	LoggerInit     func(*coreconfig.Config) error
	UserMessenger  telegram.Messenger
	AdminMessenger telegram.Messenger
	RedisClient    *redis.Client
}

// App owns every long lived component.
type App struct {
	cfg     *Config
	infra   *bootstrap.Result
	redis   *redis.Client
	sender  *sender.Dispatcher
	metrics *metrics.Metrics
	bot     *bot.Dispatcher
	handler http.Handler

	memSessions []*state.MemoryStore
}

// New builds the application. The caller must Close it.
func New(ctx context.Context, cfg *Config, ov Overrides) (_ *App, err error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	a := &App{cfg: cfg, metrics: metrics.New()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	opts := bootstrap.Options{Config: &cfg.Config, LoggerInit: ov.LoggerInit}
	if cfg.Storage.Backend == BackendPostgres {
		opts.Database = &cfg.Database
	}
	if a.infra, err = bootstrap.Run(opts); err != nil {
		return nil, err
	}

	shop, seeder, err := a.buildStore()
	if err != nil {
		return nil, err
	}
	if err := bootstrap.Seed(ctx, seeder); err != nil {
		return nil, err
	}

	userSessions, adminSessions, err := a.buildSessions(ctx, ov.RedisClient)
	if err != nil {
		return nil, err
	}

	userMsg, adminMsg, err := a.buildMessengers(ov)
	if err != nil {
		return nil, err
	}

	senderOpts := sender.OptionsFromConfig(cfg.Sender)
	senderOpts.OnResult = a.metrics.SendResult
	a.sender = sender.NewDispatcher(senderOpts)
	userOut := &notify.Outbox{Bot: string(gate.BotUser), Messenger: userMsg, Dispatcher: a.sender}
	adminOut := &notify.Outbox{Bot: string(gate.BotAdmin), Messenger: adminMsg, Dispatcher: a.sender}

	registry := bans.NewRegistry(shop)
	engine := orders.New(orders.Deps{
		Users:     shop,
		Catalog:   shop,
		Inventory: shop,
		Stock:     shop,
		Orders:    shop,
		Sessions:  userSessions,
		Notifier: &notify.AdminNotifier{
			Outbox:    adminOut,
			AdminID:   cfg.Telegram.AdminID,
			OnFailure: a.metrics.NotifyFailed,
		},
		Observer:     a.metrics,
		ClaimTimeout: time.Duration(cfg.Fulfillment.TimeoutMS) * time.Millisecond,
	})

	limits := middleware.RateLimitOptionsFromConfig(cfg.RateLimit)
	limits.OnLimited = func(ctx context.Context, u *event.Update) error {
		return a.bot.Throttled(ctx, u)
	}
	a.bot = bot.New(bot.Deps{
		Gate: gate.New(gate.Config{
			UserSecret:  cfg.Telegram.UserBot.Secret,
			AdminSecret: cfg.Telegram.AdminBot.Secret,
			AdminID:     cfg.Telegram.AdminID,
		}, registry, a.metrics),
		Engine:        engine,
		Users:         shop,
		Stock:         shop,
		Bans:          registry,
		UserSessions:  userSessions,
		AdminSessions: adminSessions,
		UserOut:       userOut,
		AdminOut:      adminOut,
		Middlewares: []event.MiddlewareFunc{
			middleware.Recover,
			middleware.Logger,
			middleware.Metrics(a.metrics),
			middleware.RateLimit(limits),
		},
		HistoryLimit: cfg.Shop.HistoryLimit,
		StoreName:    cfg.Shop.Name,
	})

	a.handler = webhook.NewRouter(webhook.Options{
		Dispatcher: a.bot,
		Observer:   a.metrics,
		Metrics:    a.metrics.Handler(),
	})
	return a, nil
}

func (a *App) buildStore() (store.Store, bootstrap.Seeder, error) {
	if a.cfg.Storage.Backend == BackendMemory {
		s := memory.New()
		return s, catalogSeeder(memoryCatalog{s}, a.cfg.Catalog), nil
	}
	if a.infra == nil || a.infra.DB == nil {
		return nil, nil, errors.New("app: postgres storage without a database connection")
	}
	s := postgres.New(a.infra.DB)
	return s, catalogSeeder(s, a.cfg.Catalog), nil
}

// buildSessions returns separate stores for the two bots so the admin's own
// user-bot session never collides with its admin flows.
func (a *App) buildSessions(ctx context.Context, client *redis.Client) (state.Store, state.Store, error) {
	ttl := a.cfg.Session.TTL()
	if a.cfg.Session.Backend != BackendRedis {
		user, admin := state.NewMemoryStore(ttl), state.NewMemoryStore(ttl)
		a.memSessions = []*state.MemoryStore{user, admin}
		return user, admin, nil
	}
	if client == nil {
		client = redis.NewClient(&redis.Options{
			Addr:     a.cfg.Session.RedisAddr,
			Password: a.cfg.Session.RedisPassword,
			DB:       a.cfg.Session.RedisDB,
		})
		a.redis = client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, nil, fmt.Errorf("app: redis ping: %w", err)
	}
	prefix := a.cfg.Session.KeyPrefix
	return state.NewRedisStore(client, prefix+":"+string(gate.BotUser), ttl),
		state.NewRedisStore(client, prefix+":"+string(gate.BotAdmin), ttl), nil
}

func (a *App) buildMessengers(ov Overrides) (telegram.Messenger, telegram.Messenger, error) {
	userMsg, adminMsg := ov.UserMessenger, ov.AdminMessenger
	if userMsg == nil {
		b, err := telegram.NewBot(a.cfg.Telegram.UserBot, a.cfg.Telegram.Offline)
		if err != nil {
			return nil, nil, fmt.Errorf("app: user bot: %w", err)
		}
		userMsg = telegram.BotMessenger{Bot: b}
	}
	if adminMsg == nil {
		b, err := telegram.NewBot(a.cfg.Telegram.AdminBot, a.cfg.Telegram.Offline)
		if err != nil {
			return nil, nil, fmt.Errorf("app: admin bot: %w", err)
		}
		adminMsg = telegram.BotMessenger{Bot: b}
	}
	return userMsg, adminMsg, nil
}

// Handler is the HTTP surface: both webhooks, /healthz and /metrics.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Metrics exposes the instruments, mainly for tests.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Serve listens until ctx is cancelled, then shuts the server down gracefully.
func (a *App) Serve(ctx context.Context) error {
	wh := a.cfg.Webhook
	srv := &http.Server{
		Addr:              net.JoinHostPort(wh.Listen, strconv.Itoa(wh.Port)),
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(wh.ReadTimeoutMS) * time.Millisecond,
		WriteTimeout:      time.Duration(wh.WriteTimeoutMS) * time.Millisecond,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.LogEvent(gctx, logger.WEB, slog.LevelInfo, "http.listen",
			slog.String("status", "ok"),
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if len(a.memSessions) > 0 {
		g.Go(func() error {
			a.sweepSessions(gctx)
			return nil
		})
	}
	return g.Wait()
}

// sweepSessions evicts expired in-memory sessions so idle users do not pin memory.
func (a *App) sweepSessions(ctx context.Context) {
	interval := a.cfg.Session.TTL() / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			removed := 0
			for _, s := range a.memSessions {
				removed += s.Sweep()
			}
			if removed > 0 {
				logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "session.sweep",
					slog.String("status", "ok"),
					slog.Int("count", removed),
				)
			}
		}
	}
}

// Close drains outbound sends and releases connections.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	if a.sender != nil {
		a.sender.Close()
	}
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.infra != nil {
		errs = append(errs, a.infra.Close())
	}
	return errors.Join(errs...)
}

// RegisterWebhooks points both bots at PublicURL.
func RegisterWebhooks(ctx context.Context, cfg *Config) error {
	if cfg.Telegram.PublicURL == "" {
		return errors.New("app: telegram.public_url is required to register webhooks")
	}
	bots := []struct {
		kind gate.BotKind
		cfg  coreconfig.BotConfig
	}{
		{gate.BotUser, cfg.Telegram.UserBot},
		{gate.BotAdmin, cfg.Telegram.AdminBot},
	}
	for _, b := range bots {
		tb, err := telegram.NewBot(b.cfg, false)
		if err != nil {
			return fmt.Errorf("app: %s bot: %w", b.kind, err)
		}
		if err := telegram.RegisterWebhook(ctx, tb, string(b.kind), cfg.Telegram.PublicURL, b.cfg); err != nil {
			return err
		}
	}
	return nil
}
