package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	coreconfig "github.com/m3rciful/cardshop/core/config"
	"github.com/m3rciful/cardshop/core/logger"

	tele "gopkg.in/telebot.v4"
)

// WebhookRoute is the chi pattern shared by both bots. The kind segment
// selects the bot and the secret segment authenticates the caller.
const WebhookRoute = "/api/webhook/{kind}/{secret}"

// WebhookPath renders the concrete path for one bot.
func WebhookPath(kind, secret string) string {
	return "/api/webhook/" + kind + "/" + secret
}

// NewBot builds a Bot API client for a single bot identity. The bot is never
// started: updates arrive through the shared webhook router instead of a poller.
func NewBot(cfg coreconfig.BotConfig, offline bool) (*tele.Bot, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Client:  BuildHTTPClient(),
		Offline: offline,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	return bot, nil
}

// RegisterWebhook points Telegram at publicURL for the given bot kind.
func RegisterWebhook(ctx context.Context, bot *tele.Bot, kind, publicURL string, cfg coreconfig.BotConfig) error {
	if bot == nil {
		return fmt.Errorf("telegram: nil bot")
	}
	base := strings.TrimRight(strings.TrimSpace(publicURL), "/")
	if base == "" {
		return fmt.Errorf("telegram: public url is required to register the %s webhook", kind)
	}

	wh := &tele.Webhook{
		AllowedUpdates: []string{"message", "callback_query"},
		Endpoint:       &tele.WebhookEndpoint{PublicURL: base + WebhookPath(kind, cfg.Secret)},
	}
	if err := bot.SetWebhook(wh); err != nil {
		logger.TG.LogAttrs(ctx, slog.LevelError, "set webhook failed",
			slog.String("event", "webhook.register"),
			slog.String("status", "fail"),
			slog.String("bot", kind),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("telegram: set %s webhook: %w", kind, err)
	}
	logger.TG.LogAttrs(ctx, slog.LevelInfo, "webhook registered",
		slog.String("event", "webhook.register"),
		slog.String("status", "ok"),
		slog.String("bot", kind),
		slog.String("public_url", base),
	)
	return nil
}
