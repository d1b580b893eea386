// Package bot drives both bot identities: it screens every update through the
// identity gate, resolves it with the intent router and runs the matching
// user or admin flow.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/cardshop/core/logger"
	"github.com/m3rciful/cardshop/core/telegram"
	"github.com/m3rciful/cardshop/core/telegram/event"
	"github.com/m3rciful/cardshop/core/telegram/state"
	"github.com/m3rciful/cardshop/shop/bans"
	"github.com/m3rciful/cardshop/shop/gate"
	"github.com/m3rciful/cardshop/shop/intent"
	"github.com/m3rciful/cardshop/shop/model"
	"github.com/m3rciful/cardshop/shop/orders"
	"github.com/m3rciful/cardshop/shop/store"
)

// Replier sends one message through a bot identity. notify.Outbox implements it.
type Replier interface {
	Send(ctx context.Context, action string, msg telegram.Message) error
}

// Deps wires the dispatcher.
type Deps struct {
	Gate   *gate.Gate
	Engine *orders.Engine
	Users  store.Users
	Stock  store.Stock
	Bans   *bans.Registry

	// UserSessions must be the store the engine uses.
	UserSessions  state.Store
	AdminSessions state.Store

	UserOut  Replier
	AdminOut Replier

	// Middlewares wrap both bot handlers; the first runs outermost.
	Middlewares []event.MiddlewareFunc
	// HistoryLimit caps order history listings. Defaults to 10.
	HistoryLimit int
	// StoreName is shown in greetings.
	StoreName string
	Now       func() time.Time
}

// Dispatcher handles updates of both bots.
type Dispatcher struct {
	d           Deps
	locks       *keyedMutex
	userRouter  *intent.Router
	adminRouter *intent.Router
	user        event.HandlerFunc
	admin       event.HandlerFunc
}

// New builds a dispatcher and its handler chains.
func New(d Deps) *Dispatcher {
	if d.HistoryLimit <= 0 {
		d.HistoryLimit = 10
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.StoreName == "" {
		d.StoreName = "Card Shop"
	}
	disp := &Dispatcher{
		d:     d,
		locks: newKeyedMutex(),
		userRouter: intent.NewRouter(
			model.StateAwaitingID, model.StateAwaitingEmail,
			model.StateAwaitingPhone, model.StateAwaitingManual,
		),
		adminRouter: intent.NewRouter(
			model.StateAdminBanUserID, model.StateAdminBanReason, model.StateAdminUnbanUserID,
			model.StateAdminBalanceUserID, model.StateAdminBalanceAmount, model.StateAdminDelivery,
		).WithMenuEscape(),
	}
	disp.user = event.Chain(disp.screen(gate.BotUser, disp.handleUser), d.Middlewares...)
	disp.admin = event.Chain(disp.screen(gate.BotAdmin, disp.handleAdmin), d.Middlewares...)
	return disp
}

// VerifySecret checks the path secret of a webhook call.
func (disp *Dispatcher) VerifySecret(kind gate.BotKind, secret string) error {
	return disp.d.Gate.VerifySecret(kind, secret)
}

// Handle processes one update for kind. It returns gate.ErrUnauthorized for a
// wrong secret; any other error is a handling failure the caller only logs.
func (disp *Dispatcher) Handle(ctx context.Context, kind gate.BotKind, secret string, upd *tele.Update) error {
	if err := disp.VerifySecret(kind, secret); err != nil {
		return err
	}
	u := event.FromTele(string(kind), upd)
	if u.Kind() == event.KindOther {
		return nil
	}

	if u.UserID != 0 {
		unlock := disp.locks.Lock(string(kind) + ":" + strconv.FormatInt(u.UserID, 10))
		defer unlock()
	}
	if kind == gate.BotAdmin {
		return disp.admin(ctx, &u)
	}
	return disp.user(ctx, &u)
}

// screen runs the requester checks inside the middleware chain so suppressed
// events are logged and counted like any other.
func (disp *Dispatcher) screen(kind gate.BotKind, next event.HandlerFunc) event.HandlerFunc {
	return func(ctx context.Context, u *event.Update) error {
		v := disp.d.Gate.Screen(ctx, kind, u.UserID)
		if !v.Suppressed() {
			return next(ctx, u)
		}
		u.Handler = "gate." + v.Reason
		u.Outcome = "suppressed"
		if v.Reason == gate.ReasonBanned {
			return disp.reply(ctx, disp.d.UserOut, u, "ban_notice", textBanned, nil)
		}
		return nil
	}
}

// Throttled answers an update the rate limiter dropped. Requesters the gate
// suppresses get nothing, so it is safe on both bots.
func (disp *Dispatcher) Throttled(ctx context.Context, u *event.Update) error {
	kind := gate.BotKind(u.Bot)
	if disp.d.Gate.Screen(ctx, kind, u.UserID).Suppressed() {
		return nil
	}
	out := disp.d.UserOut
	if kind == gate.BotAdmin {
		out = disp.d.AdminOut
	}
	u.Outcome = "rate_limited"
	return disp.reply(ctx, out, u, "rate_limited", textSlowDown, nil)
}

// reply answers in the update's chat.
func (disp *Dispatcher) reply(ctx context.Context, out Replier, u *event.Update, action, text string, markup *tele.ReplyMarkup) error {
	if err := disp.send(ctx, out, u.ChatID, action, text, markup); err != nil {
		return err
	}
	u.NoteReply(markup != nil)
	return nil
}

// send delivers text to chatID without tying it to the current update.
func (disp *Dispatcher) send(ctx context.Context, out Replier, chatID int64, action, text string, markup *tele.ReplyMarkup) error {
	if out == nil {
		return nil
	}
	err := out.Send(ctx, action, telegram.Message{
		ChatID:    chatID,
		Text:      text,
		ParseMode: tele.ModeMarkdown,
		Markup:    markup,
	})
	if err != nil {
		return fmt.Errorf("send %s: %w", action, err)
	}
	return nil
}

// notifyBuyer tells a buyer about an admin decision. Failures are logged only.
func (disp *Dispatcher) notifyBuyer(ctx context.Context, userID int64, action, text string) {
	if err := disp.send(ctx, disp.d.UserOut, userID, action, text, mainMenuButton()); err != nil {
		logger.LogEvent(ctx, logger.BotAdmin, slog.LevelWarn, "buyer.notify",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
	}
}

func (disp *Dispatcher) loadSession(ctx context.Context, st state.Store, userID int64) (*state.Session, error) {
	sess, ok, err := st.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (disp *Dispatcher) clearSession(ctx context.Context, st state.Store, userID int64) error {
	if err := st.Clear(ctx, userID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
