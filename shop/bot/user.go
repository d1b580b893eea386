package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/cardshop/core/logger"
	"github.com/m3rciful/cardshop/core/telegram/event"
	"github.com/m3rciful/cardshop/core/telegram/keyboard"
	"github.com/m3rciful/cardshop/shop/intent"
	"github.com/m3rciful/cardshop/shop/model"
	"github.com/m3rciful/cardshop/shop/orders"
	"github.com/m3rciful/cardshop/shop/store"
)

// spendingWindow is how many recent orders the spending summary covers.
const spendingWindow = 100

// handleUser runs one admitted user-bot update.
func (disp *Dispatcher) handleUser(ctx context.Context, u *event.Update) error {
	user, created, err := disp.d.Users.EnsureUser(ctx, store.NewUser{
		ID:          u.UserID,
		Username:    u.Username,
		DisplayName: u.DisplayName(),
		JoinedAt:    disp.d.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	if created {
		logger.LogEvent(ctx, logger.BotUser, slog.LevelInfo, "user.created",
			slog.String("status", "ok"),
			slog.Int64("user_id", user.ID),
		)
	}

	sess, err := disp.loadSession(ctx, disp.d.UserSessions, u.UserID)
	if err != nil {
		return err
	}
	action := disp.userRouter.Resolve(intent.Event{Text: u.Text, CallbackData: u.CallbackData}, sess)
	u.Handler = action.Kind.String()
	u.Outcome = "ok"

	switch action.Kind {
	case intent.ActStart:
		if err := disp.clearSession(ctx, disp.d.UserSessions, u.UserID); err != nil {
			return err
		}
		return disp.reply(ctx, disp.d.UserOut, u, "main_menu", welcomeText(disp.d.StoreName, user, created), mainMenu())
	case intent.ActBackToMenu, intent.ActRefresh:
		if err := disp.clearSession(ctx, disp.d.UserSessions, u.UserID); err != nil {
			return err
		}
		return disp.reply(ctx, disp.d.UserOut, u, "main_menu", welcomeText(disp.d.StoreName, user, false), mainMenu())
	case intent.ActSubmitInput:
		return disp.submitInput(ctx, u, user, action.Text)
	case intent.ActBrowse:
		cats, err := disp.d.Engine.ActiveCategories(ctx)
		if err != nil {
			return err
		}
		text, kb := categoriesText(cats)
		return disp.reply(ctx, disp.d.UserOut, u, "categories", text, kb)
	case intent.ActCategory:
		return disp.showCategory(ctx, u, user, action.Arg)
	case intent.ActBuyCategory:
		return disp.buy(ctx, u, user, action.Arg)
	case intent.ActWallet:
		text, kb := walletText(user)
		return disp.reply(ctx, disp.d.UserOut, u, "wallet", text, kb)
	case intent.ActTopup:
		return disp.reply(ctx, disp.d.UserOut, u, "topup", textTopup, keyboard.InlineButtonsRows(
			[]keyboard.InlineBtn{keyboard.Btn("🆘 Support", "support")},
			[]keyboard.InlineBtn{backBtn()},
		))
	case intent.ActHistory:
		list, err := disp.d.Engine.UserOrders(ctx, user.ID, disp.d.HistoryLimit)
		if err != nil {
			return err
		}
		text, kb := historyText(list)
		return disp.reply(ctx, disp.d.UserOut, u, "history", text, kb)
	case intent.ActOrderDetails:
		return disp.showOwnOrder(ctx, u, user, action.Arg)
	case intent.ActCancelOrder:
		return disp.cancelOwnOrder(ctx, u, user, action.Arg)
	case intent.ActSpendingDetails:
		list, err := disp.d.Engine.UserOrders(ctx, user.ID, spendingWindow)
		if err != nil {
			return err
		}
		return disp.reply(ctx, disp.d.UserOut, u, "spending", spendingText(list), mainMenuButton())
	case intent.ActOffers:
		return disp.reply(ctx, disp.d.UserOut, u, "offers", textOffers, mainMenuButton())
	case intent.ActAbout:
		return disp.reply(ctx, disp.d.UserOut, u, "about", aboutText(disp.d.StoreName), mainMenuButton())
	case intent.ActDailySurprises:
		return disp.reply(ctx, disp.d.UserOut, u, "daily_surprises", textDailySurprises, mainMenuButton())
	case intent.ActSupport:
		return disp.reply(ctx, disp.d.UserOut, u, "support", textSupport, mainMenuButton())
	case intent.ActFAQ:
		return disp.reply(ctx, disp.d.UserOut, u, "faq", textFAQ, mainMenuButton())
	case intent.ActComplaint:
		return disp.reply(ctx, disp.d.UserOut, u, "complaint", textComplaint, mainMenuButton())
	default:
		u.Handler = intent.ActUnknown.String()
		u.Outcome = "unknown"
		return disp.reply(ctx, disp.d.UserOut, u, "help", textUnknown, mainMenu())
	}
}

func (disp *Dispatcher) showCategory(ctx context.Context, u *event.Update, user model.User, id string) error {
	cat, err := disp.d.Engine.Category(ctx, id)
	if errors.Is(err, orders.ErrCategoryUnavailable) {
		u.Outcome = "noop"
		return disp.reply(ctx, disp.d.UserOut, u, "category", "😕 This product is no longer available.", backToProducts())
	}
	if err != nil {
		return err
	}
	text, kb := categoryText(cat, user.Balance)
	return disp.reply(ctx, disp.d.UserOut, u, "category", text, kb)
}

func (disp *Dispatcher) buy(ctx context.Context, u *event.Update, user model.User, categoryID string) error {
	p, err := disp.d.Engine.Begin(ctx, user, categoryID)
	switch {
	case errors.Is(err, orders.ErrCategoryUnavailable):
		u.Outcome = "noop"
		return disp.reply(ctx, disp.d.UserOut, u, "buy", "😕 This product is no longer available.", backToProducts())
	case errors.Is(err, orders.ErrInsufficientFunds):
		u.Outcome = "noop"
		text := fmt.Sprintf("⚠️ Not enough balance. The price is $%s and you have $%s.", p.Category.Price, user.Balance)
		return disp.reply(ctx, disp.d.UserOut, u, "buy", text, keyboard.InlineButtonsRows(
			[]keyboard.InlineBtn{keyboard.Btn("💳 Top up", "topup_wallet")},
			[]keyboard.InlineBtn{backBtn()},
		))
	case errors.Is(err, orders.ErrOutOfStock), errors.Is(err, orders.ErrFulfillment):
		u.Outcome = "fulfillment_failed"
		logger.LogEvent(ctx, logger.BotUser, slog.LevelWarn, "order.fulfillment",
			slog.String("status", "fail"),
			slog.String("category_id", categoryID),
			slog.String("err", err.Error()),
		)
		text := "😕 Sorry, we could not deliver this product right now. Your balance was refunded."
		if p.Order != nil {
			text = fmt.Sprintf("😕 Sorry, order `%s` could not be delivered right now. Your balance was refunded.", p.Order.ID)
		}
		return disp.reply(ctx, disp.d.UserOut, u, "buy", text, mainMenuButton())
	case err != nil:
		return err
	}

	switch p.Outcome {
	case orders.Fulfilled:
		return disp.reply(ctx, disp.d.UserOut, u, "buy", orderText(*p.Order, false), keyboard.InlineButtonsRows(
			[]keyboard.InlineBtn{keyboard.Btn("📦 My orders", "order_history")},
			[]keyboard.InlineBtn{backBtn()},
		))
	case orders.AwaitingInput:
		u.Outcome = "awaiting_input"
		return disp.reply(ctx, disp.d.UserOut, u, "buy", inputPrompts[p.Category.DeliveryType], cancelInputMenu())
	}
	return nil
}

func (disp *Dispatcher) submitInput(ctx context.Context, u *event.Update, user model.User, text string) error {
	order, err := disp.d.Engine.SubmitInput(ctx, user, text)
	var inputErr *orders.InputError
	switch {
	case errors.As(err, &inputErr):
		u.Outcome = "reprompt"
		msg := "⚠️ " + inputHints[inputErr.Delivery] + "\n\n" + inputPrompts[inputErr.Delivery]
		return disp.reply(ctx, disp.d.UserOut, u, "reprompt", msg, cancelInputMenu())
	case errors.Is(err, orders.ErrNoPendingInput):
		u.Outcome = "unknown"
		return disp.reply(ctx, disp.d.UserOut, u, "help", textUnknown, mainMenu())
	case errors.Is(err, orders.ErrCategoryUnavailable):
		u.Outcome = "noop"
		return disp.reply(ctx, disp.d.UserOut, u, "submit", "😕 This product is no longer available. Please start over.", backToProducts())
	case errors.Is(err, orders.ErrInsufficientFunds):
		u.Outcome = "noop"
		return disp.reply(ctx, disp.d.UserOut, u, "submit", "⚠️ Your balance no longer covers this order. Please top up and start over.", mainMenuButton())
	case err != nil:
		return err
	}

	u.Outcome = "pending"
	msg := fmt.Sprintf("✅ Order `%s` placed!\n\nAn operator will deliver it shortly. You will get a message here.", order.ID)
	return disp.reply(ctx, disp.d.UserOut, u, "submit", msg, keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{keyboard.Btn("📦 My orders", "order_history")},
		[]keyboard.InlineBtn{backBtn()},
	))
}

func (disp *Dispatcher) showOwnOrder(ctx context.Context, u *event.Update, user model.User, id string) error {
	o, err := disp.d.Engine.Order(ctx, id)
	if errors.Is(err, orders.ErrNotFound) || (err == nil && o.UserID != user.ID) {
		u.Outcome = "noop"
		return disp.reply(ctx, disp.d.UserOut, u, "order_details", "😕 Order not found.", mainMenuButton())
	}
	if err != nil {
		return err
	}
	rows := [][]keyboard.InlineBtn{}
	if o.Status == model.StatusPending {
		rows = append(rows, []keyboard.InlineBtn{keyboard.Btn("🚫 Cancel order", intent.PrefixCancelOrder+o.ID)})
	}
	rows = append(rows, []keyboard.InlineBtn{keyboard.Btn("📦 My orders", "order_history"), backBtn()})
	return disp.reply(ctx, disp.d.UserOut, u, "order_details", orderText(o, false), keyboard.InlineButtonsRows(rows...))
}

func (disp *Dispatcher) cancelOwnOrder(ctx context.Context, u *event.Update, user model.User, id string) error {
	o, err := disp.d.Engine.CancelByUser(ctx, user.ID, id)
	switch {
	case errors.Is(err, orders.ErrNotFound):
		u.Outcome = "noop"
		return disp.reply(ctx, disp.d.UserOut, u, "cancel_order", "😕 Order not found.", mainMenuButton())
	case errors.Is(err, orders.ErrNotPending):
		u.Outcome = "noop"
		text := fmt.Sprintf("ℹ️ Order `%s` is already %s and cannot be cancelled.", o.ID, o.Status)
		return disp.reply(ctx, disp.d.UserOut, u, "cancel_order", text, mainMenuButton())
	case err != nil:
		return err
	}
	text := fmt.Sprintf("🚫 Order `%s` cancelled. $%s was returned to your balance.", o.ID, o.Price)
	return disp.reply(ctx, disp.d.UserOut, u, "cancel_order", text, mainMenuButton())
}

func backToProducts() *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{keyboard.Btn("🛍 Products", "browse_products")},
		[]keyboard.InlineBtn{backBtn()},
	)
}

func cancelInputMenu() *tele.ReplyMarkup {
	return keyboard.InlineButtons([]keyboard.InlineBtn{keyboard.Btn("✖️ Cancel", "back_to_main_menu")})
}
