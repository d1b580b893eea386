package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/m3rciful/cardshop/core/logger"
	"github.com/m3rciful/cardshop/core/telegram/event"
	"github.com/m3rciful/cardshop/core/telegram/format"
	"github.com/m3rciful/cardshop/core/telegram/state"
	"github.com/m3rciful/cardshop/shop/bans"
	"github.com/m3rciful/cardshop/shop/intent"
	"github.com/m3rciful/cardshop/shop/model"
	"github.com/m3rciful/cardshop/shop/orders"
	"github.com/m3rciful/cardshop/shop/store"
)

const adminUsersLimit = 30

// handleAdmin runs one update from the administrator.
func (disp *Dispatcher) handleAdmin(ctx context.Context, u *event.Update) error {
	sess, err := disp.loadSession(ctx, disp.d.AdminSessions, u.UserID)
	if err != nil {
		return err
	}
	action := disp.adminRouter.Resolve(intent.Event{Text: u.Text, CallbackData: u.CallbackData}, sess)
	u.Handler = "admin." + action.Kind.String()
	u.Outcome = "ok"

	switch action.Kind {
	case intent.ActStart, intent.ActBackToMenu:
		if err := disp.clearSession(ctx, disp.d.AdminSessions, u.UserID); err != nil {
			return err
		}
		return disp.reply(ctx, disp.d.AdminOut, u, "admin_menu", "🛠 *Admin panel*", adminMenu())
	case intent.ActSubmitInput:
		return disp.adminInput(ctx, u, *sess, action.Text)
	case intent.ActManageUsers:
		return disp.reply(ctx, disp.d.AdminOut, u, "admin_users", "👥 *User management*", adminUsersMenu())
	case intent.ActViewUsers:
		list, err := disp.d.Users.ListUsers(ctx, adminUsersLimit)
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		return disp.reply(ctx, disp.d.AdminOut, u, "admin_users", usersText(list), adminUsersMenu())
	case intent.ActBanUser:
		return disp.askAdmin(ctx, u, model.StateAdminBanUserID, nil, "🚫 Send the user ID to ban.")
	case intent.ActUnbanUser:
		return disp.askAdmin(ctx, u, model.StateAdminUnbanUserID, nil, "✅ Send the user ID to unban.")
	case intent.ActAddBalance:
		return disp.askAdmin(ctx, u, model.StateAdminBalanceUserID, nil, "💰 Send the user ID to credit.")
	case intent.ActManageOrders:
		return disp.reply(ctx, disp.d.AdminOut, u, "admin_orders", "📦 *Order management*", adminOrdersMenu())
	case intent.ActViewPending:
		list, err := disp.d.Engine.PendingOrders(ctx)
		if err != nil {
			return err
		}
		text, kb := pendingText(list)
		return disp.reply(ctx, disp.d.AdminOut, u, "admin_pending", text, kb)
	case intent.ActProcessOrder:
		o, err := disp.d.Engine.Order(ctx, action.Arg)
		if errors.Is(err, orders.ErrNotFound) {
			u.Outcome = "noop"
			return disp.reply(ctx, disp.d.AdminOut, u, "admin_order", "😕 Order not found.", adminBackMenu())
		}
		if err != nil {
			return err
		}
		return disp.reply(ctx, disp.d.AdminOut, u, "admin_order", orderText(o, true), processMenu(o))
	case intent.ActCompleteOrder:
		return disp.startCompletion(ctx, u, action.Arg)
	case intent.ActFailOrder:
		return disp.failOrder(ctx, u, action.Arg)
	case intent.ActCancelOrder:
		return disp.adminCancel(ctx, u, action.Arg)
	case intent.ActManageCodes:
		return disp.reply(ctx, disp.d.AdminOut, u, "admin_codes", "🎫 *Code stock*", adminCodesMenu())
	case intent.ActViewCodes, intent.ActLowStock:
		return disp.showStock(ctx, u, action.Kind == intent.ActLowStock)
	default:
		u.Handler = "admin." + intent.ActUnknown.String()
		u.Outcome = "unknown"
		return disp.reply(ctx, disp.d.AdminOut, u, "admin_help", textAdminUnknown, adminMenu())
	}
}

// askAdmin moves the admin session to st and prompts for the next value.
func (disp *Dispatcher) askAdmin(ctx context.Context, u *event.Update, st state.State, data map[string]string, prompt string) error {
	if err := disp.d.AdminSessions.Set(ctx, u.UserID, state.Session{State: st, Data: data, UpdatedAt: disp.d.Now().UTC()}); err != nil {
		return fmt.Errorf("store admin session: %w", err)
	}
	u.Outcome = "awaiting_input"
	return disp.reply(ctx, disp.d.AdminOut, u, "admin_prompt", prompt, adminBackMenu())
}

func (disp *Dispatcher) adminReprompt(ctx context.Context, u *event.Update, text string) error {
	u.Outcome = "reprompt"
	return disp.reply(ctx, disp.d.AdminOut, u, "admin_prompt", "⚠️ "+text, adminBackMenu())
}

func (disp *Dispatcher) adminDone(ctx context.Context, u *event.Update, text string) error {
	if err := disp.clearSession(ctx, disp.d.AdminSessions, u.UserID); err != nil {
		return err
	}
	return disp.reply(ctx, disp.d.AdminOut, u, "admin_result", text, adminMenu())
}

// adminInput consumes free text according to the admin session state.
func (disp *Dispatcher) adminInput(ctx context.Context, u *event.Update, sess state.Session, text string) error {
	text = strings.TrimSpace(text)
	switch sess.State {
	case model.StateAdminBanUserID, model.StateAdminUnbanUserID, model.StateAdminBalanceUserID:
		target, err := parseUserID(text)
		if err != nil {
			return disp.adminReprompt(ctx, u, "That is not a valid user ID. Send digits only.")
		}
		user, err := disp.d.Users.GetUser(ctx, target)
		if errors.Is(err, store.ErrNotFound) {
			return disp.adminReprompt(ctx, u, fmt.Sprintf("User %d is unknown. Send another ID.", target))
		}
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		return disp.adminTarget(ctx, u, sess.State, user)
	case model.StateAdminBanReason:
		target, err := strconv.ParseInt(sess.Value(model.KeyTargetUserID), 10, 64)
		if err != nil {
			return disp.adminDone(ctx, u, "⚠️ The ban flow expired, please start again.")
		}
		if err := disp.d.Bans.Ban(ctx, target, text); err != nil {
			if errors.Is(err, bans.ErrReasonRequired) {
				return disp.adminReprompt(ctx, u, "A reason is required.")
			}
			return err
		}
		if err := disp.clearSession(ctx, disp.d.UserSessions, target); err != nil {
			logger.LogEvent(ctx, logger.BotAdmin, slog.LevelWarn, "session.clear",
				slog.String("status", "fail"),
				slog.Int64("user_id", target),
				slog.String("err", err.Error()),
			)
		}
		return disp.adminDone(ctx, u, fmt.Sprintf("🚫 User `%d` banned.", target))
	case model.StateAdminBalanceAmount:
		target, err := strconv.ParseInt(sess.Value(model.KeyTargetUserID), 10, 64)
		if err != nil {
			return disp.adminDone(ctx, u, "⚠️ The balance flow expired, please start again.")
		}
		amount, err := model.ParseMoney(text)
		if err != nil || amount <= 0 {
			return disp.adminReprompt(ctx, u, "Send a positive amount such as 5 or 12.50.")
		}
		balance, err := disp.d.Users.AdjustBalance(ctx, target, amount)
		if err != nil {
			return fmt.Errorf("credit balance: %w", err)
		}
		logger.LogEvent(ctx, logger.BotAdmin, slog.LevelInfo, "balance.credited",
			slog.String("status", "ok"),
			slog.Int64("user_id", target),
			slog.String("amount", amount.String()),
		)
		disp.notifyBuyer(ctx, target, "balance_credited",
			fmt.Sprintf("💰 $%s was added to your balance. New balance: $%s.", amount, balance))
		return disp.adminDone(ctx, u, fmt.Sprintf("💰 Credited $%s to `%d`. New balance: $%s.", amount, target, balance))
	case model.StateAdminDelivery:
		return disp.completeOrder(ctx, u, sess.Value(model.KeyOrderID), text)
	}
	return disp.adminDone(ctx, u, textAdminUnknown)
}

// adminTarget continues a flow once the target user is known.
func (disp *Dispatcher) adminTarget(ctx context.Context, u *event.Update, st state.State, target model.User) error {
	id := strconv.FormatInt(target.ID, 10)
	switch st {
	case model.StateAdminBanUserID:
		if target.IsBanned {
			return disp.adminDone(ctx, u, fmt.Sprintf("ℹ️ User `%d` is already banned.", target.ID))
		}
		return disp.askAdmin(ctx, u, model.StateAdminBanReason, map[string]string{model.KeyTargetUserID: id},
			fmt.Sprintf("📝 Send the ban reason for `%d`.", target.ID))
	case model.StateAdminUnbanUserID:
		if !target.IsBanned {
			return disp.adminDone(ctx, u, fmt.Sprintf("ℹ️ User `%d` is not banned.", target.ID))
		}
		if err := disp.d.Bans.Unban(ctx, target.ID); err != nil {
			return err
		}
		return disp.adminDone(ctx, u, fmt.Sprintf("✅ User `%d` unbanned.", target.ID))
	default:
		return disp.askAdmin(ctx, u, model.StateAdminBalanceAmount, map[string]string{model.KeyTargetUserID: id},
			fmt.Sprintf("💰 Balance of `%d` is $%s. Send the amount to add.", target.ID, target.Balance))
	}
}

func (disp *Dispatcher) startCompletion(ctx context.Context, u *event.Update, orderID string) error {
	o, err := disp.d.Engine.Order(ctx, orderID)
	if errors.Is(err, orders.ErrNotFound) {
		u.Outcome = "noop"
		return disp.reply(ctx, disp.d.AdminOut, u, "admin_order", "😕 Order not found.", adminBackMenu())
	}
	if err != nil {
		return err
	}
	if o.Status.IsTerminal() {
		u.Outcome = "already_resolved"
		return disp.reply(ctx, disp.d.AdminOut, u, "admin_order", alreadyResolvedText(o), processMenu(o))
	}
	return disp.askAdmin(ctx, u, model.StateAdminDelivery, map[string]string{model.KeyOrderID: o.ID},
		fmt.Sprintf("📨 Send the delivery text for order `%s`. It is forwarded to the buyer as is.", o.ID))
}

func (disp *Dispatcher) completeOrder(ctx context.Context, u *event.Update, orderID, text string) error {
	if text == "" {
		return disp.adminReprompt(ctx, u, "The delivery text cannot be empty.")
	}
	res, err := disp.d.Engine.Complete(ctx, orderID, &text)
	if errors.Is(err, orders.ErrNotFound) {
		return disp.adminDone(ctx, u, "😕 Order not found.")
	}
	if err != nil {
		return err
	}
	if res.AlreadyResolved {
		u.Outcome = "already_resolved"
		return disp.adminDone(ctx, u, alreadyResolvedText(res.Order))
	}
	disp.notifyBuyer(ctx, res.Order.UserID, "order_completed",
		fmt.Sprintf("✅ Your order `%s` (%s) is complete!\n\n%s", res.Order.ID, format.Escape(res.Order.CategoryName), format.Escape(text)))
	return disp.adminDone(ctx, u, fmt.Sprintf("✅ Order `%s` completed and the buyer was notified.", res.Order.ID))
}

func (disp *Dispatcher) failOrder(ctx context.Context, u *event.Update, orderID string) error {
	reason := "Rejected by the operator"
	res, err := disp.d.Engine.Fail(ctx, orderID, &reason)
	if errors.Is(err, orders.ErrNotFound) {
		u.Outcome = "noop"
		return disp.reply(ctx, disp.d.AdminOut, u, "admin_order", "😕 Order not found.", adminBackMenu())
	}
	if err != nil {
		return err
	}
	if res.AlreadyResolved {
		u.Outcome = "already_resolved"
		return disp.reply(ctx, disp.d.AdminOut, u, "admin_order", alreadyResolvedText(res.Order), processMenu(res.Order))
	}
	disp.notifyBuyer(ctx, res.Order.UserID, "order_failed",
		fmt.Sprintf("❌ Your order `%s` (%s) could not be fulfilled. $%s was returned to your balance.",
			res.Order.ID, format.Escape(res.Order.CategoryName), res.Order.Price))
	return disp.reply(ctx, disp.d.AdminOut, u, "admin_order",
		fmt.Sprintf("❌ Order `%s` failed and refunded.", res.Order.ID), adminOrdersMenu())
}

func (disp *Dispatcher) adminCancel(ctx context.Context, u *event.Update, orderID string) error {
	o, err := disp.d.Engine.CancelByAdmin(ctx, orderID)
	switch {
	case errors.Is(err, orders.ErrNotFound):
		u.Outcome = "noop"
		return disp.reply(ctx, disp.d.AdminOut, u, "admin_order", "😕 Order not found.", adminBackMenu())
	case errors.Is(err, orders.ErrNotPending):
		u.Outcome = "already_resolved"
		return disp.reply(ctx, disp.d.AdminOut, u, "admin_order", alreadyResolvedText(o), processMenu(o))
	case err != nil:
		return err
	}
	disp.notifyBuyer(ctx, o.UserID, "order_cancelled",
		fmt.Sprintf("🚫 Your order `%s` (%s) was cancelled. $%s was returned to your balance.",
			o.ID, format.Escape(o.CategoryName), o.Price))
	return disp.reply(ctx, disp.d.AdminOut, u, "admin_order",
		fmt.Sprintf("🚫 Order `%s` cancelled and refunded.", o.ID), adminOrdersMenu())
}

// showStock lists code categories with their counts, or only the low ones.
func (disp *Dispatcher) showStock(ctx context.Context, u *event.Update, lowOnly bool) error {
	if disp.d.Stock == nil {
		u.Outcome = "noop"
		return disp.reply(ctx, disp.d.AdminOut, u, "admin_codes", "ℹ️ Stock reporting is not available.", adminCodesMenu())
	}
	levels, err := disp.d.Stock.InventoryStats(ctx)
	if err != nil {
		return err
	}
	if lowOnly {
		return disp.reply(ctx, disp.d.AdminOut, u, "admin_codes", lowStockText(levels), adminCodesMenu())
	}
	return disp.reply(ctx, disp.d.AdminOut, u, "admin_codes", stockText(levels), adminCodesMenu())
}

func alreadyResolvedText(o model.Order) string {
	return fmt.Sprintf("ℹ️ Order `%s` is already resolved (%s).", o.ID, o.Status)
}

func parseUserID(text string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", text)
	}
	return id, nil
}
