package bot

import (
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/cardshop/core/telegram/callbacks"
	"github.com/m3rciful/cardshop/core/telegram/format"
	"github.com/m3rciful/cardshop/core/telegram/keyboard"
	"github.com/m3rciful/cardshop/shop/intent"
	"github.com/m3rciful/cardshop/shop/model"
)

const dateLayout = "2006-01-02 15:04"

const (
	textBanned = "🚫 Your account has been suspended. Contact support if you think this is a mistake."

	textUnknown = "🤔 I did not understand that.\n\n" +
		"Use the menu buttons, or send a number:\n" +
		"1 Browse products\n2 Wallet\n3 Order history\n4 Special offers\n" +
		"5 About\n6 Refresh\n7 Daily surprises\n8 Support"

	textTopup = "💳 *Top up your wallet*\n\n" +
		"Balance top-ups are handled by our support team. Send them your user ID " +
		"and the amount; the credit shows up here once it is confirmed."

	textOffers = "🎁 *Special offers*\n\nNo offers are running right now. Check back soon!"

	textDailySurprises = "🎲 *Daily surprises*\n\nToday's surprise is still being wrapped. Come back tomorrow!"

	textSupport = "🆘 *Support*\n\nWrite to our support team and include your order ID if your question is about an order."

	textComplaint = "📝 *Submit a complaint*\n\nDescribe the problem to support and mention the order ID. Every complaint gets an answer."

	textFAQ = "❓ *FAQ*\n\n" +
		"*How do I buy?* Browse products, pick a category and press Buy.\n\n" +
		"*When do I get my order?* Codes arrive instantly. Other orders are delivered by an operator.\n\n" +
		"*Can I cancel?* Pending orders can be cancelled from the order details; the price is refunded.\n\n" +
		"*How do I top up?* Open the wallet and follow the top-up instructions."

	textAdminUnknown = "🤔 Unknown command. Use the admin menu."

	textSlowDown = "⏳ Please slow down and try again in a moment."
)

var inputPrompts = map[model.DeliveryType]string{
	model.DeliveryID:     "🆔 Send the account ID the product should be delivered to.",
	model.DeliveryEmail:  "📧 Send the email address the product should be delivered to.",
	model.DeliveryPhone:  "📱 Send the phone number in international format, e.g. +15551234567.",
	model.DeliveryManual: "✍️ Describe how you want the product delivered (up to 500 characters).",
}

var inputHints = map[model.DeliveryType]string{
	model.DeliveryID:     "The ID must be a single word without spaces.",
	model.DeliveryEmail:  "That does not look like an email address.",
	model.DeliveryPhone:  "The phone number must start with + followed by 7 to 15 digits.",
	model.DeliveryManual: "Please send between 1 and 500 characters.",
}

func backBtn() keyboard.InlineBtn {
	return keyboard.Btn("⬅️ Main menu", "back_to_main_menu")
}

func mainMenuButton() *tele.ReplyMarkup {
	return keyboard.InlineButtons([]keyboard.InlineBtn{backBtn()})
}

func mainMenu() *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{keyboard.Btn("🛍 Browse products", "browse_products"), keyboard.Btn("💰 Wallet", "view_wallet")},
		[]keyboard.InlineBtn{keyboard.Btn("📦 My orders", "order_history"), keyboard.Btn("🎁 Special offers", "special_offers")},
		[]keyboard.InlineBtn{keyboard.Btn("ℹ️ About", "about_store"), keyboard.Btn("🔄 Refresh", "refresh_data")},
		[]keyboard.InlineBtn{keyboard.Btn("🎲 Daily surprises", "daily_surprises"), keyboard.Btn("🆘 Support", "support")},
		[]keyboard.InlineBtn{keyboard.Btn("❓ FAQ", "faq"), keyboard.Btn("📝 Complaint", "submit_complaint")},
	)
}

func welcomeText(storeName string, u model.User, firstVisit bool) string {
	greeting := "👋 Welcome back"
	if firstVisit {
		greeting = "👋 Welcome"
	}
	name := u.DisplayName
	if name == "" {
		name = u.Username
	}
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("%s to *%s*, %s!\n\n💰 Balance: $%s\n\nChoose an option below.",
		greeting, format.Escape(storeName), format.Escape(name), u.Balance)
}

func aboutText(storeName string) string {
	return fmt.Sprintf("ℹ️ *About %s*\n\nDigital gift cards and top-ups, delivered instantly or by an operator. "+
		"Prices are charged from your wallet balance.", format.Escape(storeName))
}

func categoriesText(cats []model.Category) (string, *tele.ReplyMarkup) {
	if len(cats) == 0 {
		return "🛍 No products are available right now.", mainMenuButton()
	}
	buttons := make([]keyboard.InlineBtn, 0, len(cats))
	for _, c := range cats {
		buttons = append(buttons, keyboard.Btn(
			fmt.Sprintf("%s · $%s", c.Name, c.Price),
			callbacks.Data(intent.PrefixCategory, c.ID),
		))
	}
	return "🛍 *Products*\n\nPick a category:", keyboard.WithFooter(keyboard.InlineButtonsNPerRow(buttons, 1), backBtn())
}

func categoryText(c model.Category, balance model.Money) (string, *tele.ReplyMarkup) {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", format.Escape(c.Name))
	if c.ProductName != "" {
		fmt.Fprintf(&b, "%s\n", format.Escape(c.ProductName))
	}
	if c.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", format.Escape(c.Description))
	}
	fmt.Fprintf(&b, "\n💵 Price: $%s\n", c.Price)
	fmt.Fprintf(&b, "🚚 Delivery: %s\n", deliveryLabel(c.DeliveryType))
	if c.RedemptionMethod != "" {
		fmt.Fprintf(&b, "🔑 Redemption: %s\n", format.Escape(c.RedemptionMethod))
	}
	if c.Terms != "" {
		fmt.Fprintf(&b, "📄 Terms: %s\n", format.Escape(c.Terms))
	}
	fmt.Fprintf(&b, "\n💰 Your balance: $%s", balance)

	rows := [][]keyboard.InlineBtn{}
	if balance >= c.Price {
		rows = append(rows, []keyboard.InlineBtn{keyboard.Btn("🛒 Buy for $"+c.Price.String(), callbacks.Data(intent.PrefixBuyCategory, c.ID))})
	} else {
		b.WriteString("\n\n⚠️ Your balance is too low for this product.")
		rows = append(rows, []keyboard.InlineBtn{keyboard.Btn("💳 Top up", "topup_wallet")})
	}
	rows = append(rows, []keyboard.InlineBtn{keyboard.Btn("⬅️ Products", "browse_products"), backBtn()})
	return b.String(), keyboard.InlineButtonsRows(rows...)
}

func deliveryLabel(d model.DeliveryType) string {
	switch d {
	case model.DeliveryCode:
		return "instant code"
	case model.DeliveryID:
		return "to your account ID"
	case model.DeliveryEmail:
		return "by email"
	case model.DeliveryPhone:
		return "to your phone number"
	case model.DeliveryManual:
		return "by an operator"
	}
	return string(d)
}

func statusLabel(s model.OrderStatus) string {
	switch s {
	case model.StatusPending:
		return "⏳ pending"
	case model.StatusCompleted:
		return "✅ completed"
	case model.StatusFailed:
		return "❌ failed"
	case model.StatusCancelled:
		return "🚫 cancelled"
	}
	return string(s)
}

func walletText(u model.User) (string, *tele.ReplyMarkup) {
	text := fmt.Sprintf("💰 *Wallet*\n\nBalance: $%s\nUser ID: `%d`", u.Balance, u.ID)
	return text, keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{keyboard.Btn("💳 Top up", "topup_wallet"), keyboard.Btn("📊 Spending", "spending_details")},
		[]keyboard.InlineBtn{backBtn()},
	)
}

func historyText(list []model.Order) (string, *tele.ReplyMarkup) {
	if len(list) == 0 {
		return "📦 You have no orders yet.", keyboard.InlineButtonsRows(
			[]keyboard.InlineBtn{keyboard.Btn("🛍 Browse products", "browse_products")},
			[]keyboard.InlineBtn{backBtn()},
		)
	}
	buttons := make([]keyboard.InlineBtn, 0, len(list))
	for _, o := range list {
		buttons = append(buttons, keyboard.Btn(
			fmt.Sprintf("%s · $%s · %s", o.CategoryName, o.Price, o.Status),
			callbacks.Data(intent.PrefixOrderDetails, o.ID),
		))
	}
	return "📦 *Your orders*\n\nNewest first:", keyboard.WithFooter(keyboard.InlineButtonsNPerRow(buttons, 1), backBtn())
}

// orderText renders an order for the buyer or, with admin set, for the operator.
func orderText(o model.Order, admin bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🧾 *Order* `%s`\n\n", o.ID)
	if admin {
		fmt.Fprintf(&b, "User: `%d`\n", o.UserID)
	}
	fmt.Fprintf(&b, "Product: %s", format.Escape(o.CategoryName))
	if o.ProductName != "" {
		fmt.Fprintf(&b, " (%s)", format.Escape(o.ProductName))
	}
	fmt.Fprintf(&b, "\nPrice: $%s\n", o.Price)
	fmt.Fprintf(&b, "Delivery: %s\n", deliveryLabel(o.DeliveryType))
	if o.UserInput != nil {
		fmt.Fprintf(&b, "Details: %s\n", format.Escape(*o.UserInput))
	}
	fmt.Fprintf(&b, "Status: %s\n", statusLabel(o.Status))
	fmt.Fprintf(&b, "Created: %s\n", o.CreatedAt.Format(dateLayout))
	switch o.Status {
	case model.StatusCompleted:
		fmt.Fprintf(&b, "Completed: %s\n", format.Timestamp(o.CompletedAt, "-"))
	case model.StatusCancelled:
		fmt.Fprintf(&b, "Cancelled: %s\n", format.Timestamp(o.CancelledAt, "-"))
	case model.StatusFailed:
		fmt.Fprintf(&b, "Failed: %s\n", format.Timestamp(o.FailedAt, "-"))
	}
	if o.CodeSent != nil {
		fmt.Fprintf(&b, "\n🔑 Code: `%s`\n", *o.CodeSent)
	}
	if o.AdminNotes != nil && (admin || o.Status != model.StatusPending) {
		fmt.Fprintf(&b, "\n📝 %s\n", format.Escape(*o.AdminNotes))
	}
	return b.String()
}

// spendingSummary totals a buyer's orders by status.
type spendingSummary struct {
	spent     model.Money
	completed int
	pending   int
	reserved  model.Money
	refunded  int
}

func summarize(list []model.Order) spendingSummary {
	var s spendingSummary
	for _, o := range list {
		switch o.Status {
		case model.StatusCompleted:
			s.spent += o.Price
			s.completed++
		case model.StatusPending:
			s.pending++
			s.reserved += o.Price
		case model.StatusFailed, model.StatusCancelled:
			s.refunded++
		}
	}
	return s
}

func spendingText(list []model.Order) string {
	s := summarize(list)
	return fmt.Sprintf("📊 *Spending*\n\nCompleted orders: %d\nTotal spent: $%s\n\nPending orders: %d\nReserved: $%s\n\nRefunded orders: %d",
		s.completed, s.spent, s.pending, s.reserved, s.refunded)
}

func adminMenu() *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{keyboard.Btn("👥 Users", "manage_users"), keyboard.Btn("📦 Orders", "manage_orders")},
		[]keyboard.InlineBtn{keyboard.Btn("🎫 Codes", "manage_codes"), keyboard.Btn("💰 Add balance", "add_user_balance")},
	)
}

func adminBackBtn() keyboard.InlineBtn {
	return keyboard.Btn("⬅️ Admin menu", "admin_main_menu")
}

func adminBackMenu() *tele.ReplyMarkup {
	return keyboard.InlineButtons([]keyboard.InlineBtn{adminBackBtn()})
}

func adminUsersMenu() *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{keyboard.Btn("📋 View users", "view_users")},
		[]keyboard.InlineBtn{keyboard.Btn("🚫 Ban user", "ban_user"), keyboard.Btn("✅ Unban user", "unban_user")},
		[]keyboard.InlineBtn{keyboard.Btn("💰 Add balance", "add_user_balance")},
		[]keyboard.InlineBtn{adminBackBtn()},
	)
}

func adminOrdersMenu() *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{keyboard.Btn("⏳ View all pending", "view_all_pending")},
		[]keyboard.InlineBtn{adminBackBtn()},
	)
}

func adminCodesMenu() *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{keyboard.Btn("👁 View codes", "view_codes"), keyboard.Btn("⚠️ Low stock", "low_stock_alerts")},
		[]keyboard.InlineBtn{adminBackBtn()},
	)
}

func stockMark(l model.StockLevel) string {
	switch {
	case l.Available > 2*model.LowStockThreshold:
		return "🟢"
	case !l.Low():
		return "🟡"
	default:
		return "🔴"
	}
}

func stockText(levels []model.StockLevel) string {
	if len(levels) == 0 {
		return "❌ No category is delivered by code."
	}
	var b strings.Builder
	b.WriteString("👁 *Code stock*\n\n")
	for _, l := range levels {
		fmt.Fprintf(&b, "%s *%s*\n   Total: %d | Available: %d | Used: %d\n\n",
			stockMark(l), format.Escape(l.CategoryName), l.Total, l.Available, l.Used())
	}
	return b.String()
}

func lowStockText(levels []model.StockLevel) string {
	var b strings.Builder
	for _, l := range levels {
		if !l.Low() {
			continue
		}
		if l.Available == 0 {
			fmt.Fprintf(&b, "🔴 Sold out - %s\n", format.Escape(l.CategoryName))
			continue
		}
		fmt.Fprintf(&b, "⚠️ %d left - %s\n", l.Available, format.Escape(l.CategoryName))
	}
	if b.Len() == 0 {
		return "✅ *Every code category is well stocked.*"
	}
	return "🚨 *Low stock*\n\n" + b.String()
}

func usersText(list []model.User) string {
	if len(list) == 0 {
		return "👥 No users yet."
	}
	var b strings.Builder
	b.WriteString("👥 *Users* (newest first)\n\n")
	for _, u := range list {
		name := u.DisplayName
		if u.Username != "" {
			name += " @" + u.Username
		}
		fmt.Fprintf(&b, "`%d` %s · $%s", u.ID, format.Escape(strings.TrimSpace(name)), u.Balance)
		if u.IsBanned {
			fmt.Fprintf(&b, " · 🚫 %s", format.Escape(format.DerefString(u.BanReason, "banned")))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func pendingText(list []model.Order) (string, *tele.ReplyMarkup) {
	if len(list) == 0 {
		return "✅ No pending orders.", adminBackMenu()
	}
	buttons := make([]keyboard.InlineBtn, 0, len(list))
	for _, o := range list {
		buttons = append(buttons, keyboard.Btn(
			fmt.Sprintf("%s · %d · %s", o.CreatedAt.Format(dateLayout), o.UserID, o.CategoryName),
			callbacks.Data(intent.PrefixProcessOrder, o.ID),
		))
	}
	text := fmt.Sprintf("⏳ *Pending orders* (%d, oldest first)", len(list))
	return text, keyboard.WithFooter(keyboard.InlineButtonsNPerRow(buttons, 1), adminBackBtn())
}

func processMenu(o model.Order) *tele.ReplyMarkup {
	if o.Status != model.StatusPending {
		return keyboard.InlineButtonsRows(
			[]keyboard.InlineBtn{keyboard.Btn("⏳ Pending orders", "view_all_pending")},
			[]keyboard.InlineBtn{adminBackBtn()},
		)
	}
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{
			keyboard.Btn("✅ Complete", callbacks.Data(intent.PrefixCompleteOrder, o.ID)),
			keyboard.Btn("❌ Fail", callbacks.Data(intent.PrefixFailOrder, o.ID)),
		},
		[]keyboard.InlineBtn{keyboard.Btn("🚫 Cancel", callbacks.Data(intent.PrefixCancelOrder, o.ID))},
		[]keyboard.InlineBtn{keyboard.Btn("⏳ Pending orders", "view_all_pending"), adminBackBtn()},
	)
}
