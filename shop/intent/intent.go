// Package intent maps inbound events plus the current session to exactly one Action.
// The mapping lives in the tables below; handlers switch on Kind only.
package intent

import (
	"strings"

	"github.com/m3rciful/cardshop/core/telegram/callbacks"
	"github.com/m3rciful/cardshop/core/telegram/state"
)

// Kind enumerates every action the bots understand.
type Kind int

const (
	ActUnknown Kind = iota
	ActStart
	ActBackToMenu
	ActSubmitInput

	ActBrowse
	ActWallet
	ActTopup
	ActHistory
	ActOffers
	ActAbout
	ActRefresh
	ActDailySurprises
	ActSupport
	ActFAQ
	ActComplaint
	ActSpendingDetails
	ActCategory
	ActBuyCategory
	ActOrderDetails
	ActCancelOrder

	ActManageUsers
	ActViewUsers
	ActBanUser
	ActUnbanUser
	ActAddBalance
	ActManageOrders
	ActViewPending
	ActProcessOrder
	ActCompleteOrder
	ActFailOrder
	ActManageCodes
	ActViewCodes
	ActLowStock
)

var kindNames = map[Kind]string{
	ActUnknown:         "unknown",
	ActStart:           "start",
	ActBackToMenu:      "back_to_main_menu",
	ActSubmitInput:     "submit_input",
	ActBrowse:          "browse_products",
	ActWallet:          "view_wallet",
	ActTopup:           "topup_wallet",
	ActHistory:         "order_history",
	ActOffers:          "special_offers",
	ActAbout:           "about_store",
	ActRefresh:         "refresh_data",
	ActDailySurprises:  "daily_surprises",
	ActSupport:         "support",
	ActFAQ:             "faq",
	ActComplaint:       "submit_complaint",
	ActSpendingDetails: "spending_details",
	ActCategory:        "category",
	ActBuyCategory:     "buy_category",
	ActOrderDetails:    "order_details",
	ActCancelOrder:     "cancel_order",
	ActManageUsers:     "manage_users",
	ActViewUsers:       "view_users",
	ActBanUser:         "ban_user",
	ActUnbanUser:       "unban_user",
	ActAddBalance:      "add_user_balance",
	ActManageOrders:    "manage_orders",
	ActViewPending:     "view_all_pending",
	ActProcessOrder:    "process_order",
	ActCompleteOrder:   "complete_order",
	ActFailOrder:       "fail_order",
	ActManageCodes:     "manage_codes",
	ActViewCodes:       "view_codes",
	ActLowStock:        "low_stock_alerts",
}

// String returns the stable name used in logs and metrics.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Action is the router's output.
type Action struct {
	Kind Kind
	// Arg is the identifier carried by prefixed callbacks (category or order id).
	Arg string
	// Text is the raw message text, set for ActSubmitInput and ActUnknown.
	Text string
}

// Event is the part of an update the router looks at.
type Event struct {
	Text         string
	CallbackData string
}

// Callback payloads with a fixed value.
var exactCallbacks = map[string]Kind{
	"browse_products":   ActBrowse,
	"view_wallet":       ActWallet,
	"topup_wallet":      ActTopup,
	"order_history":     ActHistory,
	"special_offers":    ActOffers,
	"about_store":       ActAbout,
	"refresh_data":      ActRefresh,
	"daily_surprises":   ActDailySurprises,
	"support":           ActSupport,
	"faq":               ActFAQ,
	"submit_complaint":  ActComplaint,
	"spending_details":  ActSpendingDetails,
	"back_to_main_menu": ActBackToMenu,
	"main_menu":         ActBackToMenu,
	"admin_main_menu":   ActBackToMenu,
	"manage_users":      ActManageUsers,
	"view_users":        ActViewUsers,
	"ban_user":          ActBanUser,
	"unban_user":        ActUnbanUser,
	"add_user_balance":  ActAddBalance,
	"manage_orders":     ActManageOrders,
	"view_all_pending":  ActViewPending,
	"manage_codes":      ActManageCodes,
	"view_codes":        ActViewCodes,
	"low_stock_alerts":  ActLowStock,
}

// Callback prefixes followed by an id. Longer prefixes come first so
// "buy_category_" wins over "category_".
var prefixCallbacks = []struct {
	prefix string
	kind   Kind
}{
	{PrefixBuyCategory, ActBuyCategory},
	{PrefixCategory, ActCategory},
	{PrefixOrderDetails, ActOrderDetails},
	{PrefixCancelOrder, ActCancelOrder},
	{PrefixProcessOrder, ActProcessOrder},
	{PrefixCompleteOrder, ActCompleteOrder},
	{PrefixFailOrder, ActFailOrder},
}

// Callback prefixes, exported for keyboard builders.
const (
	PrefixBuyCategory   = "buy_category_"
	PrefixCategory      = "category_"
	PrefixOrderDetails  = "order_details_"
	PrefixCancelOrder   = "cancel_order_"
	PrefixProcessOrder  = "process_order_"
	PrefixCompleteOrder = "complete_order_"
	PrefixFailOrder     = "fail_order_"
)

// Numbered shortcuts for the top-level user menu.
var digitShortcuts = map[string]Kind{
	"1": ActBrowse,
	"2": ActWallet,
	"3": ActHistory,
	"4": ActOffers,
	"5": ActAbout,
	"6": ActRefresh,
	"7": ActDailySurprises,
	"8": ActSupport,
}

// Word shortcuts, matched case-insensitively.
var keywordShortcuts = map[string]Kind{
	"shop":    ActBrowse,
	"wallet":  ActWallet,
	"balance": ActWallet,
	"orders":  ActHistory,
	"history": ActHistory,
	"offers":  ActOffers,
	"deals":   ActOffers,
	"support": ActSupport,
	"faq":     ActFAQ,
}

var commands = map[string]Kind{
	"/start": ActStart,
	"/menu":  ActBackToMenu,
	"/help":  ActUnknown,
}

var prefixes = func() []string {
	out := make([]string, len(prefixCallbacks))
	for i, p := range prefixCallbacks {
		out[i] = p.prefix
	}
	return out
}()

// Router resolves events for one bot. The awaiting set lists the session
// states in which free text is taken as input.
type Router struct {
	awaiting map[state.State]struct{}
	// escapes are commands that still resolve while input is awaited.
	escapes map[string]Kind
}

// NewRouter builds a router treating the given states as awaiting input.
func NewRouter(awaiting ...state.State) *Router {
	r := &Router{awaiting: make(map[state.State]struct{}, len(awaiting))}
	for _, s := range awaiting {
		r.awaiting[s] = struct{}{}
	}
	return r
}

// WithMenuEscape lets /start and /menu leave an awaiting state instead of
// being taken as input.
func (r *Router) WithMenuEscape() *Router {
	r.escapes = map[string]Kind{"/start": ActStart, "/menu": ActBackToMenu}
	return r
}

// Awaiting reports whether s collects free text.
func (r *Router) Awaiting(s state.State) bool {
	_, ok := r.awaiting[s]
	return ok
}

// Resolve returns exactly one Action. sess is nil when the user has no session.
func (r *Router) Resolve(ev Event, sess *state.Session) Action {
	text := strings.TrimSpace(ev.Text)
	data := strings.TrimSpace(ev.CallbackData)

	if data == "" && sess != nil && r.Awaiting(sess.State) {
		if k, ok := r.escapes[commandName(text)]; ok {
			return Action{Kind: k, Text: ev.Text}
		}
		return Action{Kind: ActSubmitInput, Text: ev.Text}
	}

	if data != "" {
		if k, ok := exactCallbacks[data]; ok {
			return Action{Kind: k}
		}
		if p, arg, ok := callbacks.SplitPrefix(data, prefixes); ok {
			for _, pc := range prefixCallbacks {
				if pc.prefix == p {
					return Action{Kind: pc.kind, Arg: arg}
				}
			}
		}
		return Action{Kind: ActUnknown}
	}

	if strings.HasPrefix(text, "/") {
		if k, ok := commands[commandName(text)]; ok {
			return Action{Kind: k, Text: ev.Text}
		}
		return Action{Kind: ActUnknown, Text: ev.Text}
	}
	if k, ok := digitShortcuts[text]; ok {
		return Action{Kind: k}
	}
	if k, ok := keywordShortcuts[strings.ToLower(text)]; ok {
		return Action{Kind: k}
	}
	return Action{Kind: ActUnknown, Text: ev.Text}
}

// commandName returns the lower-cased command of text without arguments or
// bot mention, or "" when text is not a command.
func commandName(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd, _, _ := strings.Cut(text, " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(cmd)
}
