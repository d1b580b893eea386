package intent

import (
	"testing"

	"github.com/m3rciful/cardshop/core/telegram/state"

	"github.com/stretchr/testify/assert"
)

func userRouter() *Router {
	return NewRouter("awaiting_id_input", "awaiting_email_input", "awaiting_phone_input", "awaiting_manual_input")
}

func TestResolveAwaitingInputTakesAnyText(t *testing.T) {
	r := userRouter()
	sess := &state.Session{State: "awaiting_phone_input"}

	for _, text := range []string{"12", "/start", "1", "shop", "+15551234567"} {
		a := r.Resolve(Event{Text: text}, sess)
		assert.Equal(t, ActSubmitInput, a.Kind, text)
		assert.Equal(t, text, a.Text)
	}
}

func TestResolveMenuEscapeWhileAwaiting(t *testing.T) {
	r := NewRouter("awaiting_delivery_payload").WithMenuEscape()
	sess := &state.Session{State: "awaiting_delivery_payload"}

	assert.Equal(t, ActStart, r.Resolve(Event{Text: "/start"}, sess).Kind)
	assert.Equal(t, ActBackToMenu, r.Resolve(Event{Text: " /MENU@cardshop_admin_bot "}, sess).Kind)

	for _, text := range []string{"/help", "/starter", "Code: XYZ /start", "start"} {
		a := r.Resolve(Event{Text: text}, sess)
		assert.Equal(t, ActSubmitInput, a.Kind, text)
		assert.Equal(t, text, a.Text)
	}
}

func TestResolveCallbacksWhileAwaiting(t *testing.T) {
	r := userRouter()
	sess := &state.Session{State: "awaiting_email_input"}
	a := r.Resolve(Event{CallbackData: "back_to_main_menu"}, sess)
	assert.Equal(t, ActBackToMenu, a.Kind)
}

func TestResolveNonAwaitingSessionUsesTables(t *testing.T) {
	r := userRouter()
	sess := &state.Session{State: "browsing"}
	assert.Equal(t, ActBrowse, r.Resolve(Event{Text: "1"}, sess).Kind)
	assert.Equal(t, ActUnknown, r.Resolve(Event{Text: "free text"}, sess).Kind)
}

func TestResolveDigits(t *testing.T) {
	r := userRouter()
	want := map[string]Kind{
		"1": ActBrowse, "2": ActWallet, "3": ActHistory, "4": ActOffers,
		"5": ActAbout, "6": ActRefresh, "7": ActDailySurprises, "8": ActSupport,
	}
	for text, kind := range want {
		assert.Equal(t, kind, r.Resolve(Event{Text: text}, nil).Kind, text)
	}
	assert.Equal(t, ActUnknown, r.Resolve(Event{Text: "9"}, nil).Kind)
	assert.Equal(t, ActUnknown, r.Resolve(Event{Text: "0"}, nil).Kind)
}

func TestResolveCommandsAndKeywords(t *testing.T) {
	r := userRouter()
	assert.Equal(t, ActStart, r.Resolve(Event{Text: "/start"}, nil).Kind)
	assert.Equal(t, ActStart, r.Resolve(Event{Text: "/start@cardshop_bot ref42"}, nil).Kind)
	assert.Equal(t, ActUnknown, r.Resolve(Event{Text: "/unknown"}, nil).Kind)
	assert.Equal(t, ActWallet, r.Resolve(Event{Text: "Balance"}, nil).Kind)
	assert.Equal(t, ActOffers, r.Resolve(Event{Text: " deals "}, nil).Kind)
}

func TestResolveCallbackTable(t *testing.T) {
	r := userRouter()
	cases := map[string]Action{
		"browse_products":         {Kind: ActBrowse},
		"view_wallet":             {Kind: ActWallet},
		"order_history":           {Kind: ActHistory},
		"special_offers":          {Kind: ActOffers},
		"about_store":             {Kind: ActAbout},
		"refresh_data":            {Kind: ActRefresh},
		"daily_surprises":         {Kind: ActDailySurprises},
		"support":                 {Kind: ActSupport},
		"faq":                     {Kind: ActFAQ},
		"submit_complaint":        {Kind: ActComplaint},
		"spending_details":        {Kind: ActSpendingDetails},
		"back_to_main_menu":       {Kind: ActBackToMenu},
		"main_menu":               {Kind: ActBackToMenu},
		"manage_users":            {Kind: ActManageUsers},
		"view_users":              {Kind: ActViewUsers},
		"ban_user":                {Kind: ActBanUser},
		"unban_user":              {Kind: ActUnbanUser},
		"manage_orders":           {Kind: ActManageOrders},
		"view_all_pending":        {Kind: ActViewPending},
		"add_user_balance":        {Kind: ActAddBalance},
		"manage_codes":            {Kind: ActManageCodes},
		"view_codes":              {Kind: ActViewCodes},
		"low_stock_alerts":        {Kind: ActLowStock},
		"category_C1":             {Kind: ActCategory, Arg: "C1"},
		"buy_category_C1":         {Kind: ActBuyCategory, Arg: "C1"},
		"order_details_o-1":       {Kind: ActOrderDetails, Arg: "o-1"},
		"cancel_order_o-1":        {Kind: ActCancelOrder, Arg: "o-1"},
		"process_order_o-2":       {Kind: ActProcessOrder, Arg: "o-2"},
		"complete_order_o-2":      {Kind: ActCompleteOrder, Arg: "o-2"},
		"fail_order_o-2":          {Kind: ActFailOrder, Arg: "o-2"},
		"buy_category_":           {Kind: ActUnknown},
		"something_else_entirely": {Kind: ActUnknown},
	}
	for data, want := range cases {
		assert.Equal(t, want, r.Resolve(Event{CallbackData: data}, nil), data)
	}
}

func TestResolveEmptyEvent(t *testing.T) {
	a := userRouter().Resolve(Event{}, nil)
	assert.Equal(t, ActUnknown, a.Kind)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "buy_category", ActBuyCategory.String())
	assert.Equal(t, "unknown", Kind(999).String())
}
