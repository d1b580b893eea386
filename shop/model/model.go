// Package model defines the commerce entities shared by the stores, the
// order engine and the bots.
package model

import (
	"time"

	"github.com/m3rciful/cardshop/core/telegram/state"
)

// DeliveryType says how a purchased category reaches the buyer.
type DeliveryType string

const (
	DeliveryCode   DeliveryType = "code"
	DeliveryID     DeliveryType = "id"
	DeliveryEmail  DeliveryType = "email"
	DeliveryPhone  DeliveryType = "phone"
	DeliveryManual DeliveryType = "manual"
)

// Valid reports whether d is a known delivery type.
func (d DeliveryType) Valid() bool {
	switch d {
	case DeliveryCode, DeliveryID, DeliveryEmail, DeliveryPhone, DeliveryManual:
		return true
	}
	return false
}

// NeedsInput reports whether the buyer must type something before the order is placed.
func (d DeliveryType) NeedsInput() bool {
	return d.Valid() && d != DeliveryCode
}

// AwaitingState is the session state that collects input for d.
func (d DeliveryType) AwaitingState() state.State {
	switch d {
	case DeliveryID:
		return StateAwaitingID
	case DeliveryEmail:
		return StateAwaitingEmail
	case DeliveryPhone:
		return StateAwaitingPhone
	case DeliveryManual:
		return StateAwaitingManual
	}
	return state.StateIdle
}

// OrderStatus is the persisted lifecycle state of an order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusCompleted OrderStatus = "completed"
	StatusFailed    OrderStatus = "failed"
	StatusCancelled OrderStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// User-bot session states.
const (
	StateBrowsing       state.State = "browsing"
	StateAwaitingID     state.State = "awaiting_id_input"
	StateAwaitingEmail  state.State = "awaiting_email_input"
	StateAwaitingPhone  state.State = "awaiting_phone_input"
	StateAwaitingManual state.State = "awaiting_manual_input"
)

// Admin-bot session states.
const (
	StateAdminBanUserID     state.State = "awaiting_ban_user_id"
	StateAdminBanReason     state.State = "awaiting_ban_reason"
	StateAdminUnbanUserID   state.State = "awaiting_unban_user_id"
	StateAdminBalanceUserID state.State = "awaiting_balance_user_id"
	StateAdminBalanceAmount state.State = "awaiting_balance_amount"
	StateAdminDelivery      state.State = "awaiting_delivery_payload"
)

// DeliveryForState maps an awaiting-input state back to its delivery type.
func DeliveryForState(s state.State) (DeliveryType, bool) {
	switch s {
	case StateAwaitingID:
		return DeliveryID, true
	case StateAwaitingEmail:
		return DeliveryEmail, true
	case StateAwaitingPhone:
		return DeliveryPhone, true
	case StateAwaitingManual:
		return DeliveryManual, true
	}
	return "", false
}

// Session data keys.
const (
	KeyCategoryID   = "category_id"
	KeyDeliveryType = "delivery_type"
	KeyDraftOrderID = "draft_order_id"
	KeyTargetUserID = "target_user_id"
	KeyOrderID      = "order_id"
)

// User is a buyer known to the user bot.
type User struct {
	ID          int64      `db:"id"`
	Username    string     `db:"username"`
	DisplayName string     `db:"display_name"`
	Balance     Money      `db:"balance_cents"`
	JoinedAt    time.Time  `db:"joined_at"`
	IsBanned    bool       `db:"is_banned"`
	BanReason   *string    `db:"ban_reason"`
	BannedAt    *time.Time `db:"banned_at"`
}

// Category is a purchasable product line. Read-only to the bots.
type Category struct {
	ID               string       `db:"id"`
	Name             string       `db:"name"`
	ProductName      string       `db:"product_name"`
	Description      string       `db:"description"`
	Price            Money        `db:"price_cents"`
	DeliveryType     DeliveryType `db:"delivery_type"`
	RedemptionMethod string       `db:"redemption_method"`
	Terms            string       `db:"terms"`
	Active           bool         `db:"active"`
}

// LowStockThreshold is the number of unused codes at or below which a code
// category counts as running low.
const LowStockThreshold = 5

// StockLevel counts the codes of one code-delivery category.
type StockLevel struct {
	CategoryID   string `db:"category_id"`
	CategoryName string `db:"name"`
	Total        int    `db:"total"`
	Available    int    `db:"available"`
}

// Used is the number of codes already handed out.
func (l StockLevel) Used() int { return l.Total - l.Available }

// Low reports whether the category is at or below LowStockThreshold.
func (l StockLevel) Low() bool { return l.Available <= LowStockThreshold }

// Order is one purchase. Category name, product name and price are snapshots
// taken at creation.
type Order struct {
	ID           string       `db:"id"`
	UserID       int64        `db:"user_id"`
	CategoryID   string       `db:"category_id"`
	CategoryName string       `db:"category_name"`
	ProductName  string       `db:"product_name"`
	Price        Money        `db:"price_cents"`
	DeliveryType DeliveryType `db:"delivery_type"`
	UserInput    *string      `db:"user_input_data"`
	CodeSent     *string      `db:"code_sent"`
	Status       OrderStatus  `db:"status"`
	CreatedAt    time.Time    `db:"created_at"`
	CompletedAt  *time.Time   `db:"completed_at"`
	CancelledAt  *time.Time   `db:"cancelled_at"`
	FailedAt     *time.Time   `db:"failed_at"`
	AdminNotes   *string      `db:"admin_notes"`
}

// Resolution is the terminal transition applied to a pending order.
type Resolution struct {
	Status OrderStatus
	At     time.Time
	// CodeSent is stored on completion of code orders.
	CodeSent *string
	// Notes is the admin's delivery text or failure reason.
	Notes *string
}
