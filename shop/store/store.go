// Package store declares the persistence ports used by the commerce core.
// Implementations live in the memory and postgres subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/m3rciful/cardshop/shop/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrInsufficientFunds is returned when a debit would take a balance below zero.
	ErrInsufficientFunds = errors.New("store: insufficient funds")
	// ErrOutOfStock is returned when no unused inventory item remains for a category.
	ErrOutOfStock = errors.New("store: out of stock")
	// ErrConflict is returned when a conditional order transition found the order
	// no longer pending.
	ErrConflict = errors.New("store: order is not pending")
)

// NewUser carries the profile captured from the first inbound event.
type NewUser struct {
	ID          int64
	Username    string
	DisplayName string
	JoinedAt    time.Time
}

// Users persists buyers, balances and ban fields.
type Users interface {
	// EnsureUser inserts the user if unseen and reports whether it was created.
	EnsureUser(ctx context.Context, u NewUser) (model.User, bool, error)
	GetUser(ctx context.Context, id int64) (model.User, error)
	// ListUsers returns users ordered by join time, newest first.
	ListUsers(ctx context.Context, limit int) ([]model.User, error)
	// AdjustBalance adds delta atomically and refuses to go below zero.
	AdjustBalance(ctx context.Context, id int64, delta model.Money) (model.Money, error)
	SetBan(ctx context.Context, id int64, reason string, at time.Time) error
	ClearBan(ctx context.Context, id int64) error
}

// Catalog is the read-only category source.
type Catalog interface {
	ActiveCategories(ctx context.Context) ([]model.Category, error)
	Category(ctx context.Context, id string) (model.Category, error)
}

// Inventory hands out pre-provisioned codes.
type Inventory interface {
	// ClaimItem marks one unused item of the category as used by orderID and returns its payload.
	ClaimItem(ctx context.Context, categoryID, orderID string) (string, error)
}

// Stock reports inventory levels without changing them.
type Stock interface {
	// InventoryStats lists every code-delivery category, active or not, by name.
	InventoryStats(ctx context.Context) ([]model.StockLevel, error)
	// CategoryStock returns the level of one category or ErrNotFound.
	CategoryStock(ctx context.Context, categoryID string) (model.StockLevel, error)
}

// Orders persists orders.
type Orders interface {
	CreateOrder(ctx context.Context, o model.Order) error
	GetOrder(ctx context.Context, id string) (model.Order, error)
	// ListUserOrders returns the user's orders, newest first.
	ListUserOrders(ctx context.Context, userID int64, limit int) ([]model.Order, error)
	// ListPending returns every pending order, oldest first.
	ListPending(ctx context.Context) ([]model.Order, error)
	// ResolveOrder applies r only while the order is pending. When it is not,
	// it returns the current order together with ErrConflict.
	ResolveOrder(ctx context.Context, id string, r model.Resolution) (model.Order, error)
}

// Store bundles every port; both implementations satisfy it.
type Store interface {
	Users
	Catalog
	Inventory
	Stock
	Orders
}
