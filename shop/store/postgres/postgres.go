// Package postgres implements the store ports on PostgreSQL through sqlx.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/cardshop/shop/model"
	"github.com/m3rciful/cardshop/shop/store"
)

const (
	userColumns  = `id, username, display_name, balance_cents, joined_at, is_banned, ban_reason, banned_at`
	orderColumns = `id, user_id, category_id, category_name, product_name, price_cents, delivery_type,
		user_input_data, code_sent, status, created_at, completed_at, cancelled_at, failed_at, admin_notes`
	categoryColumns = `id, name, product_name, description, price_cents, delivery_type,
		redemption_method, terms, active`
)

// Store is the PostgreSQL implementation of store.Store.
type Store struct {
	db *sqlx.DB
}

var _ store.Store = (*Store)(nil)

// New wraps an open connection pool.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// EnsureUser inserts the user unless the id exists. Concurrent first contacts
// from one id resolve to a single row through ON CONFLICT.
func (s *Store) EnsureUser(ctx context.Context, u store.NewUser) (model.User, bool, error) {
	var out model.User
	err := s.db.GetContext(ctx, &out,
		`INSERT INTO users (id, username, display_name, joined_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING
		 RETURNING `+userColumns,
		u.ID, u.Username, u.DisplayName, u.JoinedAt)
	if err == nil {
		return out, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.User{}, false, fmt.Errorf("insert user: %w", err)
	}
	out, err = s.GetUser(ctx, u.ID)
	if err != nil {
		return model.User{}, false, err
	}
	return out, false, nil
}

// GetUser loads one user.
func (s *Store) GetUser(ctx context.Context, id int64) (model.User, error) {
	var out model.User
	err := s.db.GetContext(ctx, &out, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, store.ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("get user: %w", err)
	}
	return out, nil
}

// ListUsers returns users newest first.
func (s *Store) ListUsers(ctx context.Context, limit int) ([]model.User, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []model.User
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+userColumns+` FROM users ORDER BY joined_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return out, nil
}

// AdjustBalance applies delta in a single conditional UPDATE so concurrent
// debits can never drive the balance negative.
func (s *Store) AdjustBalance(ctx context.Context, id int64, delta model.Money) (model.Money, error) {
	var balance model.Money
	err := s.db.GetContext(ctx, &balance,
		`UPDATE users SET balance_cents = balance_cents + $2
		 WHERE id = $1 AND balance_cents + $2 >= 0
		 RETURNING balance_cents`,
		id, delta)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("adjust balance: %w", err)
	}
	u, getErr := s.GetUser(ctx, id)
	if getErr != nil {
		return 0, getErr
	}
	return u.Balance, store.ErrInsufficientFunds
}

// SetBan flags the user and stamps banned_at.
func (s *Store) SetBan(ctx context.Context, id int64, reason string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_banned = TRUE, ban_reason = $2, banned_at = $3 WHERE id = $1`,
		id, reason, at)
	if err != nil {
		return fmt.Errorf("ban user: %w", err)
	}
	return expectOne(res)
}

// ClearBan resets every ban field.
func (s *Store) ClearBan(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_banned = FALSE, ban_reason = NULL, banned_at = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("unban user: %w", err)
	}
	return expectOne(res)
}

// ActiveCategories lists categories open for sale.
func (s *Store) ActiveCategories(ctx context.Context) ([]model.Category, error) {
	var out []model.Category
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+categoryColumns+` FROM categories WHERE active ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}

// Category loads one category regardless of its active flag.
func (s *Store) Category(ctx context.Context, id string) (model.Category, error) {
	var out model.Category
	err := s.db.GetContext(ctx, &out, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Category{}, store.ErrNotFound
	}
	if err != nil {
		return model.Category{}, fmt.Errorf("get category: %w", err)
	}
	return out, nil
}

// UpsertCategory inserts or updates a category. Used when seeding the catalog.
func (s *Store) UpsertCategory(ctx context.Context, c model.Category) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO categories (`+categoryColumns+`)
		 VALUES (:id, :name, :product_name, :description, :price_cents, :delivery_type,
			:redemption_method, :terms, :active)
		 ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, product_name = EXCLUDED.product_name,
			description = EXCLUDED.description, price_cents = EXCLUDED.price_cents,
			delivery_type = EXCLUDED.delivery_type, redemption_method = EXCLUDED.redemption_method,
			terms = EXCLUDED.terms, active = EXCLUDED.active`, c)
	if err != nil {
		return fmt.Errorf("upsert category: %w", err)
	}
	return nil
}

// AddInventory stores unused codes for a category, skipping duplicates.
func (s *Store) AddInventory(ctx context.Context, categoryID string, payloads ...string) error {
	for _, p := range payloads {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO inventory_codes (category_id, payload) VALUES ($1, $2)
			 ON CONFLICT (category_id, payload) DO NOTHING`, categoryID, p); err != nil {
			return fmt.Errorf("add inventory: %w", err)
		}
	}
	return nil
}

// ClaimItem marks the oldest unused code of the category as used. SKIP LOCKED
// lets concurrent buyers of one category claim different rows.
func (s *Store) ClaimItem(ctx context.Context, categoryID, orderID string) (string, error) {
	var payload string
	err := s.db.GetContext(ctx, &payload,
		`UPDATE inventory_codes SET order_id = $2, used_at = NOW()
		 WHERE id = (
			SELECT id FROM inventory_codes
			WHERE category_id = $1 AND order_id IS NULL
			ORDER BY id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING payload`,
		categoryID, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrOutOfStock
	}
	if err != nil {
		return "", fmt.Errorf("claim inventory: %w", err)
	}
	return payload, nil
}

const stockQuery = `SELECT c.id AS category_id, c.name,
		COUNT(i.id) AS total,
		COUNT(i.id) FILTER (WHERE i.order_id IS NULL) AS available
	FROM categories c
	LEFT JOIN inventory_codes i ON i.category_id = c.id`

// InventoryStats counts codes of every code-delivery category.
func (s *Store) InventoryStats(ctx context.Context) ([]model.StockLevel, error) {
	var out []model.StockLevel
	err := s.db.SelectContext(ctx, &out,
		stockQuery+` WHERE c.delivery_type = 'code' GROUP BY c.id, c.name ORDER BY c.name, c.id`)
	if err != nil {
		return nil, fmt.Errorf("inventory stats: %w", err)
	}
	return out, nil
}

// CategoryStock counts the codes of one category.
func (s *Store) CategoryStock(ctx context.Context, categoryID string) (model.StockLevel, error) {
	var out model.StockLevel
	err := s.db.GetContext(ctx, &out, stockQuery+` WHERE c.id = $1 GROUP BY c.id, c.name`, categoryID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.StockLevel{}, store.ErrNotFound
	}
	if err != nil {
		return model.StockLevel{}, fmt.Errorf("category stock: %w", err)
	}
	return out, nil
}

// CreateOrder inserts a new order.
func (s *Store) CreateOrder(ctx context.Context, o model.Order) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO orders (id, user_id, category_id, category_name, product_name, price_cents,
			delivery_type, user_input_data, code_sent, status, created_at)
		 VALUES (:id, :user_id, :category_id, :category_name, :product_name, :price_cents,
			:delivery_type, :user_input_data, :code_sent, :status, :created_at)`, o)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// GetOrder loads one order.
func (s *Store) GetOrder(ctx context.Context, id string) (model.Order, error) {
	var out model.Order
	err := s.db.GetContext(ctx, &out, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, store.ErrNotFound
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("get order: %w", err)
	}
	return out, nil
}

// ListUserOrders returns the user's orders newest first.
func (s *Store) ListUserOrders(ctx context.Context, userID int64, limit int) ([]model.Order, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []model.Order
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list user orders: %w", err)
	}
	return out, nil
}

// ListPending returns pending orders oldest first.
func (s *Store) ListPending(ctx context.Context) ([]model.Order, error) {
	var out []model.Order
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+orderColumns+` FROM orders WHERE status = 'pending' ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list pending orders: %w", err)
	}
	return out, nil
}

// ResolveOrder applies the resolution only while the row is still pending.
func (s *Store) ResolveOrder(ctx context.Context, id string, r model.Resolution) (model.Order, error) {
	var completedAt, failedAt, cancelledAt *time.Time
	at := r.At
	switch r.Status {
	case model.StatusCompleted:
		completedAt = &at
	case model.StatusFailed:
		failedAt = &at
	case model.StatusCancelled:
		cancelledAt = &at
	default:
		return model.Order{}, fmt.Errorf("resolve order: unsupported status %q", r.Status)
	}

	var out model.Order
	err := s.db.GetContext(ctx, &out,
		`UPDATE orders SET
			status = $2,
			completed_at = COALESCE($3, completed_at),
			failed_at = COALESCE($4, failed_at),
			cancelled_at = COALESCE($5, cancelled_at),
			code_sent = COALESCE($6, code_sent),
			admin_notes = COALESCE($7, admin_notes)
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+orderColumns,
		id, r.Status, completedAt, failedAt, cancelledAt, r.CodeSent, r.Notes)
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, fmt.Errorf("resolve order: %w", err)
	}
	current, getErr := s.GetOrder(ctx, id)
	if getErr != nil {
		return model.Order{}, getErr
	}
	return current, store.ErrConflict
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
