// Package orders is the order lifecycle engine: it turns category selections
// and collected input into persisted orders and drives them to a terminal state.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/cardshop/core/logger"
	"github.com/m3rciful/cardshop/core/telegram/state"
	"github.com/m3rciful/cardshop/shop/model"
	"github.com/m3rciful/cardshop/shop/store"
)

var (
	// ErrCategoryUnavailable is returned for unknown or inactive categories.
	ErrCategoryUnavailable = errors.New("orders: category unavailable")
	// ErrInsufficientFunds is returned when the balance does not cover the price.
	ErrInsufficientFunds = errors.New("orders: insufficient funds")
	// ErrNoPendingInput is returned when input arrives without an awaiting-input session.
	ErrNoPendingInput = errors.New("orders: no purchase awaiting input")
	// ErrNotPending is returned when cancelling an order that already reached a terminal state.
	ErrNotPending = errors.New("orders: order is not pending")
	// ErrOutOfStock is returned when a code order found no inventory left.
	ErrOutOfStock = errors.New("orders: out of stock")
	// ErrFulfillment is returned when the inventory provider failed or timed out.
	ErrFulfillment = errors.New("orders: fulfillment failed")
	// ErrNotFound is returned for unknown orders, and for orders of another user.
	ErrNotFound = errors.New("orders: order not found")
)

// Event names carried by Summary.
const (
	EventPending    = "pending"
	EventOutOfStock = "out_of_stock"
	EventLowStock   = "low_stock"
)

// Summary is what the admin channel learns about an order.
type Summary struct {
	Event    string
	Order    model.Order
	Username string
	// Cause explains fulfillment failures.
	Cause string
	// Stock is set for EventLowStock.
	Stock *model.StockLevel
}

// Notifier relays order summaries to the admin channel. Implementations must
// not block for long; failures are logged by the engine and never undo an order.
type Notifier interface {
	NotifyAdmin(ctx context.Context, s Summary) error
}

// Observer receives order state transitions, typically for metrics.
type Observer interface {
	OrderTransition(from, to model.OrderStatus, delivery model.DeliveryType)
}

// Deps wires the engine to its collaborators.
type Deps struct {
	Users     store.Users
	Catalog   store.Catalog
	Inventory store.Inventory
	Stock     store.Stock
	Orders    store.Orders
	Sessions  state.Store
	Notifier  Notifier
	Observer  Observer

	// ClaimTimeout bounds one inventory claim. Defaults to 3s.
	ClaimTimeout time.Duration
	Now          func() time.Time
	NewID        func() string
}

// Engine implements the order lifecycle.
type Engine struct {
	d Deps
}

// New builds an engine, filling defaults for the clock, ids and timeouts.
func New(d Deps) *Engine {
	if d.ClaimTimeout <= 0 {
		d.ClaimTimeout = 3 * time.Second
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = func() string { return uuid.NewString() }
	}
	return &Engine{d: d}
}

// Outcome of starting a purchase.
type Outcome int

const (
	// AwaitingInput means a session now waits for the buyer's delivery details.
	AwaitingInput Outcome = iota + 1
	// Fulfilled means a code order completed and the code is on the order.
	Fulfilled
	// FulfillmentFailed means a code order was created and then failed.
	FulfillmentFailed
)

// Purchase reports what Begin did.
type Purchase struct {
	Outcome  Outcome
	Category model.Category
	// Order is set for code deliveries.
	Order *model.Order
	// Awaiting is the session state set for input deliveries.
	Awaiting state.State
}

// Result reports an admin or user transition on an existing order.
type Result struct {
	Order model.Order
	// AlreadyResolved is true when the order was terminal before the call and nothing changed.
	AlreadyResolved bool
}

// Begin starts a purchase of categoryID for user. Code deliveries are created
// and fulfilled immediately; other deliveries store a draft in the session and
// wait for SubmitInput.
func (e *Engine) Begin(ctx context.Context, user model.User, categoryID string) (Purchase, error) {
	cat, err := e.activeCategory(ctx, categoryID)
	if err != nil {
		return Purchase{}, err
	}
	if user.Balance < cat.Price {
		return Purchase{Category: cat}, ErrInsufficientFunds
	}

	if cat.DeliveryType == model.DeliveryCode {
		return e.buyCode(ctx, user, cat)
	}

	awaiting := cat.DeliveryType.AwaitingState()
	sess := state.Session{
		State: awaiting,
		Data: map[string]string{
			model.KeyCategoryID:   cat.ID,
			model.KeyDeliveryType: string(cat.DeliveryType),
			model.KeyDraftOrderID: e.d.NewID(),
		},
	}
	if err := e.d.Sessions.Set(ctx, user.ID, sess); err != nil {
		return Purchase{}, fmt.Errorf("store purchase session: %w", err)
	}
	logger.LogEvent(ctx, logger.SVCOrders, slog.LevelDebug, "order.awaiting_input",
		slog.String("status", "ok"),
		slog.String("category_id", cat.ID),
		slog.String("delivery_type", string(cat.DeliveryType)),
		slog.String("state", string(awaiting)),
	)
	return Purchase{Outcome: AwaitingInput, Category: cat, Awaiting: awaiting}, nil
}

func (e *Engine) buyCode(ctx context.Context, user model.User, cat model.Category) (Purchase, error) {
	order, err := e.place(ctx, user, cat, nil)
	if err != nil {
		return Purchase{Category: cat}, err
	}

	claimCtx, cancel := context.WithTimeout(ctx, e.d.ClaimTimeout)
	code, claimErr := e.d.Inventory.ClaimItem(claimCtx, cat.ID, order.ID)
	cancel()

	if claimErr == nil {
		res, err := e.resolve(ctx, order.ID, model.Resolution{
			Status:   model.StatusCompleted,
			At:       e.d.Now().UTC(),
			CodeSent: &code,
		})
		if err != nil {
			return Purchase{Category: cat, Order: &order}, err
		}
		e.checkStock(ctx, res.Order)
		return Purchase{Outcome: Fulfilled, Category: cat, Order: &res.Order}, nil
	}

	cause := ErrOutOfStock
	if !errors.Is(claimErr, store.ErrOutOfStock) {
		cause = ErrFulfillment
	}
	reason := claimErr.Error()
	res, err := e.resolve(ctx, order.ID, model.Resolution{
		Status: model.StatusFailed,
		At:     e.d.Now().UTC(),
		Notes:  &reason,
	})
	if err != nil {
		return Purchase{Category: cat, Order: &order}, errors.Join(fmt.Errorf("%w: %v", cause, claimErr), err)
	}
	e.refund(ctx, res.Order)
	e.notify(ctx, Summary{Event: EventOutOfStock, Order: res.Order, Username: user.Username, Cause: reason})
	return Purchase{Outcome: FulfillmentFailed, Category: cat, Order: &res.Order}, fmt.Errorf("%w: %v", cause, claimErr)
}

// SubmitInput consumes the buyer's delivery details for the purchase held in
// the session. Invalid input returns an error matching ErrInvalidInput and
// leaves the session untouched so the buyer can retry.
func (e *Engine) SubmitInput(ctx context.Context, user model.User, text string) (model.Order, error) {
	sess, ok, err := e.d.Sessions.Get(ctx, user.ID)
	if err != nil {
		return model.Order{}, fmt.Errorf("load purchase session: %w", err)
	}
	if !ok {
		return model.Order{}, ErrNoPendingInput
	}
	delivery, awaiting := model.DeliveryForState(sess.State)
	if !awaiting || sess.Value(model.KeyDeliveryType) != string(delivery) || sess.Value(model.KeyCategoryID) == "" {
		return model.Order{}, ErrNoPendingInput
	}

	value, err := ValidateInput(delivery, text)
	if err != nil {
		logger.LogEvent(ctx, logger.SVCOrders, slog.LevelDebug, "order.input_rejected",
			slog.String("status", "ok"),
			slog.String("outcome", "reprompt"),
			slog.String("delivery_type", string(delivery)),
		)
		return model.Order{}, err
	}

	cat, err := e.activeCategory(ctx, sess.Value(model.KeyCategoryID))
	if err != nil {
		e.clearSession(ctx, user.ID)
		return model.Order{}, err
	}
	if cat.DeliveryType != delivery {
		// The catalog changed under the draft; the buyer has to start over.
		e.clearSession(ctx, user.ID)
		return model.Order{}, ErrCategoryUnavailable
	}

	orderID := sess.Value(model.KeyDraftOrderID)
	if orderID == "" {
		orderID = e.d.NewID()
	}
	order, err := e.placeWithID(ctx, orderID, user, cat, &value)
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			e.clearSession(ctx, user.ID)
		}
		return model.Order{}, err
	}

	e.clearSession(ctx, user.ID)
	e.notify(ctx, Summary{Event: EventPending, Order: order, Username: user.Username})
	return order, nil
}

// Complete resolves a pending order as completed. notes is the delivery text
// shown to the buyer, if any.
func (e *Engine) Complete(ctx context.Context, orderID string, notes *string) (Result, error) {
	return e.resolve(ctx, orderID, model.Resolution{Status: model.StatusCompleted, At: e.d.Now().UTC(), Notes: notes})
}

// Fail resolves a pending order as failed and refunds the buyer.
func (e *Engine) Fail(ctx context.Context, orderID string, reason *string) (Result, error) {
	res, err := e.resolve(ctx, orderID, model.Resolution{Status: model.StatusFailed, At: e.d.Now().UTC(), Notes: reason})
	if err == nil && !res.AlreadyResolved {
		e.refund(ctx, res.Order)
	}
	return res, err
}

// CancelByUser cancels one of the user's own pending orders and refunds it.
func (e *Engine) CancelByUser(ctx context.Context, userID int64, orderID string) (model.Order, error) {
	o, err := e.d.Orders.GetOrder(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && o.UserID != userID) {
		return model.Order{}, ErrNotFound
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("load order: %w", err)
	}
	return e.cancel(ctx, o.ID)
}

// CancelByAdmin cancels any pending order and refunds it.
func (e *Engine) CancelByAdmin(ctx context.Context, orderID string) (model.Order, error) {
	return e.cancel(ctx, orderID)
}

func (e *Engine) cancel(ctx context.Context, orderID string) (model.Order, error) {
	res, err := e.resolve(ctx, orderID, model.Resolution{Status: model.StatusCancelled, At: e.d.Now().UTC()})
	if err != nil {
		return model.Order{}, err
	}
	if res.AlreadyResolved {
		return res.Order, ErrNotPending
	}
	e.refund(ctx, res.Order)
	return res.Order, nil
}

// Order loads one order.
func (e *Engine) Order(ctx context.Context, orderID string) (model.Order, error) {
	o, err := e.d.Orders.GetOrder(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Order{}, ErrNotFound
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("load order: %w", err)
	}
	return o, nil
}

// UserOrders lists a user's latest orders, newest first.
func (e *Engine) UserOrders(ctx context.Context, userID int64, limit int) ([]model.Order, error) {
	list, err := e.d.Orders.ListUserOrders(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list user orders: %w", err)
	}
	return list, nil
}

// PendingOrders lists every pending order, oldest first.
func (e *Engine) PendingOrders(ctx context.Context) ([]model.Order, error) {
	list, err := e.d.Orders.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending orders: %w", err)
	}
	return list, nil
}

// ActiveCategories lists categories open for sale.
func (e *Engine) ActiveCategories(ctx context.Context) ([]model.Category, error) {
	cats, err := e.d.Catalog.ActiveCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

// Category loads an active category.
func (e *Engine) Category(ctx context.Context, id string) (model.Category, error) {
	return e.activeCategory(ctx, id)
}

func (e *Engine) activeCategory(ctx context.Context, id string) (model.Category, error) {
	cat, err := e.d.Catalog.Category(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.Category{}, ErrCategoryUnavailable
	}
	if err != nil {
		return model.Category{}, fmt.Errorf("load category: %w", err)
	}
	if !cat.Active || !cat.DeliveryType.Valid() {
		return model.Category{}, ErrCategoryUnavailable
	}
	return cat, nil
}

func (e *Engine) place(ctx context.Context, user model.User, cat model.Category, input *string) (model.Order, error) {
	return e.placeWithID(ctx, e.d.NewID(), user, cat, input)
}

// placeWithID debits the price and persists a pending order with snapshots of
// the category. A failed insert refunds the debit.
func (e *Engine) placeWithID(ctx context.Context, id string, user model.User, cat model.Category, input *string) (model.Order, error) {
	if _, err := e.d.Users.AdjustBalance(ctx, user.ID, -cat.Price); err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) {
			return model.Order{}, ErrInsufficientFunds
		}
		return model.Order{}, fmt.Errorf("debit balance: %w", err)
	}

	order := model.Order{
		ID:           id,
		UserID:       user.ID,
		CategoryID:   cat.ID,
		CategoryName: cat.Name,
		ProductName:  cat.ProductName,
		Price:        cat.Price,
		DeliveryType: cat.DeliveryType,
		UserInput:    input,
		Status:       model.StatusPending,
		CreatedAt:    e.d.Now().UTC(),
	}
	if err := e.d.Orders.CreateOrder(ctx, order); err != nil {
		if _, refundErr := e.d.Users.AdjustBalance(ctx, user.ID, cat.Price); refundErr != nil {
			err = errors.Join(err, fmt.Errorf("refund: %w", refundErr))
		}
		return model.Order{}, fmt.Errorf("create order: %w", err)
	}

	e.observe("", model.StatusPending, cat.DeliveryType)
	logger.LogEvent(ctx, logger.SVCOrders, slog.LevelInfo, "order.created",
		slog.String("status", "ok"),
		slog.String("order_id", order.ID),
		slog.String("category_id", cat.ID),
		slog.String("delivery_type", string(cat.DeliveryType)),
		slog.String("to_status", string(model.StatusPending)),
	)
	return order, nil
}

// resolve applies a terminal transition. A terminal order yields
// AlreadyResolved with the stored order, unchanged.
func (e *Engine) resolve(ctx context.Context, orderID string, r model.Resolution) (Result, error) {
	o, err := e.d.Orders.ResolveOrder(ctx, orderID, r)
	switch {
	case errors.Is(err, store.ErrConflict):
		logger.LogEvent(ctx, logger.SVCOrders, slog.LevelInfo, "order.already_resolved",
			slog.String("status", "ok"),
			slog.String("outcome", "noop"),
			slog.String("order_id", orderID),
			slog.String("from_status", string(o.Status)),
			slog.String("to_status", string(r.Status)),
		)
		return Result{Order: o, AlreadyResolved: true}, nil
	case errors.Is(err, store.ErrNotFound):
		return Result{}, ErrNotFound
	case err != nil:
		return Result{}, fmt.Errorf("resolve order: %w", err)
	}

	e.observe(model.StatusPending, r.Status, o.DeliveryType)
	logger.LogEvent(ctx, logger.SVCOrders, slog.LevelInfo, "order.resolved",
		slog.String("status", "ok"),
		slog.String("order_id", orderID),
		slog.String("from_status", string(model.StatusPending)),
		slog.String("to_status", string(r.Status)),
	)
	return Result{Order: o}, nil
}

func (e *Engine) refund(ctx context.Context, o model.Order) {
	if o.Price <= 0 {
		return
	}
	if _, err := e.d.Users.AdjustBalance(ctx, o.UserID, o.Price); err != nil {
		logger.LogEvent(ctx, logger.SVCOrders, slog.LevelError, "order.refund",
			slog.String("status", "fail"),
			slog.String("order_id", o.ID),
			slog.String("err", err.Error()),
		)
	}
}

func (e *Engine) notify(ctx context.Context, s Summary) {
	if e.d.Notifier == nil {
		return
	}
	if err := e.d.Notifier.NotifyAdmin(ctx, s); err != nil {
		logger.LogEvent(ctx, logger.SVCNotify, slog.LevelError, "admin.notify",
			slog.String("status", "fail"),
			slog.String("order_id", s.Order.ID),
			slog.String("err", err.Error()),
		)
	}
}

// checkStock alerts the admin when a claim leaves the category at the low-stock
// threshold or empty. Levels below the threshold are not repeated. A nil
// Deps.Stock disables the check.
func (e *Engine) checkStock(ctx context.Context, o model.Order) {
	if e.d.Stock == nil {
		return
	}
	lvl, err := e.d.Stock.CategoryStock(ctx, o.CategoryID)
	if err != nil {
		logger.LogEvent(ctx, logger.SVCOrders, slog.LevelWarn, "stock.check",
			slog.String("status", "fail"),
			slog.String("category_id", o.CategoryID),
			slog.String("err", err.Error()),
		)
		return
	}
	if lvl.Available != model.LowStockThreshold && lvl.Available != 0 {
		return
	}
	e.notify(ctx, Summary{Event: EventLowStock, Order: o, Stock: &lvl})
}

func (e *Engine) clearSession(ctx context.Context, userID int64) {
	if err := e.d.Sessions.Clear(ctx, userID); err != nil {
		logger.LogEvent(ctx, logger.SVCOrders, slog.LevelWarn, "session.clear",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
}

func (e *Engine) observe(from, to model.OrderStatus, d model.DeliveryType) {
	if e.d.Observer != nil {
		e.d.Observer.OrderTransition(from, to, d)
	}
}
