// Package memory is an in-process store used by tests and by storage.backend=memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m3rciful/cardshop/shop/model"
	"github.com/m3rciful/cardshop/shop/store"
)

type item struct {
	payload string
	orderID string
}

// Store keeps every entity in maps guarded by one mutex.
type Store struct {
	mu         sync.Mutex
	users      map[int64]model.User
	categories map[string]model.Category
	catOrder   []string
	inventory  map[string][]*item
	orders     map[string]model.Order
	seq        map[string]int
	nextSeq    int
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		users:      make(map[int64]model.User),
		categories: make(map[string]model.Category),
		inventory:  make(map[string][]*item),
		orders:     make(map[string]model.Order),
		seq:        make(map[string]int),
	}
}

// AddCategory inserts or replaces a category.
func (s *Store) AddCategory(c model.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[c.ID]; !ok {
		s.catOrder = append(s.catOrder, c.ID)
	}
	s.categories[c.ID] = c
}

// AddInventory appends unused codes for a category.
func (s *Store) AddInventory(categoryID string, payloads ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range payloads {
		s.inventory[categoryID] = append(s.inventory[categoryID], &item{payload: p})
	}
}

// EnsureUser inserts u unless the id is known.
func (s *Store) EnsureUser(_ context.Context, u store.NewUser) (model.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.users[u.ID]; ok {
		return copyUser(existing), false, nil
	}
	created := model.User{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		JoinedAt:    u.JoinedAt,
	}
	s.users[u.ID] = created
	return copyUser(created), true, nil
}

// GetUser returns the user or store.ErrNotFound.
func (s *Store) GetUser(_ context.Context, id int64) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, store.ErrNotFound
	}
	return copyUser(u), nil
}

// ListUsers returns users newest first.
func (s *Store) ListUsers(_ context.Context, limit int) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, copyUser(u))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].JoinedAt.After(out[j].JoinedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AdjustBalance applies delta unless the result would be negative.
func (s *Store) AdjustBalance(_ context.Context, id int64, delta model.Money) (model.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	if u.Balance+delta < 0 {
		return u.Balance, store.ErrInsufficientFunds
	}
	u.Balance += delta
	s.users[id] = u
	return u.Balance, nil
}

// SetBan flags the user.
func (s *Store) SetBan(_ context.Context, id int64, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.IsBanned = true
	u.BanReason = &reason
	u.BannedAt = &at
	s.users[id] = u
	return nil
}

// ClearBan resets all ban fields.
func (s *Store) ClearBan(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.IsBanned = false
	u.BanReason = nil
	u.BannedAt = nil
	s.users[id] = u
	return nil
}

// ActiveCategories returns active categories in insertion order.
func (s *Store) ActiveCategories(_ context.Context) ([]model.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Category
	for _, id := range s.catOrder {
		if c := s.categories[id]; c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

// Category returns one category, active or not.
func (s *Store) Category(_ context.Context, id string) (model.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok {
		return model.Category{}, store.ErrNotFound
	}
	return c, nil
}

// ClaimItem hands out the first unused code of the category.
func (s *Store) ClaimItem(ctx context.Context, categoryID, orderID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.inventory[categoryID] {
		if it.orderID == "" {
			it.orderID = orderID
			return it.payload, nil
		}
	}
	return "", store.ErrOutOfStock
}

// InventoryStats counts codes of every code-delivery category, sorted by name.
func (s *Store) InventoryStats(_ context.Context) ([]model.StockLevel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.StockLevel
	for _, id := range s.catOrder {
		if c := s.categories[id]; c.DeliveryType == model.DeliveryCode {
			out = append(out, s.level(c))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CategoryName != out[j].CategoryName {
			return out[i].CategoryName < out[j].CategoryName
		}
		return out[i].CategoryID < out[j].CategoryID
	})
	return out, nil
}

// CategoryStock counts the codes of one category.
func (s *Store) CategoryStock(_ context.Context, categoryID string) (model.StockLevel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[categoryID]
	if !ok {
		return model.StockLevel{}, store.ErrNotFound
	}
	return s.level(c), nil
}

func (s *Store) level(c model.Category) model.StockLevel {
	l := model.StockLevel{CategoryID: c.ID, CategoryName: c.Name}
	for _, it := range s.inventory[c.ID] {
		l.Total++
		if it.orderID == "" {
			l.Available++
		}
	}
	return l
}

// CreateOrder stores a new order.
func (s *Store) CreateOrder(_ context.Context, o model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = copyOrder(o)
	s.nextSeq++
	s.seq[o.ID] = s.nextSeq
	return nil
}

// GetOrder returns the order or store.ErrNotFound.
func (s *Store) GetOrder(_ context.Context, id string) (model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return model.Order{}, store.ErrNotFound
	}
	return copyOrder(o), nil
}

// ListUserOrders returns the user's orders newest first.
func (s *Store) ListUserOrders(_ context.Context, userID int64, limit int) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.before(out[j], out[i]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListPending returns pending orders oldest first.
func (s *Store) ListPending(_ context.Context) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Order
	for _, o := range s.orders {
		if o.Status == model.StatusPending {
			out = append(out, copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.before(out[i], out[j]) })
	return out, nil
}

// before orders by creation time, then by insertion for equal timestamps.
func (s *Store) before(a, b model.Order) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return s.seq[a.ID] < s.seq[b.ID]
}

// ResolveOrder moves a pending order to a terminal status.
func (s *Store) ResolveOrder(_ context.Context, id string, r model.Resolution) (model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return model.Order{}, store.ErrNotFound
	}
	if o.Status != model.StatusPending {
		return copyOrder(o), store.ErrConflict
	}
	at := r.At
	o.Status = r.Status
	switch r.Status {
	case model.StatusCompleted:
		o.CompletedAt = &at
	case model.StatusFailed:
		o.FailedAt = &at
	case model.StatusCancelled:
		o.CancelledAt = &at
	}
	if r.CodeSent != nil {
		v := *r.CodeSent
		o.CodeSent = &v
	}
	if r.Notes != nil {
		v := *r.Notes
		o.AdminNotes = &v
	}
	s.orders[id] = o
	return copyOrder(o), nil
}

func copyUser(u model.User) model.User {
	if u.BanReason != nil {
		v := *u.BanReason
		u.BanReason = &v
	}
	if u.BannedAt != nil {
		v := *u.BannedAt
		u.BannedAt = &v
	}
	return u
}

func copyOrder(o model.Order) model.Order {
	o.UserInput = cloneString(o.UserInput)
	o.CodeSent = cloneString(o.CodeSent)
	o.AdminNotes = cloneString(o.AdminNotes)
	o.CompletedAt = cloneTime(o.CompletedAt)
	o.CancelledAt = cloneTime(o.CancelledAt)
	o.FailedAt = cloneTime(o.FailedAt)
	return o
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
