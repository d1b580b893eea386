package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/cardshop/shop/model"
	"github.com/m3rciful/cardshop/shop/store"
)

var (
	userCols  = []string{"id", "username", "display_name", "balance_cents", "joined_at", "is_banned", "ban_reason", "banned_at"}
	orderCols = []string{"id", "user_id", "category_id", "category_name", "product_name", "price_cents", "delivery_type",
		"user_input_data", "code_sent", "status", "created_at", "completed_at", "cancelled_at", "failed_at", "admin_notes"}
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

func TestEnsureUserCreates(t *testing.T) {
	s, mock := newMock(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO users .* ON CONFLICT \(id\) DO NOTHING`).
		WithArgs(int64(1), "alice", "Alice", now).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(1, "alice", "Alice", 0, now, false, nil, nil))

	u, created, err := s.EnsureUser(context.Background(), store.NewUser{ID: 1, Username: "alice", DisplayName: "Alice", JoinedAt: now})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(1), u.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureUserExisting(t *testing.T) {
	s, mock := newMock(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO users`).WillReturnRows(sqlmock.NewRows(userCols))
	mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(1, "alice", "Alice", 700, now, false, nil, nil))

	u, created, err := s.EnsureUser(context.Background(), store.NewUser{ID: 1, Username: "alice", JoinedAt: now})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, model.Money(700), u.Balance)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustBalanceInsufficient(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(`UPDATE users SET balance_cents = balance_cents \+ \$2`).
		WithArgs(int64(5), int64(-500)).
		WillReturnRows(sqlmock.NewRows([]string{"balance_cents"}))
	mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(5, "", "", 100, now, false, nil, nil))

	bal, err := s.AdjustBalance(context.Background(), 5, -500)
	assert.ErrorIs(t, err, store.ErrInsufficientFunds)
	assert.Equal(t, model.Money(100), bal)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustBalanceCredit(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`UPDATE users SET balance_cents`).
		WithArgs(int64(5), int64(250)).
		WillReturnRows(sqlmock.NewRows([]string{"balance_cents"}).AddRow(350))

	bal, err := s.AdjustBalance(context.Background(), 5, 250)
	require.NoError(t, err)
	assert.Equal(t, model.Money(350), bal)
}

func TestSetBanUnknownUser(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`UPDATE users SET is_banned = TRUE`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.SetBan(context.Background(), 9, "spam", time.Now())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestClaimItemOutOfStock(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`UPDATE inventory_codes .* FOR UPDATE SKIP LOCKED`).
		WithArgs("C1", "o1").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}))

	_, err := s.ClaimItem(context.Background(), "C1", "o1")
	assert.ErrorIs(t, err, store.ErrOutOfStock)
}

func TestClaimItem(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`UPDATE inventory_codes`).
		WithArgs("C1", "o1").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow("CODE-1"))

	code, err := s.ClaimItem(context.Background(), "C1", "o1")
	require.NoError(t, err)
	assert.Equal(t, "CODE-1", code)
}

func TestInventoryStats(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`COUNT\(i\.id\) FILTER \(WHERE i\.order_id IS NULL\) AS available .* WHERE c\.delivery_type = 'code' GROUP BY`).
		WillReturnRows(sqlmock.NewRows([]string{"category_id", "name", "total", "available"}).
			AddRow("K1", "Alpha Codes", 0, 0).
			AddRow("K2", "Zeta Codes", 12, 4))

	levels, err := s.InventoryStats(context.Background())
	require.NoError(t, err)
	require.Len(t, levels, 2)
	assert.Equal(t, model.StockLevel{CategoryID: "K2", CategoryName: "Zeta Codes", Total: 12, Available: 4}, levels[1])
	assert.Equal(t, 8, levels[1].Used())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryStockUnknown(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`FROM categories c .* WHERE c\.id = \$1`).WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"category_id", "name", "total", "available"}))

	_, err := s.CategoryStock(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveOrderConflictReturnsCurrent(t *testing.T) {
	s, mock := newMock(t)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	completed := created.Add(time.Hour)

	mock.ExpectQuery(`UPDATE orders SET .* WHERE id = \$1 AND status = 'pending'`).
		WillReturnRows(sqlmock.NewRows(orderCols))
	mock.ExpectQuery(`SELECT .* FROM orders WHERE id = \$1`).WithArgs("o1").
		WillReturnRows(sqlmock.NewRows(orderCols).AddRow(
			"o1", 1, "C1", "Gift", "Card", 500, "id", "USER1", nil, "completed", created, completed, nil, nil, nil))

	o, err := s.ResolveOrder(context.Background(), "o1", model.Resolution{Status: model.StatusCompleted, At: time.Now()})
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.Equal(t, model.StatusCompleted, o.Status)
	require.NotNil(t, o.CompletedAt)
	assert.True(t, completed.Equal(*o.CompletedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveOrderRejectsPending(t *testing.T) {
	s, _ := newMock(t)
	_, err := s.ResolveOrder(context.Background(), "o1", model.Resolution{Status: model.StatusPending})
	assert.Error(t, err)
}

func TestListPendingOldestFirst(t *testing.T) {
	s, mock := newMock(t)
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`WHERE status = 'pending' ORDER BY created_at ASC`).
		WillReturnRows(sqlmock.NewRows(orderCols).
			AddRow("a", 1, "C1", "Gift", "Card", 500, "id", "U1", nil, "pending", t1, nil, nil, nil, nil).
			AddRow("b", 2, "C1", "Gift", "Card", 500, "email", "x@y.z", nil, "pending", t1.Add(time.Minute), nil, nil, nil, nil))

	list, err := s.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, model.DeliveryEmail, list[1].DeliveryType)
}

func TestGetOrderNotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`SELECT .* FROM orders WHERE id = \$1`).WillReturnRows(sqlmock.NewRows(orderCols))
	_, err := s.GetOrder(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
