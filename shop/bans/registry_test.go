package bans

import (
	"context"
	"testing"
	"time"

	"github.com/m3rciful/cardshop/shop/store"
	"github.com/m3rciful/cardshop/shop/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLifecycle(t *testing.T) {
	ctx := context.Background()
	users := memory.New()
	_, _, _ = users.EnsureUser(ctx, store.NewUser{ID: 10})
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	r := NewRegistry(users).WithClock(func() time.Time { return at })

	banned, err := r.IsBanned(ctx, 10)
	require.NoError(t, err)
	assert.False(t, banned)

	require.NoError(t, r.Ban(ctx, 10, "  fraud "))
	banned, err = r.IsBanned(ctx, 10)
	require.NoError(t, err)
	assert.True(t, banned)

	u, _ := users.GetUser(ctx, 10)
	require.NotNil(t, u.BanReason)
	assert.Equal(t, "fraud", *u.BanReason)
	require.NotNil(t, u.BannedAt)
	assert.True(t, at.Equal(*u.BannedAt))

	require.NoError(t, r.Unban(ctx, 10))
	u, _ = users.GetUser(ctx, 10)
	assert.False(t, u.IsBanned)
	assert.Nil(t, u.BanReason)
	assert.Nil(t, u.BannedAt)
}

func TestRegistryUnknownUser(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(memory.New())

	banned, err := r.IsBanned(ctx, 404)
	require.NoError(t, err)
	assert.False(t, banned)

	assert.ErrorIs(t, r.Ban(ctx, 404, "x"), store.ErrNotFound)
	assert.ErrorIs(t, r.Ban(ctx, 404, "  "), ErrReasonRequired)
}
