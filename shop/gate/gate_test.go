package gate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBans struct {
	banned map[int64]bool
	err    error
	calls  int
}

func (f *fakeBans) IsBanned(_ context.Context, id int64) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.banned[id], nil
}

type countingObserver struct {
	reasons []string
}

func (o *countingObserver) EventSuppressed(_, reason string) {
	o.reasons = append(o.reasons, reason)
}

func newGate(bans BanChecker, obs Observer) *Gate {
	return New(Config{UserSecret: "user-secret", AdminSecret: "admin-secret", AdminID: 42}, bans, obs)
}

func TestCheckWrongSecret(t *testing.T) {
	g := newGate(&fakeBans{}, nil)
	ctx := context.Background()

	_, err := g.Check(ctx, BotUser, "admin-secret", 7)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = g.Check(ctx, BotAdmin, "user-secret", 42)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = g.Check(ctx, BotKind("other"), "user-secret", 7)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = g.Check(ctx, BotUser, "", 7)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestCheckEmptyConfiguredSecretRejects(t *testing.T) {
	g := New(Config{AdminID: 42}, nil, nil)
	_, err := g.Check(context.Background(), BotUser, "", 7)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestCheckAdminBotOnlyAdmitsAdmin(t *testing.T) {
	bans := &fakeBans{}
	obs := &countingObserver{}
	g := newGate(bans, obs)

	d, err := g.Check(context.Background(), BotAdmin, "admin-secret", 7)
	require.NoError(t, err)
	assert.Equal(t, Suppress, d.Decision)

	d, err = g.Check(context.Background(), BotAdmin, "admin-secret", 42)
	require.NoError(t, err)
	assert.Equal(t, Admit, d.Decision)

	assert.Equal(t, []string{ReasonNotAdmin}, obs.reasons)
	assert.Zero(t, bans.calls)
}

func TestCheckBannedUserSuppressed(t *testing.T) {
	obs := &countingObserver{}
	g := newGate(&fakeBans{banned: map[int64]bool{7: true}}, obs)

	d, err := g.Check(context.Background(), BotUser, "user-secret", 7)
	require.NoError(t, err)
	assert.Equal(t, Suppress, d.Decision)

	d, err = g.Check(context.Background(), BotUser, "user-secret", 8)
	require.NoError(t, err)
	assert.Equal(t, Admit, d.Decision)
	assert.Equal(t, []string{ReasonBanned}, obs.reasons)
}

func TestCheckBanLookupErrorSuppresses(t *testing.T) {
	obs := &countingObserver{}
	g := newGate(&fakeBans{err: errors.New("db down")}, obs)

	d, err := g.Check(context.Background(), BotUser, "user-secret", 7)
	require.NoError(t, err)
	assert.Equal(t, Suppress, d.Decision)
	assert.Equal(t, []string{ReasonBanLookup}, obs.reasons)
}

func TestCheckMissingRequester(t *testing.T) {
	g := newGate(&fakeBans{}, nil)
	d, err := g.Check(context.Background(), BotUser, "user-secret", 0)
	require.NoError(t, err)
	assert.Equal(t, Suppress, d.Decision)
}

func TestIsAdmin(t *testing.T) {
	g := newGate(nil, nil)
	assert.True(t, g.IsAdmin(42))
	assert.False(t, g.IsAdmin(0))
	assert.False(t, g.IsAdmin(7))
	assert.True(t, BotUser.Valid())
	assert.False(t, BotKind("x").Valid())
}

func TestScreenReportsReason(t *testing.T) {
	g := newGate(&fakeBans{banned: map[int64]bool{7: true}}, nil)
	v := g.Screen(context.Background(), BotUser, 7)
	assert.True(t, v.Suppressed())
	assert.Equal(t, ReasonBanned, v.Reason)

	v = g.Screen(context.Background(), BotAdmin, 42)
	assert.False(t, v.Suppressed())
	assert.Empty(t, v.Reason)
}
