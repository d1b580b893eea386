package state

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "cardshop:session:user", ttl), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, time.Minute)

	_, ok, err := s.Get(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, 42, Session{State: "awaiting_id_input", Data: map[string]string{"category_id": "C1"}}))
	assert.True(t, mr.Exists("cardshop:session:user:42"))

	got, ok, err := s.Get(ctx, 42)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, State("awaiting_id_input"), got.State)
	assert.Equal(t, "C1", got.Value("category_id"))
	assert.False(t, got.UpdatedAt.IsZero())

	require.NoError(t, s.Clear(ctx, 42))
	_, ok, err = s.Get(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreExpiry(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, time.Minute)
	require.NoError(t, s.Set(ctx, 7, Session{State: "browsing"}))

	mr.FastForward(2 * time.Minute)
	_, ok, err := s.Get(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreDropsCorruptPayload(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, time.Minute)
	require.NoError(t, mr.Set("cardshop:session:user:9", "{not json"))

	_, ok, err := s.Get(ctx, 9)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("cardshop:session:user:9"))

	require.NoError(t, s.Set(ctx, 9, Session{State: "awaiting_email_input"}))
	got, ok, err := s.Get(ctx, 9)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, State("awaiting_email_input"), got.State)
}
