package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/cardshop/core/logger"
)

// RedisStore keeps sessions in Redis so they survive restarts. Expiry is
// delegated to Redis key TTLs, refreshed on every Set.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore returns a Store writing keys "<prefix>:<user id>".
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) key(userID int64) string {
	return r.prefix + ":" + strconv.FormatInt(userID, 10)
}

// Get loads and decodes the session for userID. An undecodable value is
// deleted and reported as no session.
func (r *RedisStore) Get(ctx context.Context, userID int64) (Session, bool, error) {
	key := r.key(userID)
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("session get: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		attrs := []slog.Attr{
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		}
		if delErr := r.client.Del(ctx, key).Err(); delErr != nil {
			attrs = append(attrs, slog.String("clear_err", delErr.Error()))
		}
		logger.LogEvent(ctx, logger.TG, slog.LevelWarn, "session.corrupt", attrs...)
		return Session{}, false, nil
	}
	return sess, true, nil
}

// Set encodes s and stores it with the idle TTL.
func (r *RedisStore) Set(ctx context.Context, userID int64, s Session) error {
	s.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session encode: %w", err)
	}
	if err := r.client.Set(ctx, r.key(userID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("session set: %w", err)
	}
	return nil
}

// Clear deletes the session key.
func (r *RedisStore) Clear(ctx context.Context, userID int64) error {
	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		return fmt.Errorf("session clear: %w", err)
	}
	return nil
}
