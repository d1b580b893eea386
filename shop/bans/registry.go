// Package bans exposes the ban flags of users to the identity gate and the admin bot.
package bans

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/cardshop/core/logger"
	"github.com/m3rciful/cardshop/shop/store"
)

// ErrReasonRequired is returned when a ban is attempted without a reason.
var ErrReasonRequired = errors.New("bans: reason is required")

// Registry reads and writes ban fields through the user store.
type Registry struct {
	users store.Users
	now   func() time.Time
}

// NewRegistry builds a registry on top of users.
func NewRegistry(users store.Users) *Registry {
	return &Registry{users: users, now: time.Now}
}

// WithClock replaces the time source used for banned_at.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	if now != nil {
		r.now = now
	}
	return r
}

// IsBanned reports the ban flag. Unknown users are not banned.
func (r *Registry) IsBanned(ctx context.Context, userID int64) (bool, error) {
	u, err := r.users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ban lookup: %w", err)
	}
	return u.IsBanned, nil
}

// Ban flags the user with reason and stamps banned_at.
func (r *Registry) Ban(ctx context.Context, userID int64, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrReasonRequired
	}
	if err := r.users.SetBan(ctx, userID, reason, r.now().UTC()); err != nil {
		return fmt.Errorf("ban user %d: %w", userID, err)
	}
	logger.LogEvent(ctx, logger.SVCBans, slog.LevelInfo, "user.banned",
		slog.String("status", "ok"),
		slog.Int64("user_id", userID),
		slog.String("cause", logger.SanitizeLimit(reason, 128)),
	)
	return nil
}

// Unban clears the flag, the reason and the timestamp.
func (r *Registry) Unban(ctx context.Context, userID int64) error {
	if err := r.users.ClearBan(ctx, userID); err != nil {
		return fmt.Errorf("unban user %d: %w", userID, err)
	}
	logger.LogEvent(ctx, logger.SVCBans, slog.LevelInfo, "user.unbanned",
		slog.String("status", "ok"),
		slog.Int64("user_id", userID),
	)
	return nil
}
