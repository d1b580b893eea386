// Package gate decides, before any routing, whether an inbound event is
// processed, silently dropped, or rejected as unauthorized.
package gate

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"

	"github.com/m3rciful/cardshop/core/logger"
)

// BotKind names the bot identity an event arrived on.
type BotKind string

const (
	BotUser  BotKind = "user"
	BotAdmin BotKind = "admin"
)

// Valid reports whether k is a known bot.
func (k BotKind) Valid() bool {
	return k == BotUser || k == BotAdmin
}

// ErrUnauthorized is returned when the presented webhook secret does not
// match the bot's configured secret, or the bot is unknown.
var ErrUnauthorized = errors.New("gate: unauthorized")

// Decision is the gate's verdict for an event with a valid secret.
type Decision int

const (
	Admit Decision = iota
	Suppress
)

func (d Decision) String() string {
	if d == Suppress {
		return "suppress"
	}
	return "admit"
}

// Suppression reasons, reported to observers and logs.
const (
	ReasonNotAdmin    = "not_admin"
	ReasonNoRequester = "no_requester"
	ReasonBanned      = "banned"
	ReasonBanLookup   = "ban_lookup_error"
)

// BanChecker reports the ban flag of a user.
type BanChecker interface {
	IsBanned(ctx context.Context, userID int64) (bool, error)
}

// Observer counts suppressed events.
type Observer interface {
	EventSuppressed(bot, reason string)
}

// Config carries the per-bot secrets and the admin identity.
type Config struct {
	UserSecret  string
	AdminSecret string
	AdminID     int64
}

// Gate holds the identity checks shared by both webhooks.
type Gate struct {
	cfg  Config
	bans BanChecker
	obs  Observer
}

// New builds a gate. obs may be nil.
func New(cfg Config, bans BanChecker, obs Observer) *Gate {
	return &Gate{cfg: cfg, bans: bans, obs: obs}
}

// VerifySecret compares presented against the configured secret of kind in
// constant time.
func (g *Gate) VerifySecret(kind BotKind, presented string) error {
	var want string
	switch kind {
	case BotUser:
		want = g.cfg.UserSecret
	case BotAdmin:
		want = g.cfg.AdminSecret
	default:
		return ErrUnauthorized
	}
	if want == "" || subtle.ConstantTimeCompare([]byte(want), []byte(presented)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// Verdict is a decision with the reason for suppressing, if any.
type Verdict struct {
	Decision Decision
	Reason   string
}

// Suppressed reports whether the event must be dropped.
func (v Verdict) Suppressed() bool { return v.Decision == Suppress }

// Check verifies the secret, then screens the requester. requester is 0 when
// the update carries no sender.
func (g *Gate) Check(ctx context.Context, kind BotKind, secret string, requester int64) (Verdict, error) {
	if err := g.VerifySecret(kind, secret); err != nil {
		return Verdict{Decision: Suppress}, err
	}
	return g.Screen(ctx, kind, requester), nil
}

// Screen applies the requester rules for an event whose secret was already
// verified: only the admin may drive the admin bot, banned users are dropped
// on the user bot, and a failed ban lookup drops the event too.
func (g *Gate) Screen(ctx context.Context, kind BotKind, requester int64) Verdict {
	if requester == 0 {
		return g.suppress(ctx, kind, requester, ReasonNoRequester, nil)
	}
	if kind == BotAdmin {
		if requester != g.cfg.AdminID {
			return g.suppress(ctx, kind, requester, ReasonNotAdmin, nil)
		}
		return Verdict{Decision: Admit}
	}
	if g.bans == nil {
		return Verdict{Decision: Admit}
	}
	banned, err := g.bans.IsBanned(ctx, requester)
	if err != nil {
		return g.suppress(ctx, kind, requester, ReasonBanLookup, err)
	}
	if banned {
		return g.suppress(ctx, kind, requester, ReasonBanned, nil)
	}
	return Verdict{Decision: Admit}
}

// IsAdmin reports whether userID is the configured admin.
func (g *Gate) IsAdmin(userID int64) bool {
	return userID != 0 && userID == g.cfg.AdminID
}

func (g *Gate) suppress(ctx context.Context, kind BotKind, requester int64, reason string, cause error) Verdict {
	if g.obs != nil {
		g.obs.EventSuppressed(string(kind), reason)
	}
	level := slog.LevelDebug
	attrs := []slog.Attr{
		slog.String("status", "suppressed"),
		slog.String("bot", string(kind)),
		slog.Int64("user_id", requester),
		slog.String("cause", reason),
	}
	if cause != nil {
		level = slog.LevelError
		attrs = append(attrs, slog.String("err", cause.Error()))
	}
	logger.LogEvent(ctx, logger.WEB, level, "gate.suppressed", attrs...)
	return Verdict{Decision: Suppress, Reason: reason}
}
