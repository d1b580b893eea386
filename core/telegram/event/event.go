// Package event carries a transport-neutral view of one inbound Telegram update
// through the middleware chain and into the bot dispatchers.
package event

import (
	"context"
	"strings"

	"github.com/m3rciful/cardshop/core/telegram/callbacks"

	tele "gopkg.in/telebot.v4"
)

const (
	// KindMessage marks a message. Text is empty for stickers, photos and
	// other media.
	KindMessage = "message"
	// KindCallback marks an inline button press.
	KindCallback = "callback"
	// KindOther marks updates the bots ignore (edits, joins, inline queries).
	KindOther = "other"
)

// Update is the subset of a Telegram update the bots act on.
type Update struct {
	ID        int
	Bot       string
	UserID    int64
	ChatID    int64
	Username  string
	FirstName string
	LastName  string

	Text       string
	CallbackID string
	// CallbackData is the raw button payload with any telebot framing removed.
	CallbackData string

	// Handler names the branch that processed the update, for logs.
	Handler string
	// Outcome is a short result tag such as ok, noop, reprompt or suppressed.
	Outcome string

	message  bool
	replies  int
	keyboard bool
}

// HandlerFunc processes one update.
type HandlerFunc func(ctx context.Context, u *Update) error

// MiddlewareFunc wraps a HandlerFunc.
type MiddlewareFunc func(HandlerFunc) HandlerFunc

// Chain applies middlewares so the first one listed runs outermost.
func Chain(h HandlerFunc, mws ...MiddlewareFunc) HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}

// FromTele extracts an Update from a decoded webhook payload.
func FromTele(bot string, upd *tele.Update) Update {
	out := Update{Bot: bot}
	if upd == nil {
		return out
	}
	out.ID = upd.ID

	switch {
	case upd.Callback != nil:
		cb := upd.Callback
		out.CallbackID = cb.ID
		out.CallbackData = callbacks.Normalize(cb.Data)
		setSender(&out, cb.Sender)
		if cb.Message != nil && cb.Message.Chat != nil {
			out.ChatID = cb.Message.Chat.ID
		}
	case upd.Message != nil:
		msg := upd.Message
		out.message = true
		out.Text = strings.TrimSpace(msg.Text)
		setSender(&out, msg.Sender)
		if msg.Chat != nil {
			out.ChatID = msg.Chat.ID
		}
	}
	if out.ChatID == 0 {
		out.ChatID = out.UserID
	}
	return out
}

func setSender(out *Update, u *tele.User) {
	if u == nil {
		return
	}
	out.UserID = u.ID
	out.Username = u.Username
	out.FirstName = u.FirstName
	out.LastName = u.LastName
}

// Kind reports whether the update is a message, a callback or something else.
func (u *Update) Kind() string {
	switch {
	case u == nil:
		return KindOther
	case u.CallbackID != "" || u.CallbackData != "":
		return KindCallback
	case u.Text != "" || u.message:
		return KindMessage
	default:
		return KindOther
	}
}

// DisplayName joins first and last name, falling back to the username.
func (u *Update) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		return u.Username
	}
	return name
}

// NoteReply records one outbound message sent in response to the update.
func (u *Update) NoteReply(keyboard bool) {
	if u == nil {
		return
	}
	u.replies++
	if keyboard {
		u.keyboard = true
	}
}

// Counters returns the number of replies sent and whether any carried a keyboard.
func (u *Update) Counters() (int, bool) {
	if u == nil {
		return 0, false
	}
	return u.replies, u.keyboard
}
