package event

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	tele "gopkg.in/telebot.v4"
)

func TestFromTeleMessage(t *testing.T) {
	upd := &tele.Update{
		ID: 10,
		Message: &tele.Message{
			Text:   "  /start ",
			Sender: &tele.User{ID: 42, Username: "alice", FirstName: "Alice", LastName: "Doe"},
			Chat:   &tele.Chat{ID: 42},
		},
	}
	u := FromTele("user", upd)

	assert.Equal(t, 10, u.ID)
	assert.Equal(t, "user", u.Bot)
	assert.Equal(t, int64(42), u.UserID)
	assert.Equal(t, int64(42), u.ChatID)
	assert.Equal(t, "/start", u.Text)
	assert.Equal(t, KindMessage, u.Kind())
	assert.Equal(t, "Alice Doe", u.DisplayName())
}

func TestFromTeleCallback(t *testing.T) {
	upd := &tele.Update{
		ID: 11,
		Callback: &tele.Callback{
			ID:      "cb-1",
			Data:    "buy_category_C1",
			Sender:  &tele.User{ID: 7, Username: "bob"},
			Message: &tele.Message{Chat: &tele.Chat{ID: 700}},
		},
	}
	u := FromTele("user", upd)

	assert.Equal(t, KindCallback, u.Kind())
	assert.Equal(t, "buy_category_C1", u.CallbackData)
	assert.Equal(t, int64(7), u.UserID)
	assert.Equal(t, int64(700), u.ChatID)
	assert.Equal(t, "bob", u.DisplayName())
}

func TestFromTeleMessageWithoutText(t *testing.T) {
	for _, msg := range []*tele.Message{
		{Sticker: &tele.Sticker{}, Sender: &tele.User{ID: 9}, Chat: &tele.Chat{ID: 9}},
		{Text: "   ", Sender: &tele.User{ID: 9}, Chat: &tele.Chat{ID: 9}},
	} {
		u := FromTele("user", &tele.Update{ID: 12, Message: msg})
		assert.Equal(t, KindMessage, u.Kind())
		assert.Empty(t, u.Text)
	}
}

func TestFromTeleWithoutSender(t *testing.T) {
	u := FromTele("admin", &tele.Update{ID: 3})
	assert.Equal(t, int64(0), u.UserID)
	assert.Equal(t, KindOther, u.Kind())
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) MiddlewareFunc {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, u *Update) error {
				order = append(order, name)
				return next(ctx, u)
			}
		}
	}
	h := Chain(func(context.Context, *Update) error {
		order = append(order, "handler")
		return nil
	}, mw("outer"), nil, mw("inner"))

	assert.NoError(t, h(context.Background(), &Update{}))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestCounters(t *testing.T) {
	u := &Update{}
	u.NoteReply(false)
	u.NoteReply(true)
	n, kb := u.Counters()
	assert.Equal(t, 2, n)
	assert.True(t, kb)
}
