package telegram

import (
	"context"
	"errors"

	tele "gopkg.in/telebot.v4"
)

// Message is one outbound chat message.
type Message struct {
	ChatID    int64
	Text      string
	ParseMode tele.ParseMode
	Markup    *tele.ReplyMarkup
}

// Messenger delivers messages through a bot identity.
type Messenger interface {
	Send(ctx context.Context, msg Message) error
}

// BotMessenger sends through a telebot client.
type BotMessenger struct {
	Bot *tele.Bot
}

// Send delivers msg or gives up when ctx is done. telebot calls are not
// context aware, so an abandoned call finishes in the background.
func (m BotMessenger) Send(ctx context.Context, msg Message) error {
	if m.Bot == nil {
		return errors.New("telegram: nil bot")
	}
	if msg.ChatID == 0 {
		return errors.New("telegram: empty chat id")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	opts := &tele.SendOptions{ParseMode: msg.ParseMode, ReplyMarkup: msg.Markup}
	done := make(chan error, 1)
	go func() {
		_, err := m.Bot.Send(tele.ChatID(msg.ChatID), msg.Text, opts)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
