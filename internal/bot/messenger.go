package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Update is the slice of a platform update the dispatcher cares about.
type Update struct {
	ID        int
	ChatID    int64
	MessageID int
	UserID    int64
	Username  string
	Text      string
	// Command is the bot command without the leading slash or @botname, if
	// the message is one.
	Command string
}

// Messenger is the messaging platform as seen by the dispatcher.
type Messenger interface {
	GetUpdates(ctx context.Context, offset, timeoutSeconds int) ([]Update, error)
	SendText(ctx context.Context, chatID int64, text string) error
}

// TelegramMessenger talks to the Telegram Bot API with long polling.
type TelegramMessenger struct {
	api *tgbotapi.BotAPI
}

func NewTelegramMessenger(token string) (*TelegramMessenger, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	return &TelegramMessenger{api: api}, nil
}

func (m *TelegramMessenger) Username() string { return m.api.Self.UserName }

func (m *TelegramMessenger) GetUpdates(ctx context.Context, offset, timeoutSeconds int) ([]Update, error) {
	cfg := tgbotapi.NewUpdate(offset)
	cfg.Timeout = timeoutSeconds
	cfg.AllowedUpdates = []string{"message"}

	type result struct {
		updates []tgbotapi.Update
		err     error
	}
	// the client has no context support; a canceled poll finishes on its own
	// within the long-poll timeout
	done := make(chan result, 1)
	go func() {
		updates, err := m.api.GetUpdates(cfg)
		done <- result{updates: updates, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("get updates: %w", r.err)
		}
		out := make([]Update, 0, len(r.updates))
		for _, u := range r.updates {
			out = append(out, fromTelegram(u))
		}
		return out, nil
	}
}

func (m *TelegramMessenger) SendText(_ context.Context, chatID int64, text string) error {
	if _, err := m.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func fromTelegram(u tgbotapi.Update) Update {
	out := Update{ID: u.UpdateID}
	msg := u.Message
	if msg == nil {
		return out
	}
	out.MessageID = msg.MessageID
	out.Text = msg.Text
	if msg.Chat != nil {
		out.ChatID = msg.Chat.ID
	}
	if msg.From != nil {
		out.UserID = msg.From.ID
		out.Username = msg.From.UserName
	}
	if msg.IsCommand() {
		out.Command = msg.Command()
	}
	return out
}
