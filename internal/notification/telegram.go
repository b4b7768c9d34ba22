package notification

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/t77yq/kioskmon/internal/model"
)

// BotAPI abstracts the Telegram bot methods used by the channel
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramChannel sends notifications to a Telegram chat
type TelegramChannel struct {
	bot    BotAPI
	chatID int64
}

// NewTelegramChannel creates a Telegram channel
func NewTelegramChannel(bot BotAPI, chatID int64) (*TelegramChannel, error) {
	if bot == nil {
		return nil, errors.New("telegram channel: bot required")
	}
	if chatID == 0 {
		return nil, errors.New("telegram channel: chat id required")
	}
	return &TelegramChannel{bot: bot, chatID: chatID}, nil
}

func (t *TelegramChannel) Name() string { return "telegram" }

// Send posts the title and body as a plain text message
func (t *TelegramChannel) Send(ctx context.Context, n model.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, n.Title+"\n\n"+n.Body)
	msg.DisableWebPagePreview = true
	_, err := t.bot.Send(msg)
	return err
}
