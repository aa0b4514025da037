// Package telegram adapts the Bot API to the relay loop: it feeds inbound
// messages to a handler and exposes a Send used by every outbound reply.
package telegram

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// MessageHandler receives one inbound message. Implementations must not
// block: the relay loop enqueues and returns.
type MessageHandler func(chatID, senderID int64, text string)

type Bot struct {
	api    *tgbotapi.BotAPI
	logger *slog.Logger
}

func New(token string, logger *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram: %w", err)
	}
	logger.Info("telegram bot authorized", "username", api.Self.UserName)
	return &Bot{api: api, logger: logger}, nil
}

// Send delivers one text message. The underlying client has no context
// support, so ctx only guards the call site.
func (b *Bot) Send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("send message to %d: %w", chatID, err)
	}
	return nil
}

// Run consumes the long-poll update stream until ctx is cancelled. Non-text
// updates are dropped.
func (b *Bot) Run(ctx context.Context, handler MessageHandler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		msg := update.Message
		if msg == nil || msg.Text == "" || msg.From == nil {
			continue
		}
		handler(msg.Chat.ID, msg.From.ID, msg.Text)
	}
	return nil
}
