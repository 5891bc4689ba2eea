// File: internal/infra/adapters/channel/telegram.go
package channel

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"cuenty-subscription-engine/internal/domain"
	"cuenty-subscription-engine/internal/domain/model"
	"cuenty-subscription-engine/internal/domain/ports/adapter"
)

// Ensure TelegramChannel implements adapter.NotificationChannel
var _ adapter.NotificationChannel = (*TelegramChannel)(nil)

// TelegramChannel is the send-only messaging channel. The recipient handle is
// the numeric chat id.
type TelegramChannel struct {
	bot *tgbotapi.BotAPI
	log *zerolog.Logger
}

func NewTelegramChannel(token string, logger *zerolog.Logger) (*TelegramChannel, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	l := logger.With().Str("component", "TelegramChannel").Logger()
	return &TelegramChannel{bot: bot, log: &l}, nil
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) Deliver(ctx context.Context, kind model.NotificationKind, payload model.NotificationPayload) error {
	if payload.RecipientHandle == "" {
		return domain.ErrInvalidArgument
	}
	chatID, err := strconv.ParseInt(payload.RecipientHandle, 10, 64)
	if err != nil {
		return fmt.Errorf("parse chat id %q: %w", payload.RecipientHandle, domain.ErrInvalidArgument)
	}
	text := payload.Body
	if payload.Subject != "" {
		text = payload.Subject + "\n\n" + payload.Body
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := c.bot.Send(msg); err != nil {
		c.log.Warn().Err(err).Int64("chat_id", chatID).Str("kind", string(kind)).Msg("telegram send failed")
		return err
	}
	return nil
}
