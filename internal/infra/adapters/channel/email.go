// File: internal/infra/adapters/channel/email.go
package channel

import (
	"context"
	"fmt"

	"github.com/mrz1836/postmark"
	"github.com/rs/zerolog"

	"cuenty-subscription-engine/internal/config"
	"cuenty-subscription-engine/internal/domain"
	"cuenty-subscription-engine/internal/domain/model"
	"cuenty-subscription-engine/internal/domain/ports/adapter"
)

// Ensure EmailChannel implements adapter.NotificationChannel
var _ adapter.NotificationChannel = (*EmailChannel)(nil)

// EmailChannel sends through Postmark's transactional API. It is the
// fallback channel for customers without a messaging handle.
type EmailChannel struct {
	client  *postmark.Client
	from    string
	replyTo string
	log     *zerolog.Logger
}

func NewEmailChannel(cfg config.EmailConfig, logger *zerolog.Logger) (*EmailChannel, error) {
	if cfg.ServerToken == "" || cfg.AccountToken == "" || cfg.From == "" {
		return nil, domain.ErrInvalidArgument
	}
	l := logger.With().Str("component", "EmailChannel").Logger()
	return &EmailChannel{
		client:  postmark.NewClient(cfg.ServerToken, cfg.AccountToken),
		from:    cfg.From,
		replyTo: cfg.Support,
		log:     &l,
	}, nil
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Deliver(ctx context.Context, kind model.NotificationKind, payload model.NotificationPayload) error {
	if payload.RecipientEmail == "" {
		return domain.ErrInvalidArgument
	}
	resp, err := c.client.SendEmail(ctx, postmark.Email{
		From:     c.from,
		ReplyTo:  c.replyTo,
		To:       payload.RecipientEmail,
		Subject:  payload.Subject,
		Tag:      string(kind),
		TextBody: payload.Body,
	})
	if err != nil {
		return err
	}
	if resp.ErrorCode > 0 {
		c.log.Warn().Int64("error_code", resp.ErrorCode).Str("message", resp.Message).Msg("postmark rejected email")
		return fmt.Errorf("postmark error %d: %s", resp.ErrorCode, resp.Message)
	}
	return nil
}
