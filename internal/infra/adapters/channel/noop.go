// File: internal/infra/adapters/channel/noop.go
package channel

import (
	"context"

	"github.com/rs/zerolog"

	"cuenty-subscription-engine/internal/domain/model"
	"cuenty-subscription-engine/internal/domain/ports/adapter"
)

// Ensure NoopChannel implements adapter.NotificationChannel
var _ adapter.NotificationChannel = (*NoopChannel)(nil)

// NoopChannel logs instead of sending. Used in dev mode and whenever no real
// channel is configured.
type NoopChannel struct {
	log *zerolog.Logger
}

func NewNoopChannel(logger *zerolog.Logger) *NoopChannel {
	l := logger.With().Str("component", "NoopChannel").Logger()
	return &NoopChannel{log: &l}
}

func (c *NoopChannel) Name() string { return "noop" }

func (c *NoopChannel) Deliver(ctx context.Context, kind model.NotificationKind, payload model.NotificationPayload) error {
	c.log.Info().
		Str("kind", string(kind)).
		Str("handle", payload.RecipientHandle).
		Str("email", payload.RecipientEmail).
		Str("subject", payload.Subject).
		Msg("noop delivery")
	return nil
}
