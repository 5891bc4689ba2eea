// File: internal/infra/adapters/payment/noop_charger.go
package payment

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"cuenty-subscription-engine/internal/domain/ports/adapter"
)

// Ensure NoopCharger implements adapter.PaymentCharger
var _ adapter.PaymentCharger = (*NoopCharger)(nil)

// NoopCharger approves every charge. Dev mode only.
type NoopCharger struct {
	log *zerolog.Logger
}

func NewNoopCharger(logger *zerolog.Logger) *NoopCharger {
	l := logger.With().Str("component", "NoopCharger").Logger()
	return &NoopCharger{log: &l}
}

func (c *NoopCharger) Name() string { return "noop" }

func (c *NoopCharger) Charge(ctx context.Context, customerID, subscriptionID string, amount int64) (string, error) {
	ref := "noop-" + ulid.Make().String()
	c.log.Info().Str("subscription_id", subscriptionID).Int64("amount", amount).Str("ref", ref).Msg("noop charge approved")
	return ref, nil
}
