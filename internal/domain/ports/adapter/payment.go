// File: internal/domain/ports/adapter/payment.go
package adapter

import "context"

// PaymentCharger is the hex port for the external billing collaborator that
// actually charges a renewal. The engine only needs a yes/no with a
// provider reference; gateway mechanics live entirely behind this interface.
type PaymentCharger interface {
	Name() string

	// Charge bills the customer for one renewal cycle and returns a provider
	// reference. A declined charge returns domain.ErrChargeDeclined; other
	// errors are transport faults eligible for retry on a later cycle.
	Charge(ctx context.Context, customerID, subscriptionID string, amount int64) (ref string, err error)
}
