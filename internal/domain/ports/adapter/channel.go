// File: internal/domain/ports/adapter/channel.go
package adapter

import (
	"context"

	"cuenty-subscription-engine/internal/domain/model"
)

// NotificationChannel is the capability contract for outbound customer
// messaging. Implementations (messaging bot, email) are swappable without
// touching scheduler or dispatcher logic. Deliver must respect ctx deadlines;
// a timed-out attempt is a failure, never an ambiguous in-progress state.
type NotificationChannel interface {
	Name() string
	Deliver(ctx context.Context, kind model.NotificationKind, payload model.NotificationPayload) error
}
