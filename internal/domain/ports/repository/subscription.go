package repository

import (
	"context"
	"time"

	"cuenty-subscription-engine/internal/domain/model"
)

// SubscriptionRepository is the port for subscription persistence.
type SubscriptionRepository interface {
	Save(ctx context.Context, tx Tx, sub *model.Subscription) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Subscription, error)
	// ListByStatus returns non-deleted subscriptions in any of the given states.
	ListByStatus(ctx context.Context, tx Tx, statuses ...model.SubscriptionStatus) ([]*model.Subscription, error)
	ListByCustomer(ctx context.Context, tx Tx, customerID string) ([]*model.Subscription, error)

	// Lock acquires the per-subscription mutual exclusion for the duration
	// of the surrounding transaction. Lifecycle transitions must run under it.
	Lock(ctx context.Context, tx Tx, subscriptionID string) error

	// DeleteTerminatedBefore soft-deletes expired/cancelled subscriptions
	// whose terminal timestamp is older than cutoff. Returns rows affected.
	DeleteTerminatedBefore(ctx context.Context, tx Tx, cutoff time.Time) (int64, error)
}

// RenewalAttemptRepository stores renewal idempotency records. Create must
// enforce the unique (subscription_id, cycle_date) key: inserting a duplicate
// returns domain.ErrAlreadyExists so callers replay the recorded result.
type RenewalAttemptRepository interface {
	Create(ctx context.Context, tx Tx, attempt *model.RenewalAttempt) error
	Update(ctx context.Context, tx Tx, attempt *model.RenewalAttempt) error
	FindByCycle(ctx context.Context, tx Tx, subscriptionID string, cycle model.CycleDate) (*model.RenewalAttempt, error)
	DeleteOlderThan(ctx context.Context, tx Tx, cutoff time.Time) (int64, error)
}

// NotificationEventRepository stores delivery idempotency records keyed by
// (subscription_id, kind, cycle_date), same contract as RenewalAttempts.
type NotificationEventRepository interface {
	Create(ctx context.Context, tx Tx, event *model.NotificationEvent) error
	Update(ctx context.Context, tx Tx, event *model.NotificationEvent) error
	FindByKey(ctx context.Context, tx Tx, subscriptionID string, kind model.NotificationKind, cycle model.CycleDate) (*model.NotificationEvent, error)
	// ListFailed returns terminally failed events for the admin alert feed.
	ListFailed(ctx context.Context, tx Tx, limit int) ([]*model.NotificationEvent, error)
	DeleteOlderThan(ctx context.Context, tx Tx, cutoff time.Time) (int64, error)
}
