package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"cuenty-subscription-engine/internal/domain"
	"cuenty-subscription-engine/internal/domain/model"
	"cuenty-subscription-engine/internal/domain/ports/repository"
)

// Ensure subscriptionRepo implements repository.SubscriptionRepository
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `
id, customer_id, plan_id, account_id, slot_index, status, auto_renew,
start_at, next_renewal_at, grace_since, cancelled_at, cancel_reason, created_at, deleted_at`

func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (
  id, customer_id, plan_id, account_id, slot_index, status, auto_renew,
  start_at, next_renewal_at, grace_since, cancelled_at, cancel_reason, created_at, deleted_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (id) DO UPDATE SET
  account_id=$4, slot_index=$5, status=$6, auto_renew=$7,
  start_at=$8, next_renewal_at=$9, grace_since=$10, cancelled_at=$11, cancel_reason=$12, deleted_at=$14;`

	var accountID *string
	var slotIndex *int
	if s.Slot != nil {
		accountID = &s.Slot.AccountID
		slotIndex = &s.Slot.SlotIndex
	}
	_, err := execSQL(ctx, r.pool, tx, q,
		s.ID, s.CustomerID, s.PlanID, accountID, slotIndex, s.Status, s.AutoRenew,
		s.StartAt, s.NextRenewalAt, s.GraceSince, s.CancelledAt, s.CancelReason, s.CreatedAt, s.DeletedAt)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidExecContext):
			return err
		case isUniqueViolation(err):
			return domain.ErrAlreadyExists
		default:
			return domain.ErrOperationFailed
		}
	}
	return nil
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id=$1 AND deleted_at IS NULL;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *subscriptionRepo) ListByStatus(ctx context.Context, tx repository.Tx, statuses ...model.SubscriptionStatus) ([]*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + `
  FROM subscriptions
 WHERE status = ANY($1) AND deleted_at IS NULL
 ORDER BY next_renewal_at ASC NULLS LAST;`
	set := make([]string, len(statuses))
	for i, s := range statuses {
		set[i] = string(s)
	}
	return r.queryMany(ctx, tx, q, set)
}

func (r *subscriptionRepo) ListByCustomer(ctx context.Context, tx repository.Tx, customerID string) ([]*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + `
  FROM subscriptions
 WHERE customer_id=$1 AND deleted_at IS NULL
 ORDER BY created_at DESC;`
	return r.queryMany(ctx, tx, q, customerID)
}

func (r *subscriptionRepo) Lock(ctx context.Context, tx repository.Tx, subscriptionID string) error {
	return advisoryLock(ctx, tx, "subscription:"+subscriptionID)
}

// DeleteTerminatedBefore soft-deletes cancelled and expired subscriptions
// whose terminal timestamp is older than the cutoff.
func (r *subscriptionRepo) DeleteTerminatedBefore(ctx context.Context, tx repository.Tx, cutoff time.Time) (int64, error) {
	const q = `
UPDATE subscriptions
   SET deleted_at = NOW()
 WHERE deleted_at IS NULL
   AND ((status='cancelled' AND cancelled_at < $1)
     OR (status='expired' AND COALESCE(next_renewal_at, created_at) < $1));`
	cmd, err := execSQL(ctx, r.pool, tx, q, cutoff)
	if err != nil {
		return 0, domain.ErrOperationFailed
	}
	return cmd.RowsAffected(), nil
}

func (r *subscriptionRepo) queryMany(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Subscription, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidExecContext):
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()
	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	s := &model.Subscription{}
	var status, cancelReason string
	var accountID *string
	var slotIndex *int
	if err := row.Scan(
		&s.ID, &s.CustomerID, &s.PlanID, &accountID, &slotIndex, &status, &s.AutoRenew,
		&s.StartAt, &s.NextRenewalAt, &s.GraceSince, &s.CancelledAt, &cancelReason, &s.CreatedAt, &s.DeletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	s.Status = model.SubscriptionStatus(status)
	s.CancelReason = cancelReason
	if accountID != nil && slotIndex != nil {
		s.Slot = &model.SlotRef{AccountID: *accountID, SlotIndex: *slotIndex}
	}
	return s, nil
}
