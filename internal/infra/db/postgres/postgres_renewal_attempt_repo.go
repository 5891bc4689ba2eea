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

// Ensure renewalAttemptRepo implements repository.RenewalAttemptRepository
var _ repository.RenewalAttemptRepository = (*renewalAttemptRepo)(nil)

type renewalAttemptRepo struct {
	pool *pgxpool.Pool
}

func NewRenewalAttemptRepo(pool *pgxpool.Pool) *renewalAttemptRepo {
	return &renewalAttemptRepo{pool: pool}
}

// Create relies on the unique (subscription_id, cycle_date) index: the first
// writer wins the cycle and every later insert maps to ErrAlreadyExists.
func (r *renewalAttemptRepo) Create(ctx context.Context, tx repository.Tx, a *model.RenewalAttempt) error {
	const q = `
INSERT INTO renewal_attempts (id, subscription_id, cycle_date, status, retry_count, charge_ref, last_error, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);`
	_, err := execSQL(ctx, r.pool, tx, q,
		a.ID, a.SubscriptionID, string(a.CycleDate), a.Status, a.RetryCount, a.ChargeRef, a.LastError, a.CreatedAt, a.UpdatedAt)
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

func (r *renewalAttemptRepo) Update(ctx context.Context, tx repository.Tx, a *model.RenewalAttempt) error {
	const q = `
UPDATE renewal_attempts
   SET status=$2, retry_count=$3, charge_ref=$4, last_error=$5, updated_at=$6
 WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, a.ID, a.Status, a.RetryCount, a.ChargeRef, a.LastError, a.UpdatedAt)
	if err != nil {
		return domain.ErrOperationFailed
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *renewalAttemptRepo) FindByCycle(ctx context.Context, tx repository.Tx, subscriptionID string, cycle model.CycleDate) (*model.RenewalAttempt, error) {
	const q = `
SELECT id, subscription_id, cycle_date, status, retry_count, charge_ref, last_error, created_at, updated_at
  FROM renewal_attempts
 WHERE subscription_id=$1 AND cycle_date=$2;`
	row, err := pickRow(ctx, r.pool, tx, q, subscriptionID, string(cycle))
	if err != nil {
		return nil, err
	}
	a := &model.RenewalAttempt{}
	var status, cycleDate string
	if err := row.Scan(&a.ID, &a.SubscriptionID, &cycleDate, &status, &a.RetryCount, &a.ChargeRef, &a.LastError, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	a.Status = model.RenewalAttemptStatus(status)
	a.CycleDate = model.CycleDate(cycleDate)
	return a, nil
}

func (r *renewalAttemptRepo) DeleteOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM renewal_attempts WHERE created_at < $1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, cutoff)
	if err != nil {
		return 0, domain.ErrOperationFailed
	}
	return cmd.RowsAffected(), nil
}
