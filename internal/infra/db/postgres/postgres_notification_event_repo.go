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

// Ensure notificationEventRepo implements repository.NotificationEventRepository
var _ repository.NotificationEventRepository = (*notificationEventRepo)(nil)

type notificationEventRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationEventRepo(pool *pgxpool.Pool) *notificationEventRepo {
	return &notificationEventRepo{pool: pool}
}

const notificationColumns = `
id, subscription_id, kind, cycle_date, status, attempts, channel, last_error, created_at, updated_at`

// Create enforces the (subscription_id, kind, cycle_date) idempotency key
// through its unique index.
func (r *notificationEventRepo) Create(ctx context.Context, tx repository.Tx, e *model.NotificationEvent) error {
	const q = `
INSERT INTO notification_events (id, subscription_id, kind, cycle_date, status, attempts, channel, last_error, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10);`
	_, err := execSQL(ctx, r.pool, tx, q,
		e.ID, e.SubscriptionID, string(e.Kind), string(e.CycleDate), e.Status, e.Attempts, e.Channel, e.LastError, e.CreatedAt, e.UpdatedAt)
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

func (r *notificationEventRepo) Update(ctx context.Context, tx repository.Tx, e *model.NotificationEvent) error {
	const q = `
UPDATE notification_events
   SET status=$2, attempts=$3, channel=$4, last_error=$5, updated_at=$6
 WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, e.ID, e.Status, e.Attempts, e.Channel, e.LastError, e.UpdatedAt)
	if err != nil {
		return domain.ErrOperationFailed
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *notificationEventRepo) FindByKey(ctx context.Context, tx repository.Tx, subscriptionID string, kind model.NotificationKind, cycle model.CycleDate) (*model.NotificationEvent, error) {
	q := `SELECT ` + notificationColumns + `
  FROM notification_events
 WHERE subscription_id=$1 AND kind=$2 AND cycle_date=$3;`
	row, err := pickRow(ctx, r.pool, tx, q, subscriptionID, string(kind), string(cycle))
	if err != nil {
		return nil, err
	}
	return scanNotificationEvent(row)
}

func (r *notificationEventRepo) ListFailed(ctx context.Context, tx repository.Tx, limit int) ([]*model.NotificationEvent, error) {
	q := `SELECT ` + notificationColumns + `
  FROM notification_events
 WHERE status='failed'
 ORDER BY updated_at DESC
 LIMIT $1;`
	rows, err := queryRows(ctx, r.pool, tx, q, limit)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	var out []*model.NotificationEvent
	for rows.Next() {
		e, err := scanNotificationEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *notificationEventRepo) DeleteOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM notification_events WHERE created_at < $1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, cutoff)
	if err != nil {
		return 0, domain.ErrOperationFailed
	}
	return cmd.RowsAffected(), nil
}

func scanNotificationEvent(row pgx.Row) (*model.NotificationEvent, error) {
	e := &model.NotificationEvent{}
	var kind, cycle, status string
	if err := row.Scan(&e.ID, &e.SubscriptionID, &kind, &cycle, &status, &e.Attempts, &e.Channel, &e.LastError, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	e.Kind = model.NotificationKind(kind)
	e.CycleDate = model.CycleDate(cycle)
	e.Status = model.NotificationEventStatus(status)
	return e, nil
}
