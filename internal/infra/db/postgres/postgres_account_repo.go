package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"cuenty-subscription-engine/internal/domain"
	"cuenty-subscription-engine/internal/domain/model"
	"cuenty-subscription-engine/internal/domain/ports/repository"
)

// Ensure accountRepo implements repository.AccountRepository
var _ repository.AccountRepository = (*accountRepo)(nil)

type accountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *accountRepo {
	return &accountRepo{pool: pool}
}

func (r *accountRepo) Save(ctx context.Context, tx repository.Tx, a *model.Account) error {
	const q = `
INSERT INTO accounts (id, service, label, capacity, active, email, password, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
  service=$2, label=$3, capacity=$4, active=$5, email=$6, password=$7;`

	_, err := execSQL(ctx, r.pool, tx, q, a.ID, a.Service, a.Label, a.Capacity, a.Active, a.Email, a.Password, a.CreatedAt)
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
	for i := range a.Slots {
		if err := r.SaveSlot(ctx, tx, &a.Slots[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *accountRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Account, error) {
	const q = `
SELECT id, service, label, capacity, active, email, password, created_at
  FROM accounts
 WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	a := &model.Account{}
	if err := row.Scan(&a.ID, &a.Service, &a.Label, &a.Capacity, &a.Active, &a.Email, &a.Password, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	slots, err := r.slotsOf(ctx, tx, a.ID)
	if err != nil {
		return nil, err
	}
	a.Slots = slots
	return a, nil
}

func (r *accountRepo) ListByService(ctx context.Context, tx repository.Tx, service string) ([]repository.AccountFreeCount, error) {
	const q = `
SELECT a.id, a.service, a.label, a.capacity, a.active, a.email, a.password, a.created_at,
       COUNT(s.slot_index) FILTER (WHERE s.subscription_id IS NULL) AS free_slots
  FROM accounts a
  JOIN account_slots s ON s.account_id = a.id
 WHERE a.service=$1 AND a.active
 GROUP BY a.id
 ORDER BY a.created_at ASC;`
	return r.listWithCounts(ctx, tx, q, service)
}

func (r *accountRepo) ListAll(ctx context.Context, tx repository.Tx) ([]repository.AccountFreeCount, error) {
	const q = `
SELECT a.id, a.service, a.label, a.capacity, a.active, a.email, a.password, a.created_at,
       COUNT(s.slot_index) FILTER (WHERE s.subscription_id IS NULL) AS free_slots
  FROM accounts a
  JOIN account_slots s ON s.account_id = a.id
 GROUP BY a.id
 ORDER BY a.created_at ASC;`
	return r.listWithCounts(ctx, tx, q)
}

func (r *accountRepo) listWithCounts(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]repository.AccountFreeCount, error) {
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
	var out []repository.AccountFreeCount
	for rows.Next() {
		a := &model.Account{}
		var free int
		if err := rows.Scan(&a.ID, &a.Service, &a.Label, &a.Capacity, &a.Active, &a.Email, &a.Password, &a.CreatedAt, &free); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, repository.AccountFreeCount{Account: a, FreeSlots: free})
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *accountRepo) Lock(ctx context.Context, tx repository.Tx, accountID string) error {
	return advisoryLock(ctx, tx, "account:"+accountID)
}

func (r *accountRepo) FindFreeSlot(ctx context.Context, tx repository.Tx, accountID string) (*model.Slot, error) {
	const q = `
SELECT account_id, slot_index, COALESCE(subscription_id,''), profile_label
  FROM account_slots
 WHERE account_id=$1 AND subscription_id IS NULL
 ORDER BY slot_index ASC
 LIMIT 1;`
	slot, err := r.scanSlotRow(ctx, tx, q, accountID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNoCapacity
	}
	return slot, err
}

func (r *accountRepo) FindSlot(ctx context.Context, tx repository.Tx, ref model.SlotRef) (*model.Slot, error) {
	const q = `
SELECT account_id, slot_index, COALESCE(subscription_id,''), profile_label
  FROM account_slots
 WHERE account_id=$1 AND slot_index=$2;`
	return r.scanSlotRow(ctx, tx, q, ref.AccountID, ref.SlotIndex)
}

func (r *accountRepo) scanSlotRow(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Slot, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	s := &model.Slot{}
	if err := row.Scan(&s.AccountID, &s.Index, &s.SubscriptionID, &s.ProfileLabel); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return s, nil
}

func (r *accountRepo) SaveSlot(ctx context.Context, tx repository.Tx, s *model.Slot) error {
	const q = `
INSERT INTO account_slots (account_id, slot_index, subscription_id, profile_label)
VALUES ($1,$2,NULLIF($3,''),$4)
ON CONFLICT (account_id, slot_index) DO UPDATE SET
  subscription_id=NULLIF($3,''), profile_label=$4;`
	_, err := execSQL(ctx, r.pool, tx, q, s.AccountID, s.Index, s.SubscriptionID, s.ProfileLabel)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidExecContext):
			return err
		default:
			return domain.ErrOperationFailed
		}
	}
	return nil
}

func (r *accountRepo) FreeSlotCount(ctx context.Context, tx repository.Tx, accountID string) (int, error) {
	const q = `SELECT COUNT(*) FROM account_slots WHERE account_id=$1 AND subscription_id IS NULL;`
	row, err := pickRow(ctx, r.pool, tx, q, accountID)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func (r *accountRepo) SetActive(ctx context.Context, tx repository.Tx, accountID string, active bool) error {
	const q = `UPDATE accounts SET active=$2 WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, accountID, active)
	if err != nil {
		return domain.ErrOperationFailed
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *accountRepo) slotsOf(ctx context.Context, tx repository.Tx, accountID string) ([]model.Slot, error) {
	const q = `
SELECT account_id, slot_index, COALESCE(subscription_id,''), profile_label
  FROM account_slots
 WHERE account_id=$1
 ORDER BY slot_index ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, accountID)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	var out []model.Slot
	for rows.Next() {
		var s model.Slot
		if err := rows.Scan(&s.AccountID, &s.Index, &s.SubscriptionID, &s.ProfileLabel); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
