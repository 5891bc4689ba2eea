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

// Ensure comboRepo implements repository.ComboRepository
var _ repository.ComboRepository = (*comboRepo)(nil)

type comboRepo struct {
	pool *pgxpool.Pool
}

func NewComboRepo(pool *pgxpool.Pool) *comboRepo {
	return &comboRepo{pool: pool}
}

func (r *comboRepo) Save(ctx context.Context, tx repository.Tx, c *model.Combo) error {
	const q = `
INSERT INTO combos (id, name, description, auto_calculate, price_total, cost_total, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
  name=$2, description=$3, auto_calculate=$4, price_total=$5, cost_total=$6;`
	_, err := execSQL(ctx, r.pool, tx, q, c.ID, c.Name, c.Description, c.AutoCalculate, c.PriceTotal, c.CostTotal, c.CreatedAt)
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
	// items are replaced wholesale
	if _, err := execSQL(ctx, r.pool, tx, `DELETE FROM combo_items WHERE combo_id=$1;`, c.ID); err != nil {
		return domain.ErrOperationFailed
	}
	const qi = `INSERT INTO combo_items (combo_id, plan_id, quantity) VALUES ($1,$2,$3);`
	for _, it := range c.Items {
		if _, err := execSQL(ctx, r.pool, tx, qi, c.ID, it.PlanID, it.Quantity); err != nil {
			return domain.ErrOperationFailed
		}
	}
	return nil
}

func (r *comboRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Combo, error) {
	const q = `
SELECT id, name, description, auto_calculate, price_total, cost_total, created_at
  FROM combos
 WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	c := &model.Combo{}
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.AutoCalculate, &c.PriceTotal, &c.CostTotal, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	items, err := r.itemsOf(ctx, tx, c.ID)
	if err != nil {
		return nil, err
	}
	c.Items = items
	return c, nil
}

func (r *comboRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Combo, error) {
	const q = `
SELECT id, name, description, auto_calculate, price_total, cost_total, created_at
  FROM combos
 ORDER BY name;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	var out []*model.Combo
	for rows.Next() {
		c := &model.Combo{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.AutoCalculate, &c.PriceTotal, &c.CostTotal, &c.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	for _, c := range out {
		items, err := r.itemsOf(ctx, tx, c.ID)
		if err != nil {
			return nil, err
		}
		c.Items = items
	}
	return out, nil
}

func (r *comboRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	if _, err := execSQL(ctx, r.pool, tx, `DELETE FROM combo_items WHERE combo_id=$1;`, id); err != nil {
		return domain.ErrOperationFailed
	}
	cmd, err := execSQL(ctx, r.pool, tx, `DELETE FROM combos WHERE id=$1;`, id)
	if err != nil {
		return domain.ErrOperationFailed
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *comboRepo) itemsOf(ctx context.Context, tx repository.Tx, comboID string) ([]model.ComboItem, error) {
	const q = `SELECT plan_id, quantity FROM combo_items WHERE combo_id=$1;`
	rows, err := queryRows(ctx, r.pool, tx, q, comboID)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	var items []model.ComboItem
	for rows.Next() {
		var it model.ComboItem
		if err := rows.Scan(&it.PlanID, &it.Quantity); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return items, nil
}
