package repository

import (
	"context"

	"cuenty-subscription-engine/internal/domain/model"
)

// PlanRepository is the port for plan persistence.
type PlanRepository interface {
	Save(ctx context.Context, tx Tx, plan *model.Plan) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Plan, error)
	ListAll(ctx context.Context, tx Tx) ([]*model.Plan, error)
	Delete(ctx context.Context, tx Tx, id string) error
}

// ComboRepository is the port for combo persistence. Items are stored with
// the combo as one aggregate.
type ComboRepository interface {
	Save(ctx context.Context, tx Tx, combo *model.Combo) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Combo, error)
	ListAll(ctx context.Context, tx Tx) ([]*model.Combo, error)
	Delete(ctx context.Context, tx Tx, id string) error
}
