// File: internal/domain/ports/repository/customer.go
package repository

import (
	"context"

	"cuenty-subscription-engine/internal/domain/model"
)

type CustomerRepository interface {
	Save(ctx context.Context, tx Tx, customer *model.Customer) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Customer, error)
	ListAll(ctx context.Context, tx Tx) ([]*model.Customer, error)
}
