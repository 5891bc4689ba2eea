// File: internal/usecase/customer_uc.go
package usecase

import (
	"context"

	"github.com/google/uuid"

	"cuenty-subscription-engine/internal/domain/model"
	"cuenty-subscription-engine/internal/domain/ports/repository"
)

// Compile-time check
var _ CustomerUseCase = (*customerUC)(nil)

type CustomerUseCase interface {
	Register(ctx context.Context, name, handle, email string) (*model.Customer, error)
	Get(ctx context.Context, customerID string) (*model.Customer, error)
	List(ctx context.Context) ([]*model.Customer, error)
	Subscriptions(ctx context.Context, customerID string) ([]*model.Subscription, error)
}

type customerUC struct {
	customers repository.CustomerRepository
	subs      repository.SubscriptionRepository
	tm        repository.TransactionManager
}

func NewCustomerUseCase(customers repository.CustomerRepository, subs repository.SubscriptionRepository, tm repository.TransactionManager) *customerUC {
	return &customerUC{customers: customers, subs: subs, tm: tm}
}

func (uc *customerUC) Register(ctx context.Context, name, handle, email string) (*model.Customer, error) {
	customer, err := model.NewCustomer(uuid.NewString(), name, handle, email)
	if err != nil {
		return nil, err
	}
	err = uc.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return uc.customers.Save(ctx, tx, customer)
	})
	if err != nil {
		return nil, err
	}
	return customer, nil
}

func (uc *customerUC) Get(ctx context.Context, customerID string) (*model.Customer, error) {
	return uc.customers.FindByID(ctx, repository.NoTX, customerID)
}

func (uc *customerUC) List(ctx context.Context) ([]*model.Customer, error) {
	return uc.customers.ListAll(ctx, repository.NoTX)
}

func (uc *customerUC) Subscriptions(ctx context.Context, customerID string) ([]*model.Subscription, error) {
	return uc.subs.ListByCustomer(ctx, repository.NoTX, customerID)
}
