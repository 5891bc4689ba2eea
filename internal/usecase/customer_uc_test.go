//go:build !integration

package usecase

import (
	"context"
	"errors"
	"testing"

	"cuenty-subscription-engine/internal/domain"
	"cuenty-subscription-engine/internal/domain/model"
)

func TestCustomerUseCase_Register(t *testing.T) {
	ctx := context.Background()
	customers := newMemCustomerRepo()
	subs := newMemSubRepo()
	uc := NewCustomerUseCase(customers, subs, newMockTxManager())

	t.Run("should register with a messaging handle", func(t *testing.T) {
		customer, err := uc.Register(ctx, "Ana", "12345", "")
		if err != nil {
			t.Fatalf("Register: %v", err)
		}
		if customer.ID == "" {
			t.Error("expected a generated id")
		}
		got, err := uc.Get(ctx, customer.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Handle != "12345" {
			t.Errorf("expected the handle persisted, got %q", got.Handle)
		}
	})

	t.Run("should require at least one contact channel", func(t *testing.T) {
		if _, err := uc.Register(ctx, "Ana", "", ""); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got: %v", err)
		}
	})
}

func TestCustomerUseCase_Subscriptions(t *testing.T) {
	ctx := context.Background()
	customers := newMemCustomerRepo()
	subs := newMemSubRepo()
	uc := NewCustomerUseCase(customers, subs, newMockTxManager())

	customer, err := uc.Register(ctx, "Ana", "12345", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	for _, id := range []string{"sub-1", "sub-2"} {
		sub, err := model.NewSubscription(id, customer.ID, "plan-1", true)
		if err != nil {
			t.Fatalf("NewSubscription: %v", err)
		}
		if err := subs.Save(ctx, nil, sub); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	other, _ := model.NewSubscription("sub-3", "someone-else", "plan-1", true)
	if err := subs.Save(ctx, nil, other); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := uc.Subscriptions(ctx, customer.ID)
	if err != nil {
		t.Fatalf("Subscriptions: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 subscriptions, got %d", len(got))
	}
}
