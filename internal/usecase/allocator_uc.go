// File: internal/usecase/allocator_uc.go
package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"cuenty-subscription-engine/internal/domain"
	"cuenty-subscription-engine/internal/domain/model"
	"cuenty-subscription-engine/internal/domain/ports/repository"
	"cuenty-subscription-engine/internal/infra/metrics"
)

// Compile-time check
var _ AllocatorUseCase = (*allocatorUC)(nil)

// AllocatorUseCase places an order's subscription on a suitable account.
type AllocatorUseCase interface {
	// Allocate reserves a free slot on an account offering the plan's
	// service. preferredAccountID may be empty. Every matching account at
	// capacity returns domain.ErrExhausted: the order service decides
	// whether to wait, backorder or fail the sale.
	Allocate(ctx context.Context, planID, preferredAccountID, subscriptionID string) (model.SlotRef, error)
	// ReassignForRenewal keeps the current slot unless its account was
	// deactivated, in which case the regular placement search reserves a
	// replacement. The old slot is NOT freed here; the caller releases it
	// once the renewal succeeds, or releases the reservation when it fails.
	ReassignForRenewal(ctx context.Context, sub *model.Subscription, plan *model.Plan) (model.SlotRef, error)
}

type allocatorUC struct {
	accounts repository.AccountRepository
	plans    repository.PlanRepository
	pool     *accountPoolUC
	tm       repository.TransactionManager
	log      *zerolog.Logger
}

func NewAllocatorUseCase(accounts repository.AccountRepository, plans repository.PlanRepository, pool *accountPoolUC, tm repository.TransactionManager, logger *zerolog.Logger) *allocatorUC {
	l := logger.With().Str("component", "AllocatorUC").Logger()
	return &allocatorUC{accounts: accounts, plans: plans, pool: pool, tm: tm, log: &l}
}

func (uc *allocatorUC) Allocate(ctx context.Context, planID, preferredAccountID, subscriptionID string) (model.SlotRef, error) {
	plan, err := uc.plans.FindByID(ctx, repository.NoTX, planID)
	if err != nil {
		return model.SlotRef{}, err
	}

	var ref model.SlotRef
	err = uc.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if preferredAccountID != "" {
			r, err := uc.pool.reserveSlotTx(ctx, tx, preferredAccountID, subscriptionID)
			if err == nil {
				ref = r
				return nil
			}
			if !errors.Is(err, domain.ErrNoCapacity) {
				return err
			}
			// preferred account full, fall through to the regular search
		}
		r, err := uc.placeTx(ctx, tx, plan.Service, subscriptionID)
		if err != nil {
			return err
		}
		ref = r
		return nil
	})
	if err != nil {
		return model.SlotRef{}, err
	}
	return ref, nil
}

// placeTx runs the tightest-fit search: among active accounts offering the
// service with at least one free slot, pick the one with the FEWEST free
// slots. Packing orders tightly minimizes partially-empty accounts and keeps
// consolidation simple. Ties break by account creation order (oldest first)
// for determinism.
func (uc *allocatorUC) placeTx(ctx context.Context, tx repository.Tx, service, subscriptionID string) (model.SlotRef, error) {
	candidates, err := uc.accounts.ListByService(ctx, tx, service)
	if err != nil {
		return model.SlotRef{}, err
	}

	// candidates arrive oldest-first, so a strict < keeps the tie-break.
	var best *repository.AccountFreeCount
	for i := range candidates {
		c := &candidates[i]
		if c.FreeSlots < 1 {
			continue
		}
		if best == nil || c.FreeSlots < best.FreeSlots {
			best = c
		}
	}
	if best == nil {
		metrics.IncAllocationExhausted(service)
		uc.log.Info().Str("service", service).Int("accounts", len(candidates)).Msg("allocation exhausted")
		return model.SlotRef{}, domain.ErrExhausted
	}

	ref, err := uc.pool.reserveSlotTx(ctx, tx, best.Account.ID, subscriptionID)
	if err != nil {
		// The free count was a snapshot; a concurrent order may have taken
		// the last slot between the listing and the lock.
		if errors.Is(err, domain.ErrNoCapacity) {
			return model.SlotRef{}, domain.ErrExhausted
		}
		return model.SlotRef{}, err
	}
	return ref, nil
}

func (uc *allocatorUC) ReassignForRenewal(ctx context.Context, sub *model.Subscription, plan *model.Plan) (model.SlotRef, error) {
	if sub.Slot == nil {
		return model.SlotRef{}, domain.ErrInvalidState
	}
	account, err := uc.accounts.FindByID(ctx, repository.NoTX, sub.Slot.AccountID)
	if err != nil {
		return model.SlotRef{}, err
	}
	if account.Active {
		return *sub.Slot, nil // keep the existing slot
	}

	uc.log.Info().
		Str("subscription_id", sub.ID).
		Str("account_id", account.ID).
		Msg("account deactivated, reassigning slot on renewal")

	// Reserve only. The old slot stays bound until the renewal outcome
	// commits: success moves the subscription and frees it, failure rolls
	// the reservation back.
	var ref model.SlotRef
	err = uc.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		r, err := uc.placeTx(ctx, tx, plan.Service, sub.ID)
		if err != nil {
			return err
		}
		ref = r
		return nil
	})
	if err != nil {
		return model.SlotRef{}, err
	}
	return ref, nil
}
