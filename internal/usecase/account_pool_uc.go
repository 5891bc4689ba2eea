// File: internal/usecase/account_pool_uc.go
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
var _ AccountPoolUseCase = (*accountPoolUC)(nil)

// AccountCapacity is one row of the admin capacity snapshot.
type AccountCapacity struct {
	AccountID string
	Service   string
	Label     string
	Capacity  int
	Occupied  int
	Free      int
	Active    bool
}

// AccountPoolUseCase tracks slot capacity across the shared-account
// inventory and owns the reservation invariant: a slot is bound to at most
// one subscription, and an account never exceeds its capacity.
type AccountPoolUseCase interface {
	// ReserveSlot atomically binds the first free slot on the account to the
	// subscription. Returns domain.ErrNoCapacity when the account is full,
	// which is an expected outcome, not a fault.
	ReserveSlot(ctx context.Context, accountID, subscriptionID string) (model.SlotRef, error)
	// ReleaseSlot frees a slot held by the given subscription. Idempotent:
	// releasing a free slot is a no-op. A slot bound to a different
	// subscription is left untouched and the call fails with
	// domain.ErrSlotConflict.
	ReleaseSlot(ctx context.Context, ref model.SlotRef, subscriptionID string) error
	// CapacityRemaining is a read-only snapshot; it may be stale under
	// concurrent reservation. ReserveSlot is the authority.
	CapacityRemaining(ctx context.Context, accountID string) (int, error)
	// Snapshot returns per-account occupancy for the admin surface.
	Snapshot(ctx context.Context) ([]AccountCapacity, error)

	CreateAccount(ctx context.Context, account *model.Account) error
	// DeactivateAccount takes an account out of allocation rotation. Existing
	// leases keep running; renewals reassign away from it.
	DeactivateAccount(ctx context.Context, accountID string) error
}

type accountPoolUC struct {
	accounts repository.AccountRepository
	tm       repository.TransactionManager
	log      *zerolog.Logger
}

func NewAccountPoolUseCase(accounts repository.AccountRepository, tm repository.TransactionManager, logger *zerolog.Logger) *accountPoolUC {
	l := logger.With().Str("component", "AccountPoolUC").Logger()
	return &accountPoolUC{accounts: accounts, tm: tm, log: &l}
}

func (uc *accountPoolUC) ReserveSlot(ctx context.Context, accountID, subscriptionID string) (model.SlotRef, error) {
	if accountID == "" || subscriptionID == "" {
		return model.SlotRef{}, domain.ErrInvalidArgument
	}
	var ref model.SlotRef
	err := uc.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		r, err := uc.reserveSlotTx(ctx, tx, accountID, subscriptionID)
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

// reserveSlotTx is the lock-holding core of ReserveSlot, shared with the
// allocator so allocation and reservation commit in one transaction.
func (uc *accountPoolUC) reserveSlotTx(ctx context.Context, tx repository.Tx, accountID, subscriptionID string) (model.SlotRef, error) {
	if err := uc.accounts.Lock(ctx, tx, accountID); err != nil {
		return model.SlotRef{}, err
	}
	slot, err := uc.accounts.FindFreeSlot(ctx, tx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNoCapacity) {
			metrics.IncSlotReservation("no_capacity")
		}
		return model.SlotRef{}, err
	}
	if !slot.Free() {
		// Fail closed: better to refuse a reservation than double-book.
		metrics.IncSlotReservation("conflict")
		uc.log.Error().
			Str("account_id", accountID).
			Int("slot_index", slot.Index).
			Str("bound_to", slot.SubscriptionID).
			Str("requested_by", subscriptionID).
			Msg("slot conflict: free-slot query returned an occupied slot")
		return model.SlotRef{}, domain.ErrSlotConflict
	}
	slot.SubscriptionID = subscriptionID
	if err := uc.accounts.SaveSlot(ctx, tx, slot); err != nil {
		return model.SlotRef{}, err
	}
	metrics.IncSlotReservation("reserved")
	return slot.Ref(), nil
}

func (uc *accountPoolUC) ReleaseSlot(ctx context.Context, ref model.SlotRef, subscriptionID string) error {
	if ref.IsZero() {
		return nil
	}
	return uc.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return uc.releaseSlotTx(ctx, tx, ref, subscriptionID)
	})
}

func (uc *accountPoolUC) releaseSlotTx(ctx context.Context, tx repository.Tx, ref model.SlotRef, subscriptionID string) error {
	if err := uc.accounts.Lock(ctx, tx, ref.AccountID); err != nil {
		return err
	}
	slot, err := uc.accounts.FindSlot(ctx, tx, ref)
	if err != nil {
		return err
	}
	if slot.Free() {
		return nil // already released
	}
	if slot.SubscriptionID != subscriptionID {
		uc.log.Error().
			Str("account_id", ref.AccountID).
			Int("slot_index", ref.SlotIndex).
			Str("bound_to", slot.SubscriptionID).
			Str("released_by", subscriptionID).
			Msg("slot conflict: release by a subscription that does not hold the slot")
		return domain.ErrSlotConflict
	}
	slot.SubscriptionID = ""
	slot.ProfileLabel = ""
	if err := uc.accounts.SaveSlot(ctx, tx, slot); err != nil {
		return err
	}
	metrics.IncSlotRelease()
	return nil
}

func (uc *accountPoolUC) CapacityRemaining(ctx context.Context, accountID string) (int, error) {
	return uc.accounts.FreeSlotCount(ctx, repository.NoTX, accountID)
}

func (uc *accountPoolUC) Snapshot(ctx context.Context) ([]AccountCapacity, error) {
	rows, err := uc.accounts.ListAll(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	out := make([]AccountCapacity, 0, len(rows))
	perService := map[string][2]int{} // occupied, capacity
	for _, row := range rows {
		occupied := row.Account.Capacity - row.FreeSlots
		out = append(out, AccountCapacity{
			AccountID: row.Account.ID,
			Service:   row.Account.Service,
			Label:     row.Account.Label,
			Capacity:  row.Account.Capacity,
			Occupied:  occupied,
			Free:      row.FreeSlots,
			Active:    row.Account.Active,
		})
		agg := perService[row.Account.Service]
		perService[row.Account.Service] = [2]int{agg[0] + occupied, agg[1] + row.Account.Capacity}
	}
	for svc, agg := range perService {
		metrics.SetServiceCapacity(svc, agg[0], agg[1])
	}
	return out, nil
}

func (uc *accountPoolUC) CreateAccount(ctx context.Context, account *model.Account) error {
	if account == nil || account.ID == "" {
		return domain.ErrInvalidArgument
	}
	return uc.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return uc.accounts.Save(ctx, tx, account)
	})
}

func (uc *accountPoolUC) DeactivateAccount(ctx context.Context, accountID string) error {
	return uc.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.accounts.Lock(ctx, tx, accountID); err != nil {
			return err
		}
		return uc.accounts.SetActive(ctx, tx, accountID, false)
	})
}
