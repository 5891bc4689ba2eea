package repository

import (
	"context"

	"cuenty-subscription-engine/internal/domain/model"
)

// AccountFreeCount pairs an account with its current number of free slots,
// used by the tightest-fit allocator and the capacity snapshot.
type AccountFreeCount struct {
	Account   *model.Account
	FreeSlots int
}

// AccountRepository is the port for the shared-account inventory and its
// slots. Slots belong to the account aggregate; they are never created or
// destroyed outside account creation.
type AccountRepository interface {
	Save(ctx context.Context, tx Tx, account *model.Account) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Account, error)
	// ListByService returns active accounts offering the service together
	// with their free-slot counts, ordered by creation time (oldest first).
	ListByService(ctx context.Context, tx Tx, service string) ([]AccountFreeCount, error)
	// ListAll returns every account with its free-slot count, for the admin
	// capacity snapshot.
	ListAll(ctx context.Context, tx Tx) ([]AccountFreeCount, error)

	// Lock acquires the per-account mutual exclusion for the duration of the
	// surrounding transaction. Reservations and releases must run under it.
	Lock(ctx context.Context, tx Tx, accountID string) error
	// FindFreeSlot returns the lowest-index free slot, or domain.ErrNoCapacity.
	FindFreeSlot(ctx context.Context, tx Tx, accountID string) (*model.Slot, error)
	FindSlot(ctx context.Context, tx Tx, ref model.SlotRef) (*model.Slot, error)
	SaveSlot(ctx context.Context, tx Tx, slot *model.Slot) error
	FreeSlotCount(ctx context.Context, tx Tx, accountID string) (int, error)

	SetActive(ctx context.Context, tx Tx, accountID string, active bool) error
}
