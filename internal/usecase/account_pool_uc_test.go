//go:build !integration

package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"cuenty-subscription-engine/internal/domain"
	"cuenty-subscription-engine/internal/domain/model"
)

func seedAccount(t *testing.T, repo *memAccountRepo, id, service string, capacity int) *model.Account {
	t.Helper()
	account, err := model.NewAccount(id, service, id+"-label", capacity)
	if err != nil {
		t.Fatalf("NewAccount: %v", err)
	}
	if err := repo.Save(context.Background(), nil, account); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return account
}

func TestAccountPoolUseCase_ReserveSlot(t *testing.T) {
	ctx := context.Background()

	t.Run("should bind the lowest free slot first", func(t *testing.T) {
		repo := newMemAccountRepo()
		seedAccount(t, repo, "acc-1", "netflix", 3)
		pool := NewAccountPoolUseCase(repo, newMockTxManager(), newTestLogger())

		ref, err := pool.ReserveSlot(ctx, "acc-1", "sub-a")
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if ref.SlotIndex != 0 {
			t.Errorf("expected slot 0, got %d", ref.SlotIndex)
		}

		ref, err = pool.ReserveSlot(ctx, "acc-1", "sub-b")
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if ref.SlotIndex != 1 {
			t.Errorf("expected slot 1, got %d", ref.SlotIndex)
		}
	})

	t.Run("should return ErrNoCapacity when the account is full", func(t *testing.T) {
		repo := newMemAccountRepo()
		seedAccount(t, repo, "acc-1", "netflix", 2)
		pool := NewAccountPoolUseCase(repo, newMockTxManager(), newTestLogger())

		for i, sub := range []string{"sub-a", "sub-b"} {
			if _, err := pool.ReserveSlot(ctx, "acc-1", sub); err != nil {
				t.Fatalf("reservation %d: %v", i, err)
			}
		}
		if _, err := pool.ReserveSlot(ctx, "acc-1", "sub-c"); !errors.Is(err, domain.ErrNoCapacity) {
			t.Fatalf("expected ErrNoCapacity, got: %v", err)
		}
	})

	t.Run("should reject empty arguments", func(t *testing.T) {
		pool := NewAccountPoolUseCase(newMemAccountRepo(), newMockTxManager(), newTestLogger())
		if _, err := pool.ReserveSlot(ctx, "", "sub-a"); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got: %v", err)
		}
		if _, err := pool.ReserveSlot(ctx, "acc-1", ""); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got: %v", err)
		}
	})

	t.Run("should never exceed capacity under concurrent reservations", func(t *testing.T) {
		repo := newMemAccountRepo()
		seedAccount(t, repo, "acc-1", "netflix", 3)
		tm := newMockTxManager()
		tm.Serialize = true
		pool := NewAccountPoolUseCase(repo, tm, newTestLogger())

		const workers = 10
		var wg sync.WaitGroup
		results := make([]error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, results[i] = pool.ReserveSlot(ctx, "acc-1", "sub-"+string(rune('a'+i)))
			}(i)
		}
		wg.Wait()

		won := 0
		for _, err := range results {
			switch {
			case err == nil:
				won++
			case errors.Is(err, domain.ErrNoCapacity):
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if won != 3 {
			t.Errorf("expected exactly 3 winning reservations, got %d", won)
		}
		free, err := pool.CapacityRemaining(ctx, "acc-1")
		if err != nil {
			t.Fatalf("CapacityRemaining: %v", err)
		}
		if free != 0 {
			t.Errorf("expected 0 free slots, got %d", free)
		}
	})
}

func TestAccountPoolUseCase_ReleaseSlot(t *testing.T) {
	ctx := context.Background()

	t.Run("should free a bound slot", func(t *testing.T) {
		repo := newMemAccountRepo()
		seedAccount(t, repo, "acc-1", "netflix", 2)
		pool := NewAccountPoolUseCase(repo, newMockTxManager(), newTestLogger())

		ref, err := pool.ReserveSlot(ctx, "acc-1", "sub-a")
		if err != nil {
			t.Fatalf("reserve: %v", err)
		}
		if err := pool.ReleaseSlot(ctx, ref, "sub-a"); err != nil {
			t.Fatalf("release: %v", err)
		}
		free, _ := pool.CapacityRemaining(ctx, "acc-1")
		if free != 2 {
			t.Errorf("expected 2 free slots after release, got %d", free)
		}
	})

	t.Run("should refuse to free a slot held by another subscription", func(t *testing.T) {
		repo := newMemAccountRepo()
		seedAccount(t, repo, "acc-1", "netflix", 2)
		pool := NewAccountPoolUseCase(repo, newMockTxManager(), newTestLogger())

		ref, err := pool.ReserveSlot(ctx, "acc-1", "sub-a")
		if err != nil {
			t.Fatalf("reserve: %v", err)
		}
		if err := pool.ReleaseSlot(ctx, ref, "sub-b"); !errors.Is(err, domain.ErrSlotConflict) {
			t.Fatalf("expected ErrSlotConflict, got: %v", err)
		}
		free, _ := pool.CapacityRemaining(ctx, "acc-1")
		if free != 1 {
			t.Errorf("slot must stay bound after a rejected release, free = %d", free)
		}
	})

	t.Run("should be idempotent on an already free slot", func(t *testing.T) {
		repo := newMemAccountRepo()
		seedAccount(t, repo, "acc-1", "netflix", 2)
		pool := NewAccountPoolUseCase(repo, newMockTxManager(), newTestLogger())

		ref, _ := pool.ReserveSlot(ctx, "acc-1", "sub-a")
		if err := pool.ReleaseSlot(ctx, ref, "sub-a"); err != nil {
			t.Fatalf("first release: %v", err)
		}
		if err := pool.ReleaseSlot(ctx, ref, "sub-a"); err != nil {
			t.Fatalf("second release should be a no-op, got: %v", err)
		}
	})

	t.Run("should ignore a zero ref", func(t *testing.T) {
		pool := NewAccountPoolUseCase(newMemAccountRepo(), newMockTxManager(), newTestLogger())
		if err := pool.ReleaseSlot(ctx, model.SlotRef{}, "sub-a"); err != nil {
			t.Fatalf("expected no error for zero ref, got: %v", err)
		}
	})
}

func TestAccountPoolUseCase_Snapshot(t *testing.T) {
	ctx := context.Background()
	repo := newMemAccountRepo()
	seedAccount(t, repo, "acc-1", "netflix", 3)
	seedAccount(t, repo, "acc-2", "spotify", 5)
	pool := NewAccountPoolUseCase(repo, newMockTxManager(), newTestLogger())

	if _, err := pool.ReserveSlot(ctx, "acc-1", "sub-a"); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	rows, err := pool.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	byID := map[string]AccountCapacity{}
	for _, row := range rows {
		byID[row.AccountID] = row
	}
	if got := byID["acc-1"]; got.Occupied != 1 || got.Free != 2 {
		t.Errorf("acc-1: expected occupied=1 free=2, got occupied=%d free=%d", got.Occupied, got.Free)
	}
	if got := byID["acc-2"]; got.Occupied != 0 || got.Free != 5 {
		t.Errorf("acc-2: expected occupied=0 free=5, got occupied=%d free=%d", got.Occupied, got.Free)
	}
}

func TestAccountPoolUseCase_DeactivateAccount(t *testing.T) {
	ctx := context.Background()
	repo := newMemAccountRepo()
	seedAccount(t, repo, "acc-1", "netflix", 2)
	pool := NewAccountPoolUseCase(repo, newMockTxManager(), newTestLogger())

	if err := pool.DeactivateAccount(ctx, "acc-1"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	account, err := repo.FindByID(ctx, nil, "acc-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if account.Active {
		t.Error("expected account to be inactive")
	}

	if err := pool.DeactivateAccount(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
}
