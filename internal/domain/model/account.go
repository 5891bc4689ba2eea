package model

import (
	"time"

	"cuenty-subscription-engine/internal/domain"
)

// Account is a shared third-party credential set with a fixed number of
// leasable slots (profiles). Credentials are stored encrypted; the plain
// values only exist in memory while building a credential delivery payload.
type Account struct {
	ID        string
	Service   string // service key, e.g. "netflix", "spotify"
	Label     string // operator-facing name of the credential set
	Capacity  int
	Active    bool
	Email     string // encrypted at rest
	Password  string // encrypted at rest
	CreatedAt time.Time

	// Slots is populated by repositories that load the full aggregate.
	Slots []Slot
}

// NewAccount validates and constructs an account with all slots free.
func NewAccount(id, service, label string, capacity int) (*Account, error) {
	if id == "" || service == "" || capacity <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	a := &Account{
		ID:        id,
		Service:   service,
		Label:     label,
		Capacity:  capacity,
		Active:    true,
		CreatedAt: time.Now(),
		Slots:     make([]Slot, 0, capacity),
	}
	for i := 0; i < capacity; i++ {
		a.Slots = append(a.Slots, Slot{AccountID: id, Index: i})
	}
	return a, nil
}

// FreeSlots counts unbound slots on a loaded aggregate.
func (a *Account) FreeSlots() int {
	n := 0
	for _, s := range a.Slots {
		if s.Free() {
			n++
		}
	}
	return n
}

// OccupiedSlots counts bound slots on a loaded aggregate.
func (a *Account) OccupiedSlots() int { return len(a.Slots) - a.FreeSlots() }

// Slot is one lease unit on an account. A slot is either free or bound to
// exactly one subscription; there is no sharing.
type Slot struct {
	AccountID      string
	Index          int
	SubscriptionID string // empty when free
	ProfileLabel   string
}

func (s *Slot) Free() bool { return s.SubscriptionID == "" }

func (s *Slot) Ref() SlotRef { return SlotRef{AccountID: s.AccountID, SlotIndex: s.Index} }

// SlotRef is the value identity of a slot, handed out by the allocator and
// carried on subscriptions.
type SlotRef struct {
	AccountID string
	SlotIndex int
}

func (r SlotRef) IsZero() bool { return r.AccountID == "" }
