package model

import (
	"time"

	"cuenty-subscription-engine/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusPending        SubscriptionStatus = "pending"
	SubscriptionStatusActive         SubscriptionStatus = "active"
	SubscriptionStatusPendingRenewal SubscriptionStatus = "pending_renewal"
	SubscriptionStatusGrace          SubscriptionStatus = "grace"
	SubscriptionStatusExpired        SubscriptionStatus = "expired"
	SubscriptionStatusCancelled      SubscriptionStatus = "cancelled"
	SubscriptionStatusPaused         SubscriptionStatus = "paused"
)

// Terminal reports whether no further transitions are possible (cleanup aside).
func (s SubscriptionStatus) Terminal() bool {
	return s == SubscriptionStatusExpired || s == SubscriptionStatusCancelled
}

// transitions is the full state machine. A subscription may only move along
// one of these edges; everything else is ErrInvalidState.
// Renewals of an active subscription resolve in a single transition
// (active->active on success, active->grace on failure); the scheduled
// RenewalAttempt record is the in-flight marker. pending_renewal is only
// persisted while a manual in-grace renewal waits on its charge.
var transitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionStatusPending: {SubscriptionStatusActive, SubscriptionStatusCancelled},
	SubscriptionStatusActive: {
		SubscriptionStatusActive, // renewal succeeded, NextRenewalAt advanced
		SubscriptionStatusGrace,
		SubscriptionStatusCancelled,
		SubscriptionStatusPaused,
	},
	SubscriptionStatusPendingRenewal: {SubscriptionStatusActive, SubscriptionStatusGrace, SubscriptionStatusCancelled},
	SubscriptionStatusGrace: {
		SubscriptionStatusActive,
		SubscriptionStatusPendingRenewal,
		SubscriptionStatusExpired,
		SubscriptionStatusCancelled,
	},
	SubscriptionStatusPaused: {SubscriptionStatusActive, SubscriptionStatusCancelled},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to SubscriptionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Subscription is the lifecycle unit: one paying customer leasing one slot
// for one plan period at a time.
type Subscription struct {
	ID            string
	CustomerID    string
	PlanID        string
	Slot          *SlotRef // nil until allocated
	Status        SubscriptionStatus
	AutoRenew     bool
	StartAt       *time.Time // nil until activated
	NextRenewalAt *time.Time // nil until activated
	GraceSince    *time.Time // set when entering grace
	CancelledAt   *time.Time
	CancelReason  string
	CreatedAt     time.Time
	DeletedAt     *time.Time // soft delete, set by the cleanup job
}

// NewSubscription creates a pending subscription awaiting slot allocation
// and payment confirmation.
func NewSubscription(id, customerID, planID string, autoRenew bool) (*Subscription, error) {
	if id == "" || customerID == "" || planID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &Subscription{
		ID:         id,
		CustomerID: customerID,
		PlanID:     planID,
		Status:     SubscriptionStatusPending,
		AutoRenew:  autoRenew,
		CreatedAt:  time.Now(),
	}, nil
}

// Transition moves the subscription to the target state, rejecting illegal
// edges. Callers remain responsible for adjusting dates and slot bindings.
func (s *Subscription) Transition(to SubscriptionStatus) error {
	if !CanTransition(s.Status, to) {
		return domain.ErrInvalidState
	}
	s.Status = to
	return nil
}

// Activate binds the slot and starts the first cycle.
func (s *Subscription) Activate(ref SlotRef, plan *Plan, now time.Time) error {
	if plan.IsZero() || ref.IsZero() {
		return domain.ErrInvalidArgument
	}
	if err := s.Transition(SubscriptionStatusActive); err != nil {
		return err
	}
	next := now.Add(plan.Duration())
	s.Slot = &ref
	s.StartAt = &now
	s.NextRenewalAt = &next
	s.GraceSince = nil
	return nil
}

// AdvanceRenewal pushes NextRenewalAt one plan period forward after a
// successful charge. Overdue renewals advance from now, not from the missed
// date, so a customer is never billed for days of lost service.
func (s *Subscription) AdvanceRenewal(plan *Plan, now time.Time) error {
	if plan.IsZero() {
		return domain.ErrInvalidArgument
	}
	if err := s.Transition(SubscriptionStatusActive); err != nil {
		return err
	}
	base := now
	if s.NextRenewalAt != nil && s.NextRenewalAt.After(now) {
		base = *s.NextRenewalAt
	}
	next := base.Add(plan.Duration())
	s.NextRenewalAt = &next
	s.GraceSince = nil
	return nil
}

// EnterGrace marks a missed or failed renewal. The slot stays reserved until
// the grace window elapses.
func (s *Subscription) EnterGrace(now time.Time) error {
	if err := s.Transition(SubscriptionStatusGrace); err != nil {
		return err
	}
	s.GraceSince = &now
	return nil
}

// GraceElapsed reports whether the grace window has fully passed.
func (s *Subscription) GraceElapsed(window time.Duration, now time.Time) bool {
	return s.Status == SubscriptionStatusGrace &&
		s.GraceSince != nil &&
		now.Sub(*s.GraceSince) >= window
}

// Expire finishes a lapsed grace subscription. The caller releases the slot.
func (s *Subscription) Expire() error {
	if err := s.Transition(SubscriptionStatusExpired); err != nil {
		return err
	}
	s.Slot = nil
	return nil
}

// Cancel is legal from active, grace, pending_renewal, paused and pending.
// The slot is released immediately; cancellation is irreversible.
func (s *Subscription) Cancel(reason string, now time.Time) error {
	if err := s.Transition(SubscriptionStatusCancelled); err != nil {
		return err
	}
	s.Slot = nil
	s.CancelledAt = &now
	s.CancelReason = reason
	return nil
}

// DaysRemaining returns whole days until the next renewal rounded up, so a
// renewal due later today reads as 0 and one due tomorrow morning reads as 1.
// Negative when overdue. Used by the scheduler to bucket subscriptions by
// urgency.
func (s *Subscription) DaysRemaining(now time.Time) int {
	if s.NextRenewalAt == nil {
		return 0
	}
	until := s.NextRenewalAt.Sub(now)
	days := until / (24 * time.Hour)
	if until%(24*time.Hour) > 0 {
		days++
	}
	return int(days)
}
