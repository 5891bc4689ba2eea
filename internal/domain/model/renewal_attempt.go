package model

import (
	"time"

	"cuenty-subscription-engine/internal/domain"
)

type RenewalAttemptStatus string

const (
	RenewalAttemptScheduled RenewalAttemptStatus = "scheduled"
	RenewalAttemptSucceeded RenewalAttemptStatus = "succeeded"
	RenewalAttemptFailed    RenewalAttemptStatus = "failed"
	RenewalAttemptSkipped   RenewalAttemptStatus = "skipped"
)

// CycleDate identifies one renewal cycle as a calendar day. All attempts for
// the same subscription on the same day share one idempotency key.
type CycleDate string

// CycleDateOf truncates a timestamp to its calendar day in UTC.
func CycleDateOf(t time.Time) CycleDate {
	return CycleDate(t.UTC().Format("2006-01-02"))
}

// RenewalAttempt is the idempotency record for renewal processing. The
// unique key (SubscriptionID, CycleDate) guarantees that a scheduler run
// repeated on the same day replays the recorded result instead of charging
// the customer twice.
type RenewalAttempt struct {
	ID             string // ULID, time-ordered
	SubscriptionID string
	CycleDate      CycleDate
	Status         RenewalAttemptStatus
	RetryCount     int
	ChargeRef      string // provider reference on success
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewRenewalAttempt creates a scheduled attempt for one cycle.
func NewRenewalAttempt(id, subscriptionID string, cycle CycleDate) (*RenewalAttempt, error) {
	if id == "" || subscriptionID == "" || cycle == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &RenewalAttempt{
		ID:             id,
		SubscriptionID: subscriptionID,
		CycleDate:      cycle,
		Status:         RenewalAttemptScheduled,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Terminal reports whether the attempt has a final recorded outcome.
func (a *RenewalAttempt) Terminal() bool {
	return a.Status != RenewalAttemptScheduled
}

// RenewalResult is the replayable outcome handed back to callers of Renew.
type RenewalResult struct {
	SubscriptionID string
	CycleDate      CycleDate
	Status         RenewalAttemptStatus
	ChargeRef      string
	Replayed       bool // true when returning a previously recorded result
}
