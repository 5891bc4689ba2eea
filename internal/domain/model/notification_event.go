package model

import (
	"time"

	"cuenty-subscription-engine/internal/domain"
)

type NotificationKind string

const (
	NotificationReminderUrgent     NotificationKind = "reminder_urgent"
	NotificationReminderSoon       NotificationKind = "reminder_soon"
	NotificationCredentialDelivery NotificationKind = "credential_delivery"
	NotificationExpiryNotice       NotificationKind = "expiry_notice"
)

type NotificationEventStatus string

const (
	NotificationEventPending   NotificationEventStatus = "pending"
	NotificationEventSucceeded NotificationEventStatus = "succeeded"
	NotificationEventFailed    NotificationEventStatus = "failed"
)

// NotificationEvent guarantees at-most-one successful delivery per
// (SubscriptionID, Kind, CycleDate). A failed event that exhausted its
// retries stays failed and is surfaced to the admin API as an alert.
type NotificationEvent struct {
	ID             string // ULID, time-ordered
	SubscriptionID string
	Kind           NotificationKind
	CycleDate      CycleDate
	Status         NotificationEventStatus
	Attempts       int
	Channel        string // channel that confirmed delivery
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewNotificationEvent creates a pending event for one idempotency key.
func NewNotificationEvent(id, subscriptionID string, kind NotificationKind, cycle CycleDate) (*NotificationEvent, error) {
	if id == "" || subscriptionID == "" || kind == "" || cycle == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &NotificationEvent{
		ID:             id,
		SubscriptionID: subscriptionID,
		Kind:           kind,
		CycleDate:      cycle,
		Status:         NotificationEventPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// NotificationPayload is the channel-agnostic message content.
type NotificationPayload struct {
	RecipientHandle string // phone / chat id / email depending on channel
	RecipientEmail  string
	Subject         string
	Body            string
}
