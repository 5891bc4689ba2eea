// File: internal/usecase/notification_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"cuenty-subscription-engine/internal/domain"
	"cuenty-subscription-engine/internal/domain/model"
	"cuenty-subscription-engine/internal/domain/ports/adapter"
	"cuenty-subscription-engine/internal/domain/ports/repository"
	"cuenty-subscription-engine/internal/infra/metrics"
	"cuenty-subscription-engine/internal/infra/security"
)

// Compile-time check
var _ NotificationUseCase = (*notificationUC)(nil)

// NotificationUseCase delivers customer-facing messages at most once per
// (subscription, kind, cycle) key. Channels are tried in the configured
// order, so the messaging channel wins and email is the fallback.
type NotificationUseCase interface {
	// Send is idempotent on (subscriptionID, kind, cycle): a key that already
	// succeeded returns immediately without touching any channel.
	Send(ctx context.Context, subscriptionID string, kind model.NotificationKind, cycle model.CycleDate, payload model.NotificationPayload) error

	// SendReminder resolves the customer's contact info and composes the
	// renewal reminder for the given kind.
	SendReminder(ctx context.Context, sub *model.Subscription, plan *model.Plan, kind model.NotificationKind, cycle model.CycleDate) error
	// DeliverCredentials sends the decrypted account credentials and profile
	// label after a slot has been assigned.
	DeliverCredentials(ctx context.Context, sub *model.Subscription) error
	SendExpiryNotice(ctx context.Context, sub *model.Subscription, cycle model.CycleDate) error

	// ListAlerts returns terminally failed deliveries for operator review.
	ListAlerts(ctx context.Context) ([]*model.NotificationEvent, error)
}

type notificationUC struct {
	events    repository.NotificationEventRepository
	customers repository.CustomerRepository
	accounts  repository.AccountRepository
	tm        repository.TransactionManager
	channels  []adapter.NotificationChannel
	crypto    *security.EncryptionService

	maxAttempts    int
	backoffBase    time.Duration
	attemptTimeout time.Duration
	alertLimit     int
	log            *zerolog.Logger
}

func NewNotificationUseCase(
	events repository.NotificationEventRepository,
	customers repository.CustomerRepository,
	accounts repository.AccountRepository,
	tm repository.TransactionManager,
	channels []adapter.NotificationChannel,
	crypto *security.EncryptionService,
	maxAttempts int,
	backoffBase, attemptTimeout time.Duration,
	alertLimit int,
	logger *zerolog.Logger,
) *notificationUC {
	l := logger.With().Str("component", "NotificationUC").Logger()
	return &notificationUC{
		events:         events,
		customers:      customers,
		accounts:       accounts,
		tm:             tm,
		channels:       channels,
		crypto:         crypto,
		maxAttempts:    maxAttempts,
		backoffBase:    backoffBase,
		attemptTimeout: attemptTimeout,
		alertLimit:     alertLimit,
		log:            &l,
	}
}

func (uc *notificationUC) Send(ctx context.Context, subscriptionID string, kind model.NotificationKind, cycle model.CycleDate, payload model.NotificationPayload) error {
	if len(uc.channels) == 0 {
		return domain.ErrNoChannel
	}

	event, err := uc.claimEvent(ctx, subscriptionID, kind, cycle)
	if err != nil {
		return err
	}
	if event == nil {
		// key already delivered
		return nil
	}

	var lastErr error
	for try := 0; try < uc.maxAttempts; try++ {
		if try > 0 {
			metrics.IncNotificationRetry()
			if err := sleepCtx(ctx, uc.backoffBase<<(try-1)); err != nil {
				return err
			}
		}
		name, err := uc.deliverOnce(ctx, kind, payload)
		if err == nil {
			event.Status = model.NotificationEventSucceeded
			event.Channel = name
			event.Attempts = try + 1
			event.UpdatedAt = time.Now()
			metrics.IncNotification(string(kind), "succeeded")
			return uc.saveEvent(ctx, event)
		}
		lastErr = err
		uc.log.Warn().Err(err).
			Str("subscription_id", subscriptionID).
			Str("kind", string(kind)).
			Int("try", try+1).
			Msg("notification delivery attempt failed")
	}

	event.Status = model.NotificationEventFailed
	event.Attempts = uc.maxAttempts
	event.LastError = lastErr.Error()
	event.UpdatedAt = time.Now()
	metrics.IncNotification(string(kind), "failed")
	if err := uc.saveEvent(ctx, event); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", domain.ErrDeliveryFailed, lastErr)
}

// deliverOnce walks the channels in order with a bounded per-attempt timeout
// and returns the name of the channel that accepted the message.
func (uc *notificationUC) deliverOnce(ctx context.Context, kind model.NotificationKind, payload model.NotificationPayload) (string, error) {
	var lastErr error
	for _, ch := range uc.channels {
		attemptCtx, cancel := context.WithTimeout(ctx, uc.attemptTimeout)
		err := ch.Deliver(attemptCtx, kind, payload)
		cancel()
		if err == nil {
			return ch.Name(), nil
		}
		lastErr = fmt.Errorf("%s: %w", ch.Name(), err)
	}
	return "", lastErr
}

// claimEvent returns the event to deliver against, or nil when the key has
// already succeeded.
func (uc *notificationUC) claimEvent(ctx context.Context, subscriptionID string, kind model.NotificationKind, cycle model.CycleDate) (*model.NotificationEvent, error) {
	existing, err := uc.events.FindByKey(ctx, repository.NoTX, subscriptionID, kind, cycle)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		if existing.Status == model.NotificationEventSucceeded {
			return nil, nil
		}
		return existing, nil
	}
	event, err := model.NewNotificationEvent(ulid.Make().String(), subscriptionID, kind, cycle)
	if err != nil {
		return nil, err
	}
	err = uc.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return uc.events.Create(ctx, tx, event)
	})
	if errors.Is(err, domain.ErrAlreadyExists) {
		// racing sender created the key; defer to its record
		return uc.claimEvent(ctx, subscriptionID, kind, cycle)
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (uc *notificationUC) saveEvent(ctx context.Context, event *model.NotificationEvent) error {
	return uc.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return uc.events.Update(ctx, tx, event)
	})
}

func (uc *notificationUC) SendReminder(ctx context.Context, sub *model.Subscription, plan *model.Plan, kind model.NotificationKind, cycle model.CycleDate) error {
	payload, err := uc.basePayload(ctx, sub)
	if err != nil {
		return err
	}
	days := 0
	if sub.NextRenewalAt != nil {
		days = sub.DaysRemaining(time.Now())
	}
	switch kind {
	case model.NotificationReminderUrgent:
		payload.Subject = fmt.Sprintf("Your %s subscription renews today", plan.Name)
		payload.Body = fmt.Sprintf(
			"Your %s subscription is due for renewal today. Make sure your payment method is up to date to keep your access.",
			plan.Name,
		)
	case model.NotificationReminderSoon:
		payload.Subject = fmt.Sprintf("Your %s subscription renews in %d days", plan.Name, days)
		payload.Body = fmt.Sprintf(
			"Your %s subscription renews in %d days. No action is needed if your payment method is current.",
			plan.Name, days,
		)
	default:
		return domain.ErrInvalidArgument
	}
	return uc.Send(ctx, sub.ID, kind, cycle, payload)
}

func (uc *notificationUC) DeliverCredentials(ctx context.Context, sub *model.Subscription) error {
	if sub.Slot == nil {
		return domain.ErrInvalidState
	}
	payload, err := uc.basePayload(ctx, sub)
	if err != nil {
		return err
	}
	account, err := uc.accounts.FindByID(ctx, repository.NoTX, sub.Slot.AccountID)
	if err != nil {
		return err
	}
	if err := uc.crypto.OpenAccount(account); err != nil {
		return err
	}
	slot, err := uc.accounts.FindSlot(ctx, repository.NoTX, *sub.Slot)
	if err != nil {
		return err
	}
	payload.Subject = fmt.Sprintf("Your %s access is ready", account.Service)
	payload.Body = fmt.Sprintf(
		"Your %s access is ready.\nEmail: %s\nPassword: %s\nProfile: %s\nPlease use only your assigned profile.",
		account.Service, account.Email, account.Password, slot.ProfileLabel,
	)
	cycle := model.CycleDateOf(time.Now())
	return uc.Send(ctx, sub.ID, model.NotificationCredentialDelivery, cycle, payload)
}

func (uc *notificationUC) SendExpiryNotice(ctx context.Context, sub *model.Subscription, cycle model.CycleDate) error {
	payload, err := uc.basePayload(ctx, sub)
	if err != nil {
		return err
	}
	payload.Subject = "Your subscription has expired"
	payload.Body = "Your subscription has expired and your profile has been released. Renew any time to get a new assignment."
	return uc.Send(ctx, sub.ID, model.NotificationExpiryNotice, cycle, payload)
}

func (uc *notificationUC) basePayload(ctx context.Context, sub *model.Subscription) (model.NotificationPayload, error) {
	customer, err := uc.customers.FindByID(ctx, repository.NoTX, sub.CustomerID)
	if err != nil {
		return model.NotificationPayload{}, err
	}
	return model.NotificationPayload{
		RecipientHandle: customer.Handle,
		RecipientEmail:  customer.Email,
	}, nil
}

func (uc *notificationUC) ListAlerts(ctx context.Context) ([]*model.NotificationEvent, error) {
	failed, err := uc.events.ListFailed(ctx, repository.NoTX, uc.alertLimit)
	if err != nil {
		return nil, err
	}
	metrics.SetNotificationAlerts(len(failed))
	return failed, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
