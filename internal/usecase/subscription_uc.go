// File: internal/usecase/subscription_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"cuenty-subscription-engine/internal/domain"
	"cuenty-subscription-engine/internal/domain/model"
	"cuenty-subscription-engine/internal/domain/ports/adapter"
	"cuenty-subscription-engine/internal/domain/ports/repository"
	"cuenty-subscription-engine/internal/infra/metrics"
)

// Compile-time check
var _ SubscriptionUseCase = (*subscriptionUC)(nil)

// SubscriptionUseCase owns every lifecycle transition. All writes run under
// the per-subscription lock so a manual cancellation racing an automated
// renewal can never produce an inconsistent state.
type SubscriptionUseCase interface {
	// Create registers a pending subscription awaiting payment confirmation.
	Create(ctx context.Context, customerID, planID string, autoRenew bool) (*model.Subscription, error)
	// ConfirmPaid is invoked by the order subsystem once payment clears:
	// allocates a slot and activates the subscription. The returned
	// subscription carries the slot so the caller can deliver credentials.
	ConfirmPaid(ctx context.Context, subscriptionID, preferredAccountID string) (*model.Subscription, error)

	// Renew processes one renewal cycle, idempotent on (id, cycleDate): a
	// repeat call replays the recorded result instead of charging again.
	Renew(ctx context.Context, subscriptionID string, cycle model.CycleDate) (model.RenewalResult, error)
	// ForceRenewNow is the admin escape hatch: renew against today's cycle.
	ForceRenewNow(ctx context.Context, subscriptionID string) (model.RenewalResult, error)

	// Cancel releases the slot immediately and is irreversible.
	Cancel(ctx context.Context, subscriptionID, reason string) error
	Pause(ctx context.Context, subscriptionID string) error
	Resume(ctx context.Context, subscriptionID string) error
	ToggleAutoRenew(ctx context.Context, subscriptionID string, on bool) error

	// ExpireLapsed finishes every grace subscription whose window elapsed,
	// releasing slots back to the pool. Returns how many were expired.
	ExpireLapsed(ctx context.Context, now time.Time) (int, error)

	FindByID(ctx context.Context, subscriptionID string) (*model.Subscription, error)
	// ListRenewable returns subscriptions the scheduler scans: active and grace.
	ListRenewable(ctx context.Context) ([]*model.Subscription, error)
}

type subscriptionUC struct {
	subs      repository.SubscriptionRepository
	plans     repository.PlanRepository
	attempts  repository.RenewalAttemptRepository
	pool      *accountPoolUC
	allocator *allocatorUC
	charger   adapter.PaymentCharger
	tm        repository.TransactionManager

	graceWindow   time.Duration
	chargeTimeout time.Duration
	log           *zerolog.Logger
}

func NewSubscriptionUseCase(
	subs repository.SubscriptionRepository,
	plans repository.PlanRepository,
	attempts repository.RenewalAttemptRepository,
	pool *accountPoolUC,
	allocator *allocatorUC,
	charger adapter.PaymentCharger,
	tm repository.TransactionManager,
	graceWindow, chargeTimeout time.Duration,
	logger *zerolog.Logger,
) *subscriptionUC {
	l := logger.With().Str("component", "SubscriptionUC").Logger()
	return &subscriptionUC{
		subs:          subs,
		plans:         plans,
		attempts:      attempts,
		pool:          pool,
		allocator:     allocator,
		charger:       charger,
		tm:            tm,
		graceWindow:   graceWindow,
		chargeTimeout: chargeTimeout,
		log:           &l,
	}
}

func (uc *subscriptionUC) Create(ctx context.Context, customerID, planID string, autoRenew bool) (*model.Subscription, error) {
	if _, err := uc.plans.FindByID(ctx, repository.NoTX, planID); err != nil {
		return nil, err
	}
	sub, err := model.NewSubscription(uuid.NewString(), customerID, planID, autoRenew)
	if err != nil {
		return nil, err
	}
	if err := uc.subs.Save(ctx, repository.NoTX, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (uc *subscriptionUC) ConfirmPaid(ctx context.Context, subscriptionID, preferredAccountID string) (*model.Subscription, error) {
	var out *model.Subscription
	err := uc.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.subs.Lock(ctx, tx, subscriptionID); err != nil {
			return err
		}
		sub, err := uc.subs.FindByID(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if sub.Status != model.SubscriptionStatusPending {
			return domain.ErrInvalidState
		}
		plan, err := uc.plans.FindByID(ctx, tx, sub.PlanID)
		if err != nil {
			return err
		}
		ref, err := uc.allocateTx(ctx, tx, plan, preferredAccountID, sub.ID)
		if err != nil {
			return err
		}
		if err := sub.Activate(ref, plan, time.Now()); err != nil {
			return err
		}
		if err := uc.subs.Save(ctx, tx, sub); err != nil {
			return err
		}
		out = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (uc *subscriptionUC) allocateTx(ctx context.Context, tx repository.Tx, plan *model.Plan, preferredAccountID, subscriptionID string) (model.SlotRef, error) {
	if preferredAccountID != "" {
		ref, err := uc.pool.reserveSlotTx(ctx, tx, preferredAccountID, subscriptionID)
		if err == nil {
			return ref, nil
		}
		if !errors.Is(err, domain.ErrNoCapacity) {
			return model.SlotRef{}, err
		}
	}
	return uc.allocator.placeTx(ctx, tx, plan.Service, subscriptionID)
}

// Renew runs in three phases so no lock is ever held across the charge call:
//  1. claim the (id, cycle) idempotency key, replaying any recorded result;
//  2. charge through the payment port with a bounded timeout, lock-free;
//  3. commit the state transition and the attempt outcome in one transaction.
//
// A response arriving after the attempt already holds a terminal status is
// discarded by the idempotency key, so a timed-out charge can never resurrect
// a subscription behind a later attempt's back.
func (uc *subscriptionUC) Renew(ctx context.Context, subscriptionID string, cycle model.CycleDate) (model.RenewalResult, error) {
	// Phase 1: claim the cycle.
	attempt, replay, err := uc.claimCycle(ctx, subscriptionID, cycle)
	if err != nil {
		return model.RenewalResult{}, err
	}
	if replay != nil {
		metrics.IncRenewal("replayed")
		return *replay, nil
	}

	sub, err := uc.subs.FindByID(ctx, repository.NoTX, subscriptionID)
	if err != nil {
		return model.RenewalResult{}, err
	}
	plan, err := uc.plans.FindByID(ctx, repository.NoTX, sub.PlanID)
	if err != nil {
		return model.RenewalResult{}, err
	}

	switch sub.Status {
	case model.SubscriptionStatusActive, model.SubscriptionStatusGrace, model.SubscriptionStatusPendingRenewal:
		// renewable
	default:
		return uc.recordSkip(ctx, sub, attempt, "subscription not renewable in state "+string(sub.Status))
	}

	// A manual in-grace renewal is visible as pending_renewal while the
	// charge is in flight; automated renewals of active subscriptions
	// resolve in a single observable transition instead.
	if sub.Status == model.SubscriptionStatusGrace {
		if err := uc.withSubTx(ctx, sub.ID, func(ctx context.Context, tx repository.Tx, cur *model.Subscription) error {
			if cur.Status != model.SubscriptionStatusGrace {
				return nil
			}
			if err := cur.Transition(model.SubscriptionStatusPendingRenewal); err != nil {
				return err
			}
			return uc.subs.Save(ctx, tx, cur)
		}); err != nil {
			return model.RenewalResult{}, err
		}
	}

	// Keep the slot unless the account was deactivated. A move is only a
	// reservation at this point; the subscription stays on its old slot
	// until the outcome commits.
	newRef, err := uc.allocator.ReassignForRenewal(ctx, sub, plan)
	if err != nil {
		if errors.Is(err, domain.ErrExhausted) {
			return uc.recordFailure(ctx, sub, attempt, "no capacity to reassign slot")
		}
		return model.RenewalResult{}, err
	}
	moved := sub.Slot != nil && newRef != *sub.Slot

	// Phase 2: charge, lock-free, bounded.
	chargeCtx, cancel := context.WithTimeout(ctx, uc.chargeTimeout)
	ref, chargeErr := uc.charger.Charge(chargeCtx, sub.CustomerID, sub.ID, plan.Price)
	cancel()

	// Phase 3: commit outcome.
	if chargeErr != nil {
		uc.log.Warn().Err(chargeErr).Str("subscription_id", sub.ID).Str("cycle", string(cycle)).Msg("renewal charge failed")
		if moved {
			if rerr := uc.pool.ReleaseSlot(ctx, newRef, sub.ID); rerr != nil {
				uc.log.Error().Err(rerr).Str("subscription_id", sub.ID).Msg("slot reservation rollback failed")
			}
		}
		return uc.recordFailure(ctx, sub, attempt, chargeErr.Error())
	}
	return uc.recordSuccess(ctx, sub, plan, attempt, ref, newRef, moved)
}

// claimCycle inserts the scheduled attempt or replays an existing record.
func (uc *subscriptionUC) claimCycle(ctx context.Context, subscriptionID string, cycle model.CycleDate) (*model.RenewalAttempt, *model.RenewalResult, error) {
	attempt, err := model.NewRenewalAttempt(ulid.Make().String(), subscriptionID, cycle)
	if err != nil {
		return nil, nil, err
	}
	err = uc.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return uc.attempts.Create(ctx, tx, attempt)
	})
	if err == nil {
		return attempt, nil, nil
	}
	if !errors.Is(err, domain.ErrAlreadyExists) {
		return nil, nil, err
	}
	prior, err := uc.attempts.FindByCycle(ctx, repository.NoTX, subscriptionID, cycle)
	if err != nil {
		return nil, nil, err
	}
	res := &model.RenewalResult{
		SubscriptionID: subscriptionID,
		CycleDate:      cycle,
		Status:         prior.Status,
		ChargeRef:      prior.ChargeRef,
		Replayed:       true,
	}
	return nil, res, nil
}

func (uc *subscriptionUC) recordSuccess(ctx context.Context, sub *model.Subscription, plan *model.Plan, attempt *model.RenewalAttempt, chargeRef string, slot model.SlotRef, moved bool) (model.RenewalResult, error) {
	err := uc.withSubTx(ctx, sub.ID, func(ctx context.Context, tx repository.Tx, cur *model.Subscription) error {
		if cur.Status == model.SubscriptionStatusCancelled {
			// Lost the race against an explicit cancellation. Record the
			// outcome without resurrecting the subscription; the
			// cancellation already freed the old slot, so only the fresh
			// reservation needs rolling back.
			uc.log.Warn().Str("subscription_id", cur.ID).Msg("charge succeeded but subscription was cancelled concurrently")
			if moved {
				if err := uc.pool.releaseSlotTx(ctx, tx, slot, cur.ID); err != nil {
					return err
				}
			}
			attempt.Status = model.RenewalAttemptSkipped
			attempt.LastError = "cancelled during renewal"
			attempt.UpdatedAt = time.Now()
			return uc.attempts.Update(ctx, tx, attempt)
		}
		if err := cur.AdvanceRenewal(plan, time.Now()); err != nil {
			return err
		}
		old := cur.Slot
		if !slot.IsZero() {
			cur.Slot = &slot
		}
		if err := uc.subs.Save(ctx, tx, cur); err != nil {
			return err
		}
		if moved && old != nil {
			if err := uc.pool.releaseSlotTx(ctx, tx, *old, cur.ID); err != nil {
				return err
			}
		}
		attempt.Status = model.RenewalAttemptSucceeded
		attempt.ChargeRef = chargeRef
		attempt.UpdatedAt = time.Now()
		return uc.attempts.Update(ctx, tx, attempt)
	})
	if err != nil {
		return model.RenewalResult{}, err
	}
	metrics.IncRenewal(string(attempt.Status))
	return model.RenewalResult{
		SubscriptionID: sub.ID,
		CycleDate:      attempt.CycleDate,
		Status:         attempt.Status,
		ChargeRef:      attempt.ChargeRef,
	}, nil
}

func (uc *subscriptionUC) recordFailure(ctx context.Context, sub *model.Subscription, attempt *model.RenewalAttempt, reason string) (model.RenewalResult, error) {
	err := uc.withSubTx(ctx, sub.ID, func(ctx context.Context, tx repository.Tx, cur *model.Subscription) error {
		switch cur.Status {
		case model.SubscriptionStatusActive, model.SubscriptionStatusPendingRenewal:
			if err := cur.EnterGrace(time.Now()); err != nil {
				return err
			}
			if err := uc.subs.Save(ctx, tx, cur); err != nil {
				return err
			}
		case model.SubscriptionStatusGrace:
			// already in grace, stays there
		default:
			// cancelled/expired in the meantime; just record the attempt
		}
		attempt.Status = model.RenewalAttemptFailed
		attempt.RetryCount++
		attempt.LastError = reason
		attempt.UpdatedAt = time.Now()
		return uc.attempts.Update(ctx, tx, attempt)
	})
	if err != nil {
		return model.RenewalResult{}, err
	}
	metrics.IncRenewal("failed")
	return model.RenewalResult{
		SubscriptionID: sub.ID,
		CycleDate:      attempt.CycleDate,
		Status:         model.RenewalAttemptFailed,
	}, nil
}

func (uc *subscriptionUC) recordSkip(ctx context.Context, sub *model.Subscription, attempt *model.RenewalAttempt, reason string) (model.RenewalResult, error) {
	attempt.Status = model.RenewalAttemptSkipped
	attempt.LastError = reason
	attempt.UpdatedAt = time.Now()
	err := uc.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return uc.attempts.Update(ctx, tx, attempt)
	})
	if err != nil {
		return model.RenewalResult{}, err
	}
	metrics.IncRenewal("skipped")
	return model.RenewalResult{
		SubscriptionID: sub.ID,
		CycleDate:      attempt.CycleDate,
		Status:         model.RenewalAttemptSkipped,
	}, nil
}

func (uc *subscriptionUC) ForceRenewNow(ctx context.Context, subscriptionID string) (model.RenewalResult, error) {
	return uc.Renew(ctx, subscriptionID, model.CycleDateOf(time.Now()))
}

func (uc *subscriptionUC) Cancel(ctx context.Context, subscriptionID, reason string) error {
	return uc.withSubTx(ctx, subscriptionID, func(ctx context.Context, tx repository.Tx, sub *model.Subscription) error {
		old := sub.Slot
		if err := sub.Cancel(reason, time.Now()); err != nil {
			return err
		}
		if err := uc.subs.Save(ctx, tx, sub); err != nil {
			return err
		}
		if old != nil {
			return uc.pool.releaseSlotTx(ctx, tx, *old, sub.ID)
		}
		return nil
	})
}

func (uc *subscriptionUC) Pause(ctx context.Context, subscriptionID string) error {
	return uc.withSubTx(ctx, subscriptionID, func(ctx context.Context, tx repository.Tx, sub *model.Subscription) error {
		if err := sub.Transition(model.SubscriptionStatusPaused); err != nil {
			return err
		}
		return uc.subs.Save(ctx, tx, sub)
	})
}

func (uc *subscriptionUC) Resume(ctx context.Context, subscriptionID string) error {
	return uc.withSubTx(ctx, subscriptionID, func(ctx context.Context, tx repository.Tx, sub *model.Subscription) error {
		if sub.Status != model.SubscriptionStatusPaused {
			return domain.ErrInvalidState
		}
		if err := sub.Transition(model.SubscriptionStatusActive); err != nil {
			return err
		}
		return uc.subs.Save(ctx, tx, sub)
	})
}

func (uc *subscriptionUC) ToggleAutoRenew(ctx context.Context, subscriptionID string, on bool) error {
	return uc.withSubTx(ctx, subscriptionID, func(ctx context.Context, tx repository.Tx, sub *model.Subscription) error {
		if sub.Status.Terminal() {
			return domain.ErrInvalidState
		}
		sub.AutoRenew = on
		return uc.subs.Save(ctx, tx, sub)
	})
}

func (uc *subscriptionUC) ExpireLapsed(ctx context.Context, now time.Time) (int, error) {
	lapsed, err := uc.subs.ListByStatus(ctx, repository.NoTX, model.SubscriptionStatusGrace)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, candidate := range lapsed {
		if !candidate.GraceElapsed(uc.graceWindow, now) {
			continue
		}
		err := uc.withSubTx(ctx, candidate.ID, func(ctx context.Context, tx repository.Tx, sub *model.Subscription) error {
			// re-check under the lock; a manual renewal may have landed
			if !sub.GraceElapsed(uc.graceWindow, now) {
				return nil
			}
			old := sub.Slot
			if err := sub.Expire(); err != nil {
				return err
			}
			if err := uc.subs.Save(ctx, tx, sub); err != nil {
				return err
			}
			expired++
			if old != nil {
				return uc.pool.releaseSlotTx(ctx, tx, *old, sub.ID)
			}
			return nil
		})
		if err != nil {
			uc.log.Error().Err(err).Str("subscription_id", candidate.ID).Msg("expire lapsed grace subscription failed")
		}
	}
	if expired > 0 {
		metrics.IncSubscriptionsExpired(expired)
	}
	return expired, nil
}

func (uc *subscriptionUC) FindByID(ctx context.Context, subscriptionID string) (*model.Subscription, error) {
	return uc.subs.FindByID(ctx, repository.NoTX, subscriptionID)
}

func (uc *subscriptionUC) ListRenewable(ctx context.Context) ([]*model.Subscription, error) {
	return uc.subs.ListByStatus(ctx, repository.NoTX,
		model.SubscriptionStatusActive,
		model.SubscriptionStatusGrace,
	)
}

// withSubTx runs fn with the subscription loaded under its lock.
func (uc *subscriptionUC) withSubTx(ctx context.Context, subscriptionID string, fn func(ctx context.Context, tx repository.Tx, sub *model.Subscription) error) error {
	return uc.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.subs.Lock(ctx, tx, subscriptionID); err != nil {
			return err
		}
		sub, err := uc.subs.FindByID(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		return fn(ctx, tx, sub)
	})
}
