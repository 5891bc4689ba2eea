// File: internal/infra/sched/renewal_worker.go
package sched

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"cuenty-subscription-engine/internal/config"
	"cuenty-subscription-engine/internal/domain"
	"cuenty-subscription-engine/internal/domain/model"
	"cuenty-subscription-engine/internal/domain/ports/repository"
	"cuenty-subscription-engine/internal/infra/logging"
	"cuenty-subscription-engine/internal/infra/metrics"
	rds "cuenty-subscription-engine/internal/infra/redis"
	"cuenty-subscription-engine/internal/usecase"
)

const renewalRunLockKey = "slot-engine:renewal-run"

// RenewalWorker drives the daily renewal pass at the configured wall-clock
// time. A pass scans every renewable subscription exactly once; the Redis
// lock keeps the pass single-flight across replicas and the in-process flag
// keeps a manually triggered pass from overlapping the scheduled one.
type RenewalWorker struct {
	clock        config.Clock
	gates        config.AutomationConfig
	reminderDays []int
	graceWindow  time.Duration
	lockTTL      time.Duration

	subUC   usecase.SubscriptionUseCase
	notifUC usecase.NotificationUseCase
	statsUC usecase.StatsUseCase
	plans   repository.PlanRepository
	locker  rds.Locker

	running int32
	log     *zerolog.Logger
}

func NewRenewalWorker(
	clock config.Clock,
	gates config.AutomationConfig,
	reminderDays []int,
	graceWindow, lockTTL time.Duration,
	subUC usecase.SubscriptionUseCase,
	notifUC usecase.NotificationUseCase,
	statsUC usecase.StatsUseCase,
	plans repository.PlanRepository,
	locker rds.Locker,
	logger *zerolog.Logger,
) *RenewalWorker {
	l := logger.With().Str("component", "RenewalWorker").Logger()
	return &RenewalWorker{
		clock:        clock,
		gates:        gates,
		reminderDays: reminderDays,
		graceWindow:  graceWindow,
		lockTTL:      lockTTL,
		subUC:        subUC,
		notifUC:      notifUC,
		statsUC:      statsUC,
		plans:        plans,
		locker:       locker,
		log:          &l,
	}
}

func (w *RenewalWorker) Run(ctx context.Context) error {
	w.log.Info().Int("hour", w.clock.Hour).Int("minute", w.clock.Minute).Msg("Starting renewal worker")
	for {
		next := w.clock.NextAfter(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			w.log.Info().Msg("Stopping renewal worker")
			return ctx.Err()
		case <-timer.C:
			w.RunOnce(ctx, time.Now())
		}
	}
}

// RunOnce executes one full pass. Also called by the admin trigger endpoint.
func (w *RenewalWorker) RunOnce(ctx context.Context, now time.Time) {
	if !atomic.CompareAndSwapInt32(&w.running, 0, 1) {
		w.log.Warn().Msg("renewal pass already running, skipping")
		metrics.IncSchedulerRun("renewal", "skipped_overlap")
		return
	}
	defer atomic.StoreInt32(&w.running, 0)

	token, err := w.locker.TryLock(ctx, renewalRunLockKey, w.lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockNotAcquired) {
			w.log.Warn().Msg("renewal pass held by another replica, skipping")
			metrics.IncSchedulerRun("renewal", "skipped_overlap")
			return
		}
		w.log.Error().Err(err).Msg("renewal run lock failed")
		metrics.IncSchedulerRun("renewal", "failed")
		return
	}
	defer func() {
		if err := w.locker.Unlock(ctx, renewalRunLockKey, token); err != nil {
			w.log.Error().Err(err).Msg("renewal run unlock failed")
		}
	}()

	ctx = logging.WithRunID(ctx, string(model.CycleDateOf(now)))
	log := logging.With(ctx, w.log)
	started := time.Now()
	if err := w.pass(ctx, now, log); err != nil {
		log.Error().Err(err).Msg("renewal pass failed")
		metrics.IncSchedulerRun("renewal", "failed")
	} else {
		metrics.IncSchedulerRun("renewal", "completed")
	}
	metrics.ObserveSchedulerRun("renewal", time.Since(started).Seconds())
}

func (w *RenewalWorker) pass(ctx context.Context, now time.Time, log *zerolog.Logger) error {
	subs, err := w.subUC.ListRenewable(ctx)
	if err != nil {
		return err
	}
	// The urgency gauges refresh on every pass whether or not any automation
	// flag is on; the read side never goes dark.
	if _, err := w.statsUC.UrgencyReport(ctx, now); err != nil {
		log.Error().Err(err).Msg("urgency report failed")
	}

	cycle := model.CycleDateOf(now)
	renewed, reminded := 0, 0
	for _, sub := range subs {
		if sub.NextRenewalAt == nil {
			continue
		}
		days := sub.DaysRemaining(now)

		if w.gates.Renewals && sub.AutoRenew && days <= 0 {
			res, err := w.subUC.Renew(ctx, sub.ID, cycle)
			if err != nil {
				log.Error().Err(err).Str("subscription_id", sub.ID).Msg("automated renewal failed")
				continue
			}
			if res.Replayed {
				continue
			}
			renewed++
			// A declined charge parks the subscription in grace; the
			// customer hears about it now, not at expiry.
			if res.Status == model.RenewalAttemptFailed && w.gates.Notifications {
				if err := w.remind(ctx, sub, 0, cycle); err != nil {
					log.Error().Err(err).Str("subscription_id", sub.ID).Msg("grace reminder dispatch failed")
				} else {
					reminded++
				}
			}
			continue
		}

		if w.gates.Notifications && w.isReminderDay(days) {
			if err := w.remind(ctx, sub, days, cycle); err != nil {
				log.Error().Err(err).Str("subscription_id", sub.ID).Msg("reminder dispatch failed")
			} else {
				reminded++
			}
		}
	}

	expiredNotices := w.lapsedGraceIDs(subs, now)
	expired, err := w.subUC.ExpireLapsed(ctx, now)
	if err != nil {
		return err
	}
	if w.gates.Notifications {
		for _, sub := range expiredNotices {
			if err := w.notifUC.SendExpiryNotice(ctx, sub, cycle); err != nil {
				log.Error().Err(err).Str("subscription_id", sub.ID).Msg("expiry notice failed")
			}
		}
	}

	log.Info().
		Int("scanned", len(subs)).
		Int("renewed", renewed).
		Int("reminded", reminded).
		Int("expired", expired).
		Msg("renewal pass finished")
	return nil
}

func (w *RenewalWorker) isReminderDay(days int) bool {
	for _, d := range w.reminderDays {
		if days == d {
			return true
		}
	}
	return false
}

func (w *RenewalWorker) remind(ctx context.Context, sub *model.Subscription, days int, cycle model.CycleDate) error {
	plan, err := w.plans.FindByID(ctx, repository.NoTX, sub.PlanID)
	if err != nil {
		return err
	}
	kind := model.NotificationReminderSoon
	if days <= 0 {
		kind = model.NotificationReminderUrgent
	}
	return w.notifUC.SendReminder(ctx, sub, plan, kind, cycle)
}

// lapsedGraceIDs snapshots the grace subscriptions about to be expired so the
// notices can go out after the transition commits.
func (w *RenewalWorker) lapsedGraceIDs(subs []*model.Subscription, now time.Time) []*model.Subscription {
	var out []*model.Subscription
	for _, sub := range subs {
		if sub.GraceElapsed(w.graceWindow, now) {
			out = append(out, sub)
		}
	}
	return out
}
