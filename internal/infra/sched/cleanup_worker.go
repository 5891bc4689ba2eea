// File: internal/infra/sched/cleanup_worker.go
package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"cuenty-subscription-engine/internal/config"
	"cuenty-subscription-engine/internal/domain/ports/repository"
	"cuenty-subscription-engine/internal/infra/metrics"
)

// CleanupWorker purges records past the retention window: renewal attempts,
// notification events, and terminally finished subscriptions (soft delete).
type CleanupWorker struct {
	clock     config.Clock
	retention time.Duration

	subs     repository.SubscriptionRepository
	attempts repository.RenewalAttemptRepository
	events   repository.NotificationEventRepository
	tm       repository.TransactionManager
	log      *zerolog.Logger
}

func NewCleanupWorker(
	clock config.Clock,
	retention time.Duration,
	subs repository.SubscriptionRepository,
	attempts repository.RenewalAttemptRepository,
	events repository.NotificationEventRepository,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *CleanupWorker {
	l := logger.With().Str("component", "CleanupWorker").Logger()
	return &CleanupWorker{
		clock:     clock,
		retention: retention,
		subs:      subs,
		attempts:  attempts,
		events:    events,
		tm:        tm,
		log:       &l,
	}
}

func (w *CleanupWorker) Run(ctx context.Context) error {
	w.log.Info().Int("hour", w.clock.Hour).Int("minute", w.clock.Minute).Msg("Starting cleanup worker")
	for {
		next := w.clock.NextAfter(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			w.log.Info().Msg("Stopping cleanup worker")
			return ctx.Err()
		case <-timer.C:
			w.RunOnce(ctx, time.Now())
		}
	}
}

func (w *CleanupWorker) RunOnce(ctx context.Context, now time.Time) {
	cutoff := now.Add(-w.retention)
	started := time.Now()
	err := w.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		attempts, err := w.attempts.DeleteOlderThan(ctx, tx, cutoff)
		if err != nil {
			return err
		}
		events, err := w.events.DeleteOlderThan(ctx, tx, cutoff)
		if err != nil {
			return err
		}
		subs, err := w.subs.DeleteTerminatedBefore(ctx, tx, cutoff)
		if err != nil {
			return err
		}
		metrics.AddCleanupDeleted("renewal_attempt", attempts)
		metrics.AddCleanupDeleted("notification_event", events)
		metrics.AddCleanupDeleted("subscription", subs)
		w.log.Info().
			Int64("renewal_attempts", attempts).
			Int64("notification_events", events).
			Int64("subscriptions", subs).
			Time("cutoff", cutoff).
			Msg("cleanup pass finished")
		return nil
	})
	if err != nil {
		w.log.Error().Err(err).Msg("cleanup pass failed")
		metrics.IncSchedulerRun("cleanup", "failed")
	} else {
		metrics.IncSchedulerRun("cleanup", "completed")
	}
	metrics.ObserveSchedulerRun("cleanup", time.Since(started).Seconds())
}
