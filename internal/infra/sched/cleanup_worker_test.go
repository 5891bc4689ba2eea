//go:build !integration

package sched

import (
	"context"
	"testing"
	"time"

	"cuenty-subscription-engine/internal/config"
	"cuenty-subscription-engine/internal/domain"
	"cuenty-subscription-engine/internal/domain/model"
	"cuenty-subscription-engine/internal/domain/ports/repository"
)

type passTxManager struct{}

func (passTxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, repository.NoTX)
}

type recordingCleanupRepo struct {
	cutoffs []time.Time
	n       int64
	err     error
}

func (r *recordingCleanupRepo) deleteOlderThan(cutoff time.Time) (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.cutoffs = append(r.cutoffs, cutoff)
	return r.n, nil
}

type stubAttemptRepo struct{ recordingCleanupRepo }

var _ repository.RenewalAttemptRepository = (*stubAttemptRepo)(nil)

func (s *stubAttemptRepo) Create(ctx context.Context, tx repository.Tx, attempt *model.RenewalAttempt) error {
	return nil
}

func (s *stubAttemptRepo) Update(ctx context.Context, tx repository.Tx, attempt *model.RenewalAttempt) error {
	return nil
}

func (s *stubAttemptRepo) FindByCycle(ctx context.Context, tx repository.Tx, subscriptionID string, cycle model.CycleDate) (*model.RenewalAttempt, error) {
	return nil, domain.ErrNotFound
}

func (s *stubAttemptRepo) DeleteOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time) (int64, error) {
	return s.deleteOlderThan(cutoff)
}

type stubEventRepo struct{ recordingCleanupRepo }

var _ repository.NotificationEventRepository = (*stubEventRepo)(nil)

func (s *stubEventRepo) Create(ctx context.Context, tx repository.Tx, event *model.NotificationEvent) error {
	return nil
}

func (s *stubEventRepo) Update(ctx context.Context, tx repository.Tx, event *model.NotificationEvent) error {
	return nil
}

func (s *stubEventRepo) FindByKey(ctx context.Context, tx repository.Tx, subscriptionID string, kind model.NotificationKind, cycle model.CycleDate) (*model.NotificationEvent, error) {
	return nil, domain.ErrNotFound
}

func (s *stubEventRepo) ListFailed(ctx context.Context, tx repository.Tx, limit int) ([]*model.NotificationEvent, error) {
	return nil, nil
}

func (s *stubEventRepo) DeleteOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time) (int64, error) {
	return s.deleteOlderThan(cutoff)
}

type stubSubRepo struct{ recordingCleanupRepo }

var _ repository.SubscriptionRepository = (*stubSubRepo)(nil)

func (s *stubSubRepo) Save(ctx context.Context, tx repository.Tx, sub *model.Subscription) error {
	return nil
}

func (s *stubSubRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	return nil, domain.ErrNotFound
}

func (s *stubSubRepo) ListByStatus(ctx context.Context, tx repository.Tx, statuses ...model.SubscriptionStatus) ([]*model.Subscription, error) {
	return nil, nil
}

func (s *stubSubRepo) ListByCustomer(ctx context.Context, tx repository.Tx, customerID string) ([]*model.Subscription, error) {
	return nil, nil
}

func (s *stubSubRepo) Lock(ctx context.Context, tx repository.Tx, subscriptionID string) error {
	return nil
}

func (s *stubSubRepo) DeleteTerminatedBefore(ctx context.Context, tx repository.Tx, cutoff time.Time) (int64, error) {
	return s.deleteOlderThan(cutoff)
}

func TestCleanupWorker_RunOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("should purge every record type with the retention cutoff", func(t *testing.T) {
		subs := &stubSubRepo{recordingCleanupRepo{n: 2}}
		attempts := &stubAttemptRepo{recordingCleanupRepo{n: 5}}
		events := &stubEventRepo{recordingCleanupRepo{n: 3}}
		w := NewCleanupWorker(config.Clock{Hour: 2}, 90*24*time.Hour, subs, attempts, events, passTxManager{}, newTestLogger())

		now := time.Now()
		w.RunOnce(ctx, now)

		want := now.Add(-90 * 24 * time.Hour)
		for name, repo := range map[string]*recordingCleanupRepo{
			"subscriptions": &subs.recordingCleanupRepo,
			"attempts":      &attempts.recordingCleanupRepo,
			"events":        &events.recordingCleanupRepo,
		} {
			if len(repo.cutoffs) != 1 {
				t.Errorf("%s: expected one delete call, got %d", name, len(repo.cutoffs))
				continue
			}
			if !repo.cutoffs[0].Equal(want) {
				t.Errorf("%s: expected cutoff %v, got %v", name, want, repo.cutoffs[0])
			}
		}
	})

	t.Run("should stop the pass on the first failure", func(t *testing.T) {
		subs := &stubSubRepo{}
		attempts := &stubAttemptRepo{recordingCleanupRepo{err: domain.ErrOperationFailed}}
		events := &stubEventRepo{}
		w := NewCleanupWorker(config.Clock{Hour: 2}, 90*24*time.Hour, subs, attempts, events, passTxManager{}, newTestLogger())

		w.RunOnce(ctx, time.Now())

		if len(events.cutoffs) != 0 || len(subs.cutoffs) != 0 {
			t.Error("expected no later deletes after the attempt purge failed")
		}
	})
}
