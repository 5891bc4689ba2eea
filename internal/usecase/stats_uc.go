// File: internal/usecase/stats_uc.go
package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"cuenty-subscription-engine/internal/domain/model"
	"cuenty-subscription-engine/internal/domain/ports/repository"
	"cuenty-subscription-engine/internal/infra/metrics"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

// Urgency tiers, ordered most to least urgent. A subscription's tier is
// derived from whole days until its next renewal.
const (
	TierDue     = "due"     // due today or overdue
	TierOneDay  = "1d"      // renews tomorrow
	TierShort   = "2-3d"    // renews in 2 or 3 days
	TierWeek    = "4-7d"    // renews within the week
	TierLater   = "later"   // more than 7 days out
	TierNoCycle = "nocycle" // no renewal date (pending, paused)
)

// SubscriptionDigest is one row of the urgency listing.
type SubscriptionDigest struct {
	SubscriptionID string                   `json:"subscription_id"`
	CustomerID     string                   `json:"customer_id"`
	PlanID         string                   `json:"plan_id"`
	Status         model.SubscriptionStatus `json:"status"`
	NextRenewalAt  *time.Time               `json:"next_renewal_at,omitempty"`
	DaysRemaining  int                      `json:"days_remaining"`
	Tier           string                   `json:"tier"`
	AutoRenew      bool                     `json:"auto_renew"`
}

// UrgencyReport buckets every renewable subscription by time pressure.
type UrgencyReport struct {
	GeneratedAt time.Time                       `json:"generated_at"`
	Counts      map[string]int                  `json:"counts"`
	Tiers       map[string][]SubscriptionDigest `json:"tiers"`
}

// StatsUseCase computes the read-side views the admin API and the metrics
// endpoint serve. It never mutates state, so it stays available even when
// every automation flag is off.
type StatsUseCase interface {
	// UrgencyReport buckets active/grace subscriptions by days remaining
	// and refreshes the urgency gauges.
	UrgencyReport(ctx context.Context, now time.Time) (*UrgencyReport, error)
	// StatusCounts tallies subscriptions per lifecycle status and refreshes
	// the status gauges.
	StatusCounts(ctx context.Context) (map[model.SubscriptionStatus]int, error)
}

type statsUC struct {
	subs repository.SubscriptionRepository
	log  *zerolog.Logger
}

func NewStatsUseCase(subs repository.SubscriptionRepository, logger *zerolog.Logger) *statsUC {
	l := logger.With().Str("component", "StatsUC").Logger()
	return &statsUC{subs: subs, log: &l}
}

// TierOf maps days remaining to an urgency tier.
func TierOf(days int) string {
	switch {
	case days <= 0:
		return TierDue
	case days == 1:
		return TierOneDay
	case days <= 3:
		return TierShort
	case days <= 7:
		return TierWeek
	default:
		return TierLater
	}
}

func (uc *statsUC) UrgencyReport(ctx context.Context, now time.Time) (*UrgencyReport, error) {
	subs, err := uc.subs.ListByStatus(ctx, repository.NoTX,
		model.SubscriptionStatusActive,
		model.SubscriptionStatusGrace,
		model.SubscriptionStatusPendingRenewal,
	)
	if err != nil {
		return nil, err
	}
	report := &UrgencyReport{
		GeneratedAt: now,
		Counts:      map[string]int{TierDue: 0, TierOneDay: 0, TierShort: 0, TierWeek: 0, TierLater: 0},
		Tiers:       make(map[string][]SubscriptionDigest),
	}
	for _, sub := range subs {
		digest := SubscriptionDigest{
			SubscriptionID: sub.ID,
			CustomerID:     sub.CustomerID,
			PlanID:         sub.PlanID,
			Status:         sub.Status,
			NextRenewalAt:  sub.NextRenewalAt,
			AutoRenew:      sub.AutoRenew,
			Tier:           TierNoCycle,
		}
		if sub.NextRenewalAt != nil {
			digest.DaysRemaining = sub.DaysRemaining(now)
			digest.Tier = TierOf(digest.DaysRemaining)
		}
		report.Counts[digest.Tier]++
		report.Tiers[digest.Tier] = append(report.Tiers[digest.Tier], digest)
	}
	for _, tier := range []string{TierDue, TierOneDay, TierShort, TierWeek, TierLater} {
		metrics.SetUrgencyTier(tier, report.Counts[tier])
	}
	return report, nil
}

func (uc *statsUC) StatusCounts(ctx context.Context) (map[model.SubscriptionStatus]int, error) {
	all, err := uc.subs.ListByStatus(ctx, repository.NoTX,
		model.SubscriptionStatusPending,
		model.SubscriptionStatusActive,
		model.SubscriptionStatusPendingRenewal,
		model.SubscriptionStatusGrace,
		model.SubscriptionStatusExpired,
		model.SubscriptionStatusCancelled,
		model.SubscriptionStatusPaused,
	)
	if err != nil {
		return nil, err
	}
	counts := make(map[model.SubscriptionStatus]int)
	for _, sub := range all {
		counts[sub.Status]++
	}
	metrics.SetSubscriptionsTotal(counts)
	return counts, nil
}
