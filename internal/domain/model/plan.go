package model

import (
	"time"

	"cuenty-subscription-engine/internal/domain"
)

// Plan is a purchasable offering for one service. Price and Cost are kept in
// minor currency units. A plan referenced by a live subscription is never
// mutated in place; edits apply to future purchases only.
type Plan struct {
	ID           string
	Service      string
	Name         string
	DurationDays int
	Price        int64
	Cost         int64
	CreatedAt    time.Time
}

func (p *Plan) IsZero() bool { return p == nil || p.ID == "" }

// Duration returns the renewal period as a time.Duration.
func (p *Plan) Duration() time.Duration {
	return time.Duration(p.DurationDays) * 24 * time.Hour
}

// NewPlan validates and constructs a plan.
func NewPlan(id, service, name string, durationDays int, price, cost int64) (*Plan, error) {
	if id == "" || service == "" || name == "" || durationDays <= 0 || price <= 0 || cost < 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &Plan{
		ID:           id,
		Service:      service,
		Name:         name,
		DurationDays: durationDays,
		Price:        price,
		Cost:         cost,
		CreatedAt:    time.Now(),
	}, nil
}
