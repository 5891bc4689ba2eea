// File: internal/usecase/catalog_uc.go
package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"cuenty-subscription-engine/internal/domain"
	"cuenty-subscription-engine/internal/domain/model"
	"cuenty-subscription-engine/internal/domain/ports/repository"
)

// Compile-time check
var _ CatalogUseCase = (*catalogUC)(nil)

// ComboLine is one plan's contribution to a combo price breakdown.
type ComboLine struct {
	PlanID    string `json:"plan_id"`
	PlanName  string `json:"plan_name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	UnitCost  int64  `json:"unit_cost"`
	LinePrice int64  `json:"line_price"`
	LineCost  int64  `json:"line_cost"`
}

// ComboPricing is the full breakdown served by the admin API.
type ComboPricing struct {
	ComboID    string      `json:"combo_id"`
	Name       string      `json:"name"`
	Lines      []ComboLine `json:"lines"`
	PriceTotal int64       `json:"price_total"`
	CostTotal  int64       `json:"cost_total"`
	Margin     int64       `json:"margin"`
}

// CatalogUseCase manages plans and combos. Plan edits never touch live
// subscriptions; a subscription's price and duration are fixed at activation.
type CatalogUseCase interface {
	CreatePlan(ctx context.Context, service, name string, durationDays int, price, cost int64) (*model.Plan, error)
	GetPlan(ctx context.Context, planID string) (*model.Plan, error)
	ListPlans(ctx context.Context) ([]*model.Plan, error)
	DeletePlan(ctx context.Context, planID string) error

	CreateCombo(ctx context.Context, name, description string, autoCalculate bool, priceTotal, costTotal int64, items []model.ComboItem) (*model.Combo, error)
	ListCombos(ctx context.Context) ([]*model.Combo, error)
	DeleteCombo(ctx context.Context, comboID string) error
	// ComboPricing expands a combo into per-plan lines with price and cost
	// totals. Auto-calculated combos are recomputed from current plan prices.
	ComboPricing(ctx context.Context, comboID string) (*ComboPricing, error)
}

type catalogUC struct {
	plans  repository.PlanRepository
	combos repository.ComboRepository
	tm     repository.TransactionManager
	log    *zerolog.Logger
}

func NewCatalogUseCase(plans repository.PlanRepository, combos repository.ComboRepository, tm repository.TransactionManager, logger *zerolog.Logger) *catalogUC {
	l := logger.With().Str("component", "CatalogUC").Logger()
	return &catalogUC{plans: plans, combos: combos, tm: tm, log: &l}
}

func (uc *catalogUC) CreatePlan(ctx context.Context, service, name string, durationDays int, price, cost int64) (*model.Plan, error) {
	plan, err := model.NewPlan(uuid.NewString(), service, name, durationDays, price, cost)
	if err != nil {
		return nil, err
	}
	err = uc.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return uc.plans.Save(ctx, tx, plan)
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (uc *catalogUC) GetPlan(ctx context.Context, planID string) (*model.Plan, error) {
	return uc.plans.FindByID(ctx, repository.NoTX, planID)
}

func (uc *catalogUC) ListPlans(ctx context.Context) ([]*model.Plan, error) {
	return uc.plans.ListAll(ctx, repository.NoTX)
}

func (uc *catalogUC) DeletePlan(ctx context.Context, planID string) error {
	return uc.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return uc.plans.Delete(ctx, tx, planID)
	})
}

func (uc *catalogUC) CreateCombo(ctx context.Context, name, description string, autoCalculate bool, priceTotal, costTotal int64, items []model.ComboItem) (*model.Combo, error) {
	combo, err := model.NewCombo(uuid.NewString(), name, autoCalculate, items)
	if err != nil {
		return nil, err
	}
	combo.Description = description
	if !combo.AutoCalculate {
		combo.PriceTotal = priceTotal
		combo.CostTotal = costTotal
	}
	err = uc.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if combo.AutoCalculate {
			plans, err := uc.planIndex(ctx, tx)
			if err != nil {
				return err
			}
			if err := combo.Recalculate(plans); err != nil {
				return err
			}
		}
		return uc.combos.Save(ctx, tx, combo)
	})
	if err != nil {
		return nil, err
	}
	return combo, nil
}

func (uc *catalogUC) ListCombos(ctx context.Context) ([]*model.Combo, error) {
	return uc.combos.ListAll(ctx, repository.NoTX)
}

func (uc *catalogUC) DeleteCombo(ctx context.Context, comboID string) error {
	return uc.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return uc.combos.Delete(ctx, tx, comboID)
	})
}

func (uc *catalogUC) ComboPricing(ctx context.Context, comboID string) (*ComboPricing, error) {
	combo, err := uc.combos.FindByID(ctx, repository.NoTX, comboID)
	if err != nil {
		return nil, err
	}
	index, err := uc.planIndex(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	pricing := &ComboPricing{
		ComboID: combo.ID,
		Name:    combo.Name,
		Lines:   make([]ComboLine, 0, len(combo.Items)),
	}
	for _, item := range combo.Items {
		plan, ok := index[item.PlanID]
		if !ok {
			return nil, domain.ErrNotFound
		}
		line := ComboLine{
			PlanID:    plan.ID,
			PlanName:  plan.Name,
			Quantity:  item.Quantity,
			UnitPrice: plan.Price,
			UnitCost:  plan.Cost,
			LinePrice: plan.Price * int64(item.Quantity),
			LineCost:  plan.Cost * int64(item.Quantity),
		}
		pricing.Lines = append(pricing.Lines, line)
		pricing.PriceTotal += line.LinePrice
		pricing.CostTotal += line.LineCost
	}
	if !combo.AutoCalculate {
		// fixed totals win over the computed sums
		pricing.PriceTotal = combo.PriceTotal
		pricing.CostTotal = combo.CostTotal
	}
	pricing.Margin = pricing.PriceTotal - pricing.CostTotal
	return pricing, nil
}

func (uc *catalogUC) planIndex(ctx context.Context, tx repository.Tx) (map[string]*model.Plan, error) {
	all, err := uc.plans.ListAll(ctx, tx)
	if err != nil {
		return nil, err
	}
	index := make(map[string]*model.Plan, len(all))
	for _, p := range all {
		index[p.ID] = p
	}
	return index, nil
}
