package model

import (
	"time"

	"cuenty-subscription-engine/internal/domain"
)

// ComboItem is one (plan, quantity) pair inside a combo.
type ComboItem struct {
	PlanID   string
	Quantity int
}

// Combo bundles several plans into one purchasable unit. When AutoCalculate
// is on, PriceTotal/CostTotal must equal the sum of the constituent
// plan.price*quantity / plan.cost*quantity; otherwise they are explicit
// operator overrides.
type Combo struct {
	ID            string
	Name          string
	Description   string
	AutoCalculate bool
	PriceTotal    int64
	CostTotal     int64
	Items         []ComboItem
	CreatedAt     time.Time
}

// NewCombo validates and constructs a combo. Totals are zero until
// recalculated (auto) or set explicitly by the caller.
func NewCombo(id, name string, autoCalculate bool, items []ComboItem) (*Combo, error) {
	if id == "" || name == "" || len(items) == 0 {
		return nil, domain.ErrInvalidArgument
	}
	for _, it := range items {
		if it.PlanID == "" || it.Quantity <= 0 {
			return nil, domain.ErrInvalidArgument
		}
	}
	return &Combo{
		ID:            id,
		Name:          name,
		AutoCalculate: autoCalculate,
		Items:         items,
		CreatedAt:     time.Now(),
	}, nil
}

// Recalculate sets PriceTotal/CostTotal from the given plans, which must
// cover every item's PlanID. No-op when AutoCalculate is off.
func (c *Combo) Recalculate(plans map[string]*Plan) error {
	if !c.AutoCalculate {
		return nil
	}
	var price, cost int64
	for _, it := range c.Items {
		p, ok := plans[it.PlanID]
		if !ok || p.IsZero() {
			return domain.ErrNotFound
		}
		price += p.Price * int64(it.Quantity)
		cost += p.Cost * int64(it.Quantity)
	}
	c.PriceTotal = price
	c.CostTotal = cost
	return nil
}
