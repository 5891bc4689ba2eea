//go:build !integration

package model

import (
	"errors"
	"testing"

	"cuenty-subscription-engine/internal/domain"
)

func TestNewCombo(t *testing.T) {
	items := []ComboItem{{PlanID: "plan-1", Quantity: 1}}

	t.Run("should construct with zero totals", func(t *testing.T) {
		combo, err := NewCombo("combo-1", "Duo", true, items)
		if err != nil {
			t.Fatalf("NewCombo: %v", err)
		}
		if combo.PriceTotal != 0 || combo.CostTotal != 0 {
			t.Errorf("expected zero totals, got %d/%d", combo.PriceTotal, combo.CostTotal)
		}
	})

	t.Run("should reject invalid input", func(t *testing.T) {
		if _, err := NewCombo("", "Duo", true, items); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("empty id: expected ErrInvalidArgument, got: %v", err)
		}
		if _, err := NewCombo("combo-1", "", true, items); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("empty name: expected ErrInvalidArgument, got: %v", err)
		}
		if _, err := NewCombo("combo-1", "Duo", true, nil); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("no items: expected ErrInvalidArgument, got: %v", err)
		}
		bad := []ComboItem{{PlanID: "plan-1", Quantity: 0}}
		if _, err := NewCombo("combo-1", "Duo", true, bad); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("zero quantity: expected ErrInvalidArgument, got: %v", err)
		}
	})
}

func TestCombo_Recalculate(t *testing.T) {
	plans := map[string]*Plan{
		"plan-n": {ID: "plan-n", Service: "netflix", Name: "Netflix", DurationDays: 30, Price: 1500, Cost: 900},
		"plan-s": {ID: "plan-s", Service: "spotify", Name: "Spotify", DurationDays: 30, Price: 800, Cost: 500},
	}

	t.Run("should sum price and cost over quantities", func(t *testing.T) {
		combo, err := NewCombo("combo-1", "Duo", true, []ComboItem{
			{PlanID: "plan-n", Quantity: 1},
			{PlanID: "plan-s", Quantity: 3},
		})
		if err != nil {
			t.Fatalf("NewCombo: %v", err)
		}
		if err := combo.Recalculate(plans); err != nil {
			t.Fatalf("Recalculate: %v", err)
		}
		if combo.PriceTotal != 1500+3*800 {
			t.Errorf("expected price 3900, got %d", combo.PriceTotal)
		}
		if combo.CostTotal != 900+3*500 {
			t.Errorf("expected cost 2400, got %d", combo.CostTotal)
		}
	})

	t.Run("should fail when a plan is missing", func(t *testing.T) {
		combo, _ := NewCombo("combo-1", "Duo", true, []ComboItem{{PlanID: "ghost", Quantity: 1}})
		if err := combo.Recalculate(plans); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("should leave fixed totals alone", func(t *testing.T) {
		combo, _ := NewCombo("combo-1", "Promo", false, []ComboItem{{PlanID: "plan-n", Quantity: 1}})
		combo.PriceTotal = 999
		if err := combo.Recalculate(plans); err != nil {
			t.Fatalf("Recalculate: %v", err)
		}
		if combo.PriceTotal != 999 {
			t.Errorf("expected the fixed price untouched, got %d", combo.PriceTotal)
		}
	})
}
