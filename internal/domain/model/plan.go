package model

import (
	"fmt"

	"storefront-checkout/internal/domain"

	"github.com/shopspring/decimal"
)

// Plan is a purchasable subscription plan after boundary normalization.
// ID is the canonical key used everywhere inside the core.
type Plan struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	Price           decimal.Decimal `json:"price"`
	Duration        int             `json:"duration"`
	Features        []string        `json:"features"`
	ProviderPlanRef string          `json:"providerPlanRef,omitempty"`
}

func (p *Plan) IsZero() bool { return p == nil || p.ID == "" }

// IsSubscription reports whether the plan is billed through a provider plan.
func (p *Plan) IsSubscription() bool { return p != nil && p.ProviderPlanRef != "" }

// Validate checks the invariants every plan inside the core satisfies.
func (p *Plan) Validate() error {
	if p.IsZero() {
		return fmt.Errorf("%w: empty id", domain.ErrInvalidPlan)
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("%w: negative price %s", domain.ErrInvalidPlan, p.Price)
	}
	return nil
}

// NewPlan validates and constructs a plan.
func NewPlan(id, name string, price decimal.Decimal) (*Plan, error) {
	p := &Plan{ID: id, Name: name, Price: price, Duration: 1, Features: []string{}}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
