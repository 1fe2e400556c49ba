package model

import (
	"fmt"
	"time"

	"storefront-checkout/internal/domain"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

var hundred = decimal.NewFromInt(100)

// DiscountCode mirrors what the backend returns from validate-discount.
// Expiry, usage caps and plan applicability are enforced by the backend.
type DiscountCode struct {
	Code       string          `json:"code"`
	Type       DiscountType    `json:"type"`
	Value      decimal.Decimal `json:"value"`
	PlanIDs    []string        `json:"applicablePlans,omitempty"`
	ExpiresAt  *time.Time      `json:"expiryDate,omitempty"`
	UsageLimit *int            `json:"maxUses,omitempty"`
}

func (d DiscountCode) Validate() error {
	switch d.Type {
	case DiscountPercentage:
		if d.Value.IsNegative() || d.Value.GreaterThan(hundred) {
			return fmt.Errorf("%w: percentage %s outside [0,100]", domain.ErrInvalidDiscount, d.Value)
		}
	case DiscountFixed:
		if d.Value.IsNegative() {
			return fmt.Errorf("%w: negative amount %s", domain.ErrInvalidDiscount, d.Value)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", domain.ErrInvalidDiscount, d.Type)
	}
	return nil
}

// AppliesTo reports whether the code is restricted to other plans.
// An empty PlanIDs list applies to every plan.
func (d DiscountCode) AppliesTo(planID string) bool {
	if len(d.PlanIDs) == 0 {
		return true
	}
	for _, id := range d.PlanIDs {
		if id == planID {
			return true
		}
	}
	return false
}

// Apply computes the discounted price; the result is never below zero.
func (d DiscountCode) Apply(price decimal.Decimal) AppliedDiscount {
	var final decimal.Decimal
	switch d.Type {
	case DiscountPercentage:
		final = price.Sub(price.Mul(d.Value).Div(hundred))
	default:
		final = price.Sub(d.Value)
	}
	final = decimal.Max(decimal.Zero, final)
	return AppliedDiscount{
		Code:          d.Code,
		Type:          d.Type,
		Value:         d.Value,
		OriginalPrice: price,
		Amount:        price.Sub(final),
		FinalPrice:    final,
	}
}

// AppliedDiscount is a discount resolved against one plan price.
// It is fixed for the lifetime of a purchase attempt.
type AppliedDiscount struct {
	Code          string          `json:"code"`
	Type          DiscountType    `json:"type"`
	Value         decimal.Decimal `json:"value"`
	OriginalPrice decimal.Decimal `json:"originalPrice"`
	Amount        decimal.Decimal `json:"amount"`
	FinalPrice    decimal.Decimal `json:"finalPrice"`
}
