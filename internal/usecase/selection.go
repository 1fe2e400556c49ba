package usecase

import (
	"context"
	"fmt"
	"sync"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/domain/model"
)

// Selection holds the plan the user picked and the discount applied to it.
// A discount is applied at most once per selection and never stacked.
type Selection struct {
	mu    sync.Mutex
	plans map[string]*selected
}

type selected struct {
	plan     model.Plan
	discount *model.AppliedDiscount
	gen      uint64
}

func NewSelection() *Selection {
	return &Selection{plans: map[string]*selected{}}
}

// Select (re)selects a plan and drops any discount applied earlier.
func (s *Selection) Select(plan model.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var gen uint64
	if cur, ok := s.plans[plan.ID]; ok {
		gen = cur.gen + 1
	}
	s.plans[plan.ID] = &selected{plan: plan, gen: gen}
}

// Get returns the selected plan and its discount, if any.
func (s *Selection) Get(planKey string) (model.Plan, *model.AppliedDiscount, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.plans[planKey]
	if !ok {
		return model.Plan{}, nil, false
	}
	var d *model.AppliedDiscount
	if cur.discount != nil {
		cp := *cur.discount
		d = &cp
	}
	return cur.plan, d, true
}

// ApplyDiscount resolves code against the selected plan once.
func (s *Selection) ApplyDiscount(ctx context.Context, planKey, code string, resolver DiscountResolver) (*model.AppliedDiscount, error) {
	s.mu.Lock()
	cur, ok := s.plans[planKey]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: plan %q is not selected", domain.ErrInvalidPlan, planKey)
	}
	if cur.discount != nil {
		s.mu.Unlock()
		return nil, domain.ErrDiscountAlreadyApplied
	}
	plan, gen := cur.plan, cur.gen
	s.mu.Unlock()

	applied, err := resolver.Apply(ctx, code, &plan)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok = s.plans[planKey]
	if !ok || cur.gen != gen || cur.discount != nil {
		return nil, domain.ErrDiscountAlreadyApplied
	}
	cur.discount = applied
	cp := *applied
	return &cp, nil
}
