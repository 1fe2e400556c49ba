// File: internal/usecase/catalog_uc.go
package usecase

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/domain/model"
	"storefront-checkout/internal/domain/ports/adapter"
	"storefront-checkout/internal/infra/logging"
	"storefront-checkout/internal/infra/metrics"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const plansLabel = "Plans"

// CatalogUseCase loads the plan catalog and normalizes every backend shape
// into model.Plan. Plan id aliases never leak past this point.
type CatalogUseCase struct {
	api    adapter.BackendAPI
	diag   adapter.Diagnostics
	logger *zerolog.Logger

	mu       sync.RWMutex
	byID     map[string]model.Plan
	loadedAt time.Time
}

func NewCatalogUseCase(api adapter.BackendAPI, diag adapter.Diagnostics, logger *zerolog.Logger) *CatalogUseCase {
	return &CatalogUseCase{api: api, diag: diag, logger: logging.OrNop(logger), byID: map[string]model.Plan{}}
}

// LoadPlans never fails: transport errors and unknown shapes yield an empty list.
func (uc *CatalogUseCase) LoadPlans(ctx context.Context) []model.Plan {
	log := logging.With(ctx, uc.logger)
	defer logging.TraceDuration(log, "CatalogUC.LoadPlans")()

	env, err := uc.api.Call(ctx, http.MethodGet, "plans", nil)
	if err != nil {
		uc.record(plansLabel, nil, err)
		log.Warn().Err(err).Msg("failed to load plans")
		return []model.Plan{}
	}
	uc.record(plansLabel, env.Data, nil)
	if !env.Success {
		log.Warn().Str("message", env.Message).Msg("backend reported failure listing plans")
		return []model.Plan{}
	}

	plans, rejected := normalizePlans(env.Data)
	if len(rejected) > 0 {
		uc.record(plansLabel+" (rejected)", rejected, domain.ErrInvalidPlan)
		log.Warn().Int("rejected", len(rejected)).Strs("reasons", rejected).Msg("dropped malformed plans")
	}

	byID := make(map[string]model.Plan, len(plans))
	for _, p := range plans {
		byID[p.ID] = p
	}
	uc.mu.Lock()
	uc.byID = byID
	uc.loadedAt = time.Now()
	uc.mu.Unlock()

	log.Debug().Int("plans", len(plans)).Str("tier", env.Tier).Msg("plans loaded")
	return plans
}

// FindPlan resolves a plan key from the last loaded catalog, reloading on a miss.
func (uc *CatalogUseCase) FindPlan(ctx context.Context, id string) (*model.Plan, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty plan id", domain.ErrInvalidPlan)
	}
	if p, ok := uc.cached(id); ok {
		metrics.IncCatalogLookup("hit")
		return &p, nil
	}
	metrics.IncCatalogLookup("reload")
	uc.LoadPlans(ctx)
	if p, ok := uc.cached(id); ok {
		return &p, nil
	}
	metrics.IncCatalogLookup("unknown")
	return nil, fmt.Errorf("%w: plan %q: %w", domain.ErrInvalidPlan, id, domain.ErrNotFound)
}

func (uc *CatalogUseCase) cached(id string) (model.Plan, bool) {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	p, ok := uc.byID[id]
	return p, ok
}

func (uc *CatalogUseCase) record(label string, payload any, err error) {
	if uc.diag != nil {
		uc.diag.Record(label, payload, err)
	}
}

// normalizePlans accepts a bare array, {plans: [...]}, {data: [...]} or
// {data: {plans: [...]}}. Anything else yields no plans.
func normalizePlans(data []byte) ([]model.Plan, []string) {
	plans := []model.Plan{}
	if !gjson.ValidBytes(data) {
		return plans, nil
	}
	res := gjson.ParseBytes(data)
	var list gjson.Result
	switch {
	case res.IsArray():
		list = res
	case res.Get("plans").IsArray():
		list = res.Get("plans")
	case res.Get("data").IsArray():
		list = res.Get("data")
	case res.Get("data.plans").IsArray():
		list = res.Get("data.plans")
	default:
		return plans, nil
	}

	var rejected []string
	seen := map[string]bool{}
	for i, raw := range list.Array() {
		p, err := planFrom(raw)
		if err != nil {
			rejected = append(rejected, fmt.Sprintf("#%d: %v", i, err))
			continue
		}
		if seen[p.ID] {
			rejected = append(rejected, fmt.Sprintf("#%d: duplicate id %q", i, p.ID))
			continue
		}
		seen[p.ID] = true
		plans = append(plans, p)
	}
	return plans, rejected
}

func planFrom(r gjson.Result) (model.Plan, error) {
	if !r.IsObject() {
		return model.Plan{}, fmt.Errorf("%w: not an object", domain.ErrInvalidPlan)
	}
	price, err := priceOf(r)
	if err != nil {
		return model.Plan{}, err
	}
	p := model.Plan{
		ID:              planIDOf(r),
		Name:            firstString(r, "name", "title"),
		Description:     r.Get("description").String(),
		Price:           price,
		Duration:        int(r.Get("duration").Int()),
		Features:        featuresOf(r.Get("features")),
		ProviderPlanRef: providerPlanRef(r),
	}
	if p.Duration <= 0 {
		p.Duration = 1
	}
	if err := p.Validate(); err != nil {
		return model.Plan{}, err
	}
	return p, nil
}

// priceOf follows price, then amount; a zero or missing price falls through.
func priceOf(r gjson.Result) (decimal.Decimal, error) {
	for _, key := range []string{"price", "amount"} {
		d, present, err := parseMoney(r.Get(key))
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %s: %v", domain.ErrInvalidPlan, key, err)
		}
		if present && !d.IsZero() {
			return d, nil
		}
	}
	return decimal.Zero, nil
}

func featuresOf(v gjson.Result) []string {
	out := []string{}
	var items []string
	switch {
	case v.IsArray():
		for _, f := range v.Array() {
			items = append(items, f.String())
		}
	case v.Type == gjson.String:
		items = strings.Split(v.Str, ",")
	}
	for _, f := range items {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// providerPlanRef is the Razorpay plan id; admin tooling stores it in planId.
func providerPlanRef(r gjson.Result) string {
	if ref := firstString(r, "razorpayPlanId", "providerPlanId"); ref != "" {
		return ref
	}
	if pid := strings.TrimSpace(r.Get("planId").String()); strings.HasPrefix(pid, "plan_") {
		return pid
	}
	return ""
}
