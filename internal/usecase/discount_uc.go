// File: internal/usecase/discount_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/domain/model"
	"storefront-checkout/internal/domain/ports/adapter"
	"storefront-checkout/internal/infra/apiclient"
	"storefront-checkout/internal/infra/logging"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const discountLabel = "Validate Discount"

// DiscountResolver turns a code into a discount applied to one plan price.
type DiscountResolver interface {
	Apply(ctx context.Context, code string, plan *model.Plan) (*model.AppliedDiscount, error)
}

var _ DiscountResolver = (*DiscountUseCase)(nil)

// DiscountUseCase validates codes remotely; the backend decides expiry,
// usage caps and plan applicability. Only the arithmetic happens here.
type DiscountUseCase struct {
	api    adapter.BackendAPI
	diag   adapter.Diagnostics
	logger *zerolog.Logger
}

func NewDiscountUseCase(api adapter.BackendAPI, diag adapter.Diagnostics, logger *zerolog.Logger) *DiscountUseCase {
	return &DiscountUseCase{api: api, diag: diag, logger: logging.OrNop(logger)}
}

func (uc *DiscountUseCase) Apply(ctx context.Context, code string, plan *model.Plan) (*model.AppliedDiscount, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: please enter a discount code", domain.ErrInvalidDiscount)
	}
	if plan.IsZero() {
		return nil, fmt.Errorf("%w: no plan selected", domain.ErrInvalidPlan)
	}
	log := logging.With(ctx, uc.logger).With().Str("plan_key", plan.ID).Logger()

	env, err := uc.api.Call(ctx, http.MethodPost, "validate-discount", map[string]any{
		"code":   code,
		"planId": plan.ID,
	})
	if err != nil {
		uc.record(nil, err)
		if errors.Is(err, domain.ErrRequestRejected) {
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrInvalidDiscount, messageOr(apiclient.Message(err), "code rejected"), err)
		}
		log.Warn().Err(err).Msg("discount validation failed")
		return nil, err
	}
	if !env.Success {
		uc.record(env.Data, domain.ErrInvalidDiscount)
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidDiscount, messageOr(env.Message, "invalid discount code"))
	}

	dc, err := discountFrom(env.Data, code)
	if err != nil {
		uc.record(env.Data, err)
		return nil, err
	}
	uc.record(env.Data, nil)

	applied := dc.Apply(plan.Price)
	log.Info().Str("code", dc.Code).Str("type", string(dc.Type)).Str("final_price", applied.FinalPrice.String()).Msg("discount applied")
	return &applied, nil
}

func (uc *DiscountUseCase) record(payload any, err error) {
	if uc.diag != nil {
		uc.diag.Record(discountLabel, payload, err)
	}
}

// discountFrom reads {discount: {...}} or a bare discount object.
func discountFrom(data []byte, code string) (model.DiscountCode, error) {
	res := gjson.ParseBytes(data)
	d := res.Get("discount")
	if !d.IsObject() {
		d = res
	}
	if !d.IsObject() {
		return model.DiscountCode{}, fmt.Errorf("%w: malformed discount", domain.ErrInvalidDiscount)
	}

	value, present, err := parseMoney(d.Get("value"))
	if err != nil || !present {
		return model.DiscountCode{}, fmt.Errorf("%w: malformed discount value", domain.ErrInvalidDiscount)
	}
	dc := model.DiscountCode{
		Code:      firstString(d, "code"),
		Type:      discountType(d.Get("type").String()),
		Value:     value,
		ExpiresAt: parseTime(d.Get("expiryDate")),
	}
	if dc.Code == "" {
		dc.Code = code
	}
	for _, p := range d.Get("applicablePlans").Array() {
		id := p.String()
		if p.IsObject() {
			id = planIDOf(p)
		}
		if id != "" {
			dc.PlanIDs = append(dc.PlanIDs, id)
		}
	}
	if m := d.Get("maxUses"); m.Type == gjson.Number {
		n := int(m.Int())
		dc.UsageLimit = &n
	}
	if err := dc.Validate(); err != nil {
		return model.DiscountCode{}, err
	}
	return dc, nil
}

func discountType(s string) model.DiscountType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "percentage", "percent":
		return model.DiscountPercentage
	case "fixed", "flat", "amount":
		return model.DiscountFixed
	}
	return model.DiscountType(s)
}

func messageOr(msg, fallback string) string {
	if msg != "" {
		return msg
	}
	return fallback
}
