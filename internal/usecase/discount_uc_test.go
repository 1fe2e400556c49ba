//go:build !integration

package usecase

import (
	"context"
	"errors"
	"testing"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/domain/model"
	"storefront-checkout/internal/infra/apiclient"

	"github.com/shopspring/decimal"
)

func decimalFrom(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func proPlan(t *testing.T) *model.Plan {
	t.Helper()
	p, err := model.NewPlan("pro", "Pro", decimal.NewFromInt(1599))
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}
	return p
}

func discountBackend(data string) *mockBackend {
	return &mockBackend{CallFunc: func(_ context.Context, _ string, endpoint string, _ any) (*model.Envelope, error) {
		if endpoint != "validate-discount" {
			return nil, domain.ErrBackendUnreachable
		}
		return okEnv(data), nil
	}}
}

func TestDiscountUseCase_Apply(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		wantFinal string
	}{
		{"percentage", `{"discount":{"code":"SAVE20","type":"percentage","value":20}}`, "1279.2"},
		{"fixed", `{"discount":{"code":"FLAT100","type":"fixed","value":100}}`, "1499"},
		{"fixed clamps at zero", `{"discount":{"code":"BIG","type":"fixed","value":5000}}`, "0"},
		{"bare object and alias type", `{"code":"P50","type":"percent","value":"50"}`, "799.5"},
		{"full percentage", `{"discount":{"code":"FREE","type":"percentage","value":100}}`, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			uc := NewDiscountUseCase(discountBackend(tt.data), nil, newTestLogger())

			// Act
			got, err := uc.Apply(context.Background(), " code ", proPlan(t))

			// Assert
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.FinalPrice.Equal(decimalFrom(t, tt.wantFinal)) {
				t.Errorf("final = %s, want %s", got.FinalPrice, tt.wantFinal)
			}
			if !got.OriginalPrice.Equal(decimal.NewFromInt(1599)) {
				t.Errorf("original = %s", got.OriginalPrice)
			}
		})
	}
}

func TestDiscountUseCase_Apply_SendsCodeAndPlan(t *testing.T) {
	api := discountBackend(`{"discount":{"code":"SAVE20","type":"percentage","value":20}}`)
	uc := NewDiscountUseCase(api, nil, newTestLogger())

	if _, err := uc.Apply(context.Background(), "SAVE20", proPlan(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := api.Calls("validate-discount")
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Payload["code"] != "SAVE20" || calls[0].Payload["planId"] != "pro" {
		t.Errorf("payload = %v", calls[0].Payload)
	}
}

func TestDiscountUseCase_Apply_Invalid(t *testing.T) {
	tests := []struct {
		name string
		code string
		api  *mockBackend
	}{
		{"empty code", "   ", discountBackend(`{}`)},
		{"backend says invalid", "OLD", &mockBackend{CallFunc: func(context.Context, string, string, any) (*model.Envelope, error) {
			return declined("Discount code has expired"), nil
		}}},
		{"rejected with 400", "NOPE", &mockBackend{CallFunc: func(context.Context, string, string, any) (*model.Envelope, error) {
			return nil, &apiclient.StatusError{Tier: "primary", Status: 400, Message: "Invalid discount code", Err: domain.ErrRequestRejected}
		}}},
		{"percentage over 100", "X", discountBackend(`{"discount":{"type":"percentage","value":120}}`)},
		{"negative fixed", "X", discountBackend(`{"discount":{"type":"fixed","value":-1}}`)},
		{"missing value", "X", discountBackend(`{"discount":{"type":"fixed"}}`)},
		{"unknown type", "X", discountBackend(`{"discount":{"type":"bogo","value":1}}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := NewDiscountUseCase(tt.api, nil, newTestLogger())

			_, err := uc.Apply(context.Background(), tt.code, proPlan(t))

			if !errors.Is(err, domain.ErrInvalidDiscount) {
				t.Errorf("expected ErrInvalidDiscount, got %v", err)
			}
		})
	}
}

func TestDiscountUseCase_Apply_TransportErrorIsNotInvalidCode(t *testing.T) {
	api := &mockBackend{CallFunc: func(context.Context, string, string, any) (*model.Envelope, error) {
		return nil, &apiclient.UnreachableError{Endpoint: "validate-discount", Primary: errors.New("timeout")}
	}}
	uc := NewDiscountUseCase(api, nil, newTestLogger())

	_, err := uc.Apply(context.Background(), "SAVE20", proPlan(t))

	if !errors.Is(err, domain.ErrBackendUnreachable) {
		t.Fatalf("expected ErrBackendUnreachable, got %v", err)
	}
	if errors.Is(err, domain.ErrInvalidDiscount) {
		t.Error("an unreachable backend must not be reported as an invalid code")
	}
}

func TestSelection_ApplyDiscount_OnlyOnce(t *testing.T) {
	api := discountBackend(`{"discount":{"code":"SAVE20","type":"percentage","value":20}}`)
	resolver := NewDiscountUseCase(api, nil, newTestLogger())
	sel := NewSelection()
	sel.Select(*proPlan(t))

	first, err := sel.ApplyDiscount(context.Background(), "pro", "SAVE20", resolver)
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	_, err = sel.ApplyDiscount(context.Background(), "pro", "SAVE20", resolver)
	if !errors.Is(err, domain.ErrDiscountAlreadyApplied) {
		t.Fatalf("expected ErrDiscountAlreadyApplied, got %v", err)
	}

	_, d, _ := sel.Get("pro")
	if d == nil || !d.FinalPrice.Equal(first.FinalPrice) {
		t.Errorf("stored discount = %+v, want final %s", d, first.FinalPrice)
	}

	// reselecting drops the discount
	sel.Select(*proPlan(t))
	if _, d, _ := sel.Get("pro"); d != nil {
		t.Errorf("Select should reset the discount, got %+v", d)
	}
	if len(api.Calls("validate-discount")) != 1 {
		t.Errorf("second apply must not reach the backend")
	}
}

func TestSelection_ApplyDiscount_NotSelected(t *testing.T) {
	sel := NewSelection()
	_, err := sel.ApplyDiscount(context.Background(), "pro", "SAVE20", NewDiscountUseCase(&mockBackend{}, nil, nil))
	if !errors.Is(err, domain.ErrInvalidPlan) {
		t.Errorf("expected ErrInvalidPlan, got %v", err)
	}
}
