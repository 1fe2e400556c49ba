package application

import (
	"context"

	"storefront-checkout/internal/domain/model"
	"storefront-checkout/internal/infra/diagnostics"
)

// ---- small interfaces that decouple the facade from concrete use cases ----
// They describe the minimal surface the facade needs so tests can pass in
// light-weight mocks.

type CatalogUseCaseIface interface {
	LoadPlans(ctx context.Context) []model.Plan
	FindPlan(ctx context.Context, id string) (*model.Plan, error)
}

type CheckoutUseCaseIface interface {
	Purchase(ctx context.Context, plan *model.Plan, discount *model.AppliedDiscount) (*model.PurchaseAttempt, error)
}

type ProfileUseCaseIface interface {
	Refresh(ctx context.Context) (*model.Profile, error)
	Current() *model.Profile
	CurrentPlanID() string
	Clear()
}

// AttemptReader is the read side of the purchase tracker.
type AttemptReader interface {
	Get(planKey string) model.PurchaseAttempt
	Purchasable(planKey string) bool
}

// LoginState is the pending "sign in again" signal.
type LoginState interface {
	Pending() (bool, string)
	Acknowledge()
	LoginURL() string
}

type DiagnosticsLog interface {
	Entries() []diagnostics.Entry
	Clear()
}

// StorefrontService is what the local HTTP surface talks to.
type StorefrontService interface {
	PlanViews(ctx context.Context) []PlanView
	SelectPlan(ctx context.Context, planID string) (*PlanView, error)
	ApplyDiscount(ctx context.Context, planID, code string) (*DiscountView, error)
	Purchase(ctx context.Context, planID string) (*AttemptView, error)
	Attempt(ctx context.Context, planID string) AttemptView
	Session(ctx context.Context) SessionView
	Logout(ctx context.Context) error
	Profile(ctx context.Context) (*model.Profile, error)
	Diagnostics() []diagnostics.Entry
	ClearDiagnostics()
	UserMessage(err error) string
}
