// File: internal/usecase/checkout_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/domain/model"
	"storefront-checkout/internal/domain/ports/adapter"
	"storefront-checkout/internal/domain/ports/repository"
	"storefront-checkout/internal/infra/logging"
	"storefront-checkout/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

type CheckoutConfig struct {
	Currency    string
	CompanyName string
	ThemeColor  string
	TotalCount  int // billing cycles requested for subscriptions
}

// CheckoutUseCase drives one purchase from order creation to an open
// payment session. Outcomes arrive later through the PaymentOutcomeHandler.
type CheckoutUseCase struct {
	api      adapter.BackendAPI
	sessions repository.SessionStore
	redirect adapter.AuthRedirector
	tracker  *PurchaseTracker
	provider adapter.PaymentProvider
	outcomes PaymentOutcomeHandler
	diag     adapter.Diagnostics
	cfg      CheckoutConfig
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewCheckoutUseCase(
	api adapter.BackendAPI,
	sessions repository.SessionStore,
	redirect adapter.AuthRedirector,
	tracker *PurchaseTracker,
	provider adapter.PaymentProvider,
	outcomes PaymentOutcomeHandler,
	diag adapter.Diagnostics,
	cfg CheckoutConfig,
	logger *zerolog.Logger,
) *CheckoutUseCase {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.TotalCount <= 0 {
		cfg.TotalCount = 12
	}
	return &CheckoutUseCase{
		api:      api,
		sessions: sessions,
		redirect: redirect,
		tracker:  tracker,
		provider: provider,
		outcomes: outcomes,
		diag:     diag,
		cfg:      cfg,
		logger:   logging.OrNop(logger),
		now:      time.Now,
	}
}

// Purchase starts a purchase of plan with an optional, already applied discount.
// The returned attempt is in awaiting_payment on success; on failure it is
// returned alongside the error when one was created.
func (uc *CheckoutUseCase) Purchase(ctx context.Context, plan *model.Plan, discount *model.AppliedDiscount) (*model.PurchaseAttempt, error) {
	sess, err := uc.requireSession(ctx)
	if err != nil {
		return nil, err
	}
	if sess.Role() == model.RoleAdmin {
		return nil, domain.NewStepError("purchase", planKeyOf(plan), domain.ErrForbiddenRole, nil)
	}
	if plan.IsZero() {
		return nil, domain.NewStepError("purchase", "", domain.ErrInvalidPlan, nil)
	}
	if err := plan.Validate(); err != nil {
		return nil, domain.NewStepError("purchase", plan.ID, domain.ErrInvalidPlan, err)
	}
	if strings.TrimSpace(sess.User.Name) == "" || strings.TrimSpace(sess.User.Email) == "" {
		return nil, domain.NewStepError("purchase", plan.ID, domain.ErrIncompleteProfile, nil)
	}

	amount := plan.Price
	if discount != nil {
		amount = discount.FinalPrice
	}
	kind := model.AttemptOrder
	if plan.IsSubscription() {
		kind = model.AttemptSubscription
	}

	// one-time orders charge the amount itself; subscriptions bill on the provider plan
	if kind == model.AttemptOrder && !payable(amount) {
		if discount != nil {
			return nil, domain.NewStepError("purchase", plan.ID, domain.ErrInvalidDiscount,
				fmt.Errorf("code %s leaves %s %s to pay", discount.Code, amount, uc.cfg.Currency))
		}
		return nil, domain.NewStepError("purchase", plan.ID, domain.ErrInvalidPlan,
			fmt.Errorf("price %s %s is not payable", amount, uc.cfg.Currency))
	}

	attempt, err := uc.tracker.Begin(ctx, plan.ID, kind, amount, uc.cfg.Currency, discount, WithPlanName(plan.Name))
	if err != nil {
		return nil, err
	}
	ctx = logging.WithAttemptID(logging.WithPlanKey(ctx, plan.ID), attempt.ID)
	log := logging.With(ctx, uc.logger)
	defer logging.TraceDuration(log, "CheckoutUC.Purchase")()

	ref, err := uc.createOrder(ctx, plan, kind, amount, discount, sess.User)
	if err != nil {
		// createOrder has already recorded the backend's answer
		return uc.fail(ctx, "", plan.ID, attempt.ID, domain.NewStepError("create_order", plan.ID, domain.ErrOrderCreationFailed, err))
	}
	attempt, err = uc.tracker.Set(ctx, plan.ID, attempt.ID, model.PurchaseAwaitingPayment, WithOrder(ref))
	if err != nil {
		return nil, err
	}

	cfg := adapter.PaymentSessionConfig{
		PlanKey:     plan.ID,
		AttemptID:   attempt.ID,
		Kind:        string(kind),
		OrderRef:    ref,
		Amount:      amount,
		Currency:    uc.cfg.Currency,
		Name:        uc.cfg.CompanyName,
		Description: describe(plan, kind),
		ThemeColor:  uc.cfg.ThemeColor,
		Prefill: adapter.Prefill{
			Name:    sess.User.Name,
			Email:   sess.User.Email,
			Contact: sess.User.Phone,
		},
	}
	ps, err := uc.provider.Open(ctx, cfg, uc.handlers(plan.ID, attempt.ID))
	if err != nil {
		return uc.fail(ctx, "Open Payment ("+plan.Name+")", plan.ID, attempt.ID, domain.NewStepError("open_payment", plan.ID, domain.ErrPaymentSessionUnavailable, err))
	}
	if annotated, err := uc.tracker.Annotate(ctx, plan.ID, attempt.ID, WithCheckout(ps.ID, ps.URL)); err == nil {
		attempt = annotated
	}
	metrics.IncPayment("initiated")
	log.Info().Str("order_ref", ref).Str("provider", uc.provider.Name()).Str("checkout_session", ps.ID).
		Str("amount", amount.String()).Msg("payment session opened")
	return &attempt, nil
}

func (uc *CheckoutUseCase) requireSession(ctx context.Context) (*model.BackendSession, error) {
	sess, err := uc.sessions.Load(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		uc.redirectToLogin(ctx, "login required to purchase")
		return nil, domain.NewStepError("purchase", "", domain.ErrNotAuthenticated, nil)
	case err != nil:
		uc.redirectToLogin(ctx, "session unreadable")
		return nil, domain.NewStepError("purchase", "", domain.ErrNotAuthenticated, err)
	case sess.Expired(uc.now()):
		if cerr := uc.sessions.Clear(ctx); cerr != nil {
			logging.With(ctx, uc.logger).Error().Err(cerr).Msg("failed to clear expired session")
		}
		uc.redirectToLogin(ctx, "session expired")
		return nil, domain.NewStepError("purchase", "", domain.ErrSessionExpired, nil)
	}
	return sess, nil
}

func (uc *CheckoutUseCase) redirectToLogin(ctx context.Context, reason string) {
	if uc.redirect != nil {
		uc.redirect.RedirectToLogin(ctx, reason)
	}
}

// createOrder asks the backend for an order or subscription and returns its reference.
func (uc *CheckoutUseCase) createOrder(ctx context.Context, plan *model.Plan, kind model.AttemptKind, amount decimal.Decimal, discount *model.AppliedDiscount, user model.User) (string, error) {
	payload := map[string]any{
		"planId":   plan.ID,
		"amount":   amount.InexactFloat64(),
		"currency": uc.cfg.Currency,
		"customerDetails": map[string]string{
			"name":    user.Name,
			"email":   user.Email,
			"contact": user.Phone,
		},
	}
	if discount != nil {
		payload["discountCode"] = discount.Code
	}
	endpoint, label := "create-order", "Create Order ("+plan.Name+")"
	if kind == model.AttemptSubscription {
		endpoint, label = "create-subscription", "Create Subscription ("+plan.Name+")"
		payload["razorpayPlanId"] = plan.ProviderPlanRef
		payload["totalCount"] = uc.cfg.TotalCount
		if user.ProviderCustomerID != "" {
			payload["customerId"] = user.ProviderCustomerID
		}
	} else {
		payload["receipt"] = "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
	}

	env, err := uc.api.Call(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		uc.record(label, nil, err)
		return "", err
	}
	if !env.Success {
		err := fmt.Errorf("backend declined: %s", messageOr(env.Message, "order was not created"))
		uc.record(label, env.Data, err)
		return "", err
	}
	ref := orderRefOf(env.Data, kind)
	if ref == "" {
		err := errors.New("response carries no order reference")
		uc.record(label, env.Data, err)
		return "", err
	}
	uc.record(label, env.Data, nil)
	return ref, nil
}

func (uc *CheckoutUseCase) handlers(planKey, attemptID string) adapter.PaymentHandlers {
	return adapter.PaymentHandlers{
		OnSuccess: func(ctx context.Context, res adapter.PaymentSuccess) {
			_, _ = uc.outcomes.HandleSuccess(ctx, planKey, attemptID, res)
		},
		OnFailure: func(ctx context.Context, res adapter.PaymentFailure) {
			_, _ = uc.outcomes.HandleFailure(ctx, planKey, attemptID, res)
		},
		OnCancel: func(ctx context.Context) {
			_, _ = uc.outcomes.HandleCancel(ctx, planKey, attemptID)
		},
	}
}

// fail moves the attempt to failed and, given a label, records err in diagnostics.
func (uc *CheckoutUseCase) fail(ctx context.Context, label, planKey, attemptID string, err error) (*model.PurchaseAttempt, error) {
	if label != "" {
		uc.record(label, nil, err)
	}
	a, serr := uc.tracker.Set(ctx, planKey, attemptID, model.PurchaseFailed, WithFailure(err, model.NotCharged))
	if serr != nil {
		logging.With(ctx, uc.logger).Error().Err(serr).Msg("could not record purchase failure")
	}
	return &a, err
}

func (uc *CheckoutUseCase) record(label string, payload any, err error) {
	if uc.diag != nil {
		uc.diag.Record(label, payload, err)
	}
}

// orderRefOf finds the provider reference in a create-order/subscription response.
func orderRefOf(data []byte, kind model.AttemptKind) string {
	r := gjson.ParseBytes(data)
	subs := []string{"subscription.id", "subscriptionId", "subscription_id"}
	orders := []string{"order.id", "orderId", "order_id"}
	paths := append(append(orders, subs...), "id")
	if kind == model.AttemptSubscription {
		paths = append(append(subs, orders...), "id")
	}
	return firstString(r, paths...)
}

func describe(plan *model.Plan, kind model.AttemptKind) string {
	if kind == model.AttemptSubscription {
		return fmt.Sprintf("Subscription for %s Plan", plan.Name)
	}
	return fmt.Sprintf("Purchase of %s Plan", plan.Name)
}

// payable reports whether amount is at least one minor currency unit.
func payable(amount decimal.Decimal) bool {
	return amount.Shift(2).Round(0).IsPositive()
}

func planKeyOf(p *model.Plan) string {
	if p == nil {
		return ""
	}
	return p.ID
}
