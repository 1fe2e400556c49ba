package application

import (
	"context"
	"errors"
	"fmt"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/domain/model"
	"storefront-checkout/internal/domain/ports/repository"
	"storefront-checkout/internal/infra/diagnostics"
	"storefront-checkout/internal/infra/i18n"
	"storefront-checkout/internal/infra/logging"
	"storefront-checkout/internal/usecase"

	"github.com/rs/zerolog"
)

// PlanView is one plan card: the plan, what the user did with it, and the
// button state.
type PlanView struct {
	Plan        model.Plan             `json:"plan"`
	Discount    *model.AppliedDiscount `json:"discount,omitempty"`
	Attempt     model.PurchaseAttempt  `json:"attempt"`
	Current     bool                   `json:"current"`
	Purchasable bool                   `json:"purchasable"`
	ButtonLabel string                 `json:"buttonLabel"`
}

type DiscountView struct {
	Discount model.AppliedDiscount `json:"discount"`
	Message  string                `json:"message"`
}

// AttemptView is an attempt plus the message to show the user.
type AttemptView struct {
	Attempt     model.PurchaseAttempt `json:"attempt"`
	Purchasable bool                  `json:"purchasable"`
	Message     string                `json:"message,omitempty"`
}

type SessionView struct {
	SignedIn      bool        `json:"signedIn"`
	User          *model.User `json:"user,omitempty"`
	Role          string      `json:"role,omitempty"`
	LoginRequired bool        `json:"loginRequired"`
	LoginReason   string      `json:"loginReason,omitempty"`
	LoginURL      string      `json:"loginUrl,omitempty"`
}

var _ StorefrontService = (*Storefront)(nil)

// Storefront composes the use cases into the operations of the plans page.
type Storefront struct {
	Catalog   CatalogUseCaseIface
	Checkout  CheckoutUseCaseIface
	Profiles  ProfileUseCaseIface
	Discounts usecase.DiscountResolver
	Attempts  AttemptReader
	Selection *usecase.Selection
	Sessions  repository.SessionStore
	Login     LoginState
	Diag      DiagnosticsLog
	T         *i18n.Translator
	logger    *zerolog.Logger
}

func NewStorefront(
	catalog CatalogUseCaseIface,
	checkout CheckoutUseCaseIface,
	profiles ProfileUseCaseIface,
	discounts usecase.DiscountResolver,
	attempts AttemptReader,
	selection *usecase.Selection,
	sessions repository.SessionStore,
	login LoginState,
	diag DiagnosticsLog,
	t *i18n.Translator,
	logger *zerolog.Logger,
) *Storefront {
	if selection == nil {
		selection = usecase.NewSelection()
	}
	return &Storefront{
		Catalog:   catalog,
		Checkout:  checkout,
		Profiles:  profiles,
		Discounts: discounts,
		Attempts:  attempts,
		Selection: selection,
		Sessions:  sessions,
		Login:     login,
		Diag:      diag,
		T:         t,
		logger:    logging.OrNop(logger),
	}
}

// PlanViews lists the catalog with each plan's button state.
func (s *Storefront) PlanViews(ctx context.Context) []PlanView {
	plans := s.Catalog.LoadPlans(ctx)
	current := s.currentPlanID()
	out := make([]PlanView, 0, len(plans))
	for _, p := range plans {
		out = append(out, s.view(p, current))
	}
	return out
}

// SelectPlan starts (or restarts) a selection, dropping an earlier discount.
func (s *Storefront) SelectPlan(ctx context.Context, planID string) (*PlanView, error) {
	plan, err := s.Catalog.FindPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	s.Selection.Select(*plan)
	v := s.view(*plan, s.currentPlanID())
	return &v, nil
}

func (s *Storefront) ApplyDiscount(ctx context.Context, planID, code string) (*DiscountView, error) {
	if _, _, selected := s.Selection.Get(planID); !selected {
		if _, err := s.SelectPlan(ctx, planID); err != nil {
			return nil, err
		}
	}
	d, err := s.Selection.ApplyDiscount(ctx, planID, code, s.Discounts)
	if err != nil {
		return nil, err
	}
	return &DiscountView{Discount: *d, Message: s.T.T("discount.applied", d.Amount.StringFixed(2))}, nil
}

// Purchase buys planID with whatever discount the current selection carries.
func (s *Storefront) Purchase(ctx context.Context, planID string) (*AttemptView, error) {
	ctx = logging.WithPlanKey(ctx, planID)
	var (
		plan     *model.Plan
		discount *model.AppliedDiscount
	)
	if p, d, selected := s.Selection.Get(planID); selected {
		plan, discount = &p, d
	} else {
		p, err := s.Catalog.FindPlan(ctx, planID)
		if err != nil {
			return nil, err
		}
		plan = p
	}
	if s.currentPlanID() == plan.ID {
		return nil, fmt.Errorf("%w: %s", domain.ErrAlreadySubscribed, plan.ID)
	}

	attempt, err := s.Checkout.Purchase(ctx, plan, discount)
	if attempt == nil {
		return nil, err
	}
	v := s.attemptView(*attempt, plan.Name)
	if err != nil {
		logging.With(ctx, s.logger).Warn().Err(err).Str("kind", domain.KindName(err)).Msg("purchase failed")
	}
	return &v, err
}

func (s *Storefront) Attempt(ctx context.Context, planID string) AttemptView {
	name := planID
	if p, _, selected := s.Selection.Get(planID); selected && p.Name != "" {
		name = p.Name
	}
	return s.attemptView(s.Attempts.Get(planID), name)
}

func (s *Storefront) Session(ctx context.Context) SessionView {
	v := SessionView{}
	if s.Login != nil {
		v.LoginURL = s.Login.LoginURL()
	}
	sess, err := s.Sessions.Load(ctx)
	if err == nil && !sess.IsZero() {
		v.SignedIn = true
		u := sess.User
		v.User = &u
		v.Role = sess.Role()
		if s.Login != nil {
			// a stored session means the user signed in after the last redirect
			s.Login.Acknowledge()
		}
		return v
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		logging.With(ctx, s.logger).Warn().Err(err).Msg("failed to read session")
	}
	v.LoginRequired = true
	if s.Login != nil {
		if pending, reason := s.Login.Pending(); pending {
			v.LoginReason = reason
		}
	}
	return v
}

// Logout removes token and user from durable storage.
func (s *Storefront) Logout(ctx context.Context) error {
	if err := s.Sessions.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	if s.Profiles != nil {
		s.Profiles.Clear()
	}
	logging.With(ctx, s.logger).Info().Msg("signed out")
	return nil
}

func (s *Storefront) Profile(ctx context.Context) (*model.Profile, error) {
	if s.Profiles == nil {
		return nil, domain.ErrNotFound
	}
	return s.Profiles.Refresh(ctx)
}

func (s *Storefront) Diagnostics() []diagnostics.Entry {
	if s.Diag == nil {
		return []diagnostics.Entry{}
	}
	return s.Diag.Entries()
}

func (s *Storefront) ClearDiagnostics() {
	if s.Diag != nil {
		s.Diag.Clear()
	}
}

// UserMessage renders err in the user's language.
func (s *Storefront) UserMessage(err error) string {
	if err == nil {
		return ""
	}
	return s.kindMessage(domain.KindName(err), err)
}

func (s *Storefront) view(p model.Plan, current string) PlanView {
	v := PlanView{
		Plan:    p,
		Attempt: s.Attempts.Get(p.ID),
		Current: current != "" && current == p.ID,
	}
	if sel, d, selected := s.Selection.Get(p.ID); selected && sel.ID == p.ID {
		v.Discount = d
	}
	v.Purchasable = !v.Current && s.Attempts.Purchasable(p.ID)
	switch {
	case v.Current:
		v.ButtonLabel = s.T.T("purchase.current_plan")
	case !v.Purchasable:
		v.ButtonLabel = s.T.T("purchase." + string(v.Attempt.Status))
	default:
		v.ButtonLabel = s.T.T("purchase.idle")
	}
	return v
}

func (s *Storefront) attemptView(a model.PurchaseAttempt, planName string) AttemptView {
	return AttemptView{
		Attempt:     a,
		Purchasable: a.Status.IsTerminal(),
		Message:     s.attemptMessage(a, planName),
	}
}

func (s *Storefront) attemptMessage(a model.PurchaseAttempt, planName string) string {
	switch a.Status {
	case model.PurchaseIdle, "":
		if a.Outcome == "cancelled" {
			return s.T.T("purchase.cancelled")
		}
		return ""
	case model.PurchaseSucceeded:
		return s.T.T("purchase.succeeded", planName)
	case model.PurchaseFailed:
		base := s.kindMessage(a.ErrorKind, a.LastError)
		if a.Charged == model.MaybeCharged {
			ref := a.PaymentID
			if ref == "" {
				ref = a.OrderRef
			}
			return s.T.T("charged.maybe_charged", base, ref)
		}
		return s.T.T("charged.not_charged", base)
	}
	return s.T.T("purchase." + string(a.Status))
}

func (s *Storefront) kindMessage(kind string, err error) string {
	key := "error." + kind
	if kind == "" || !s.T.Has(key) {
		return s.T.T("error.internal")
	}
	if kind == "provider_payment_failed" {
		desc := ""
		var perr *domain.ProviderFailureError
		if errors.As(err, &perr) {
			desc = perr.Description
		} else if err != nil {
			desc = err.Error()
		}
		return s.T.T(key, desc)
	}
	return s.T.T(key)
}

func (s *Storefront) currentPlanID() string {
	if s.Profiles == nil {
		return ""
	}
	return s.Profiles.CurrentPlanID()
}
