// File: internal/usecase/profile_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/domain/model"
	"storefront-checkout/internal/domain/ports/adapter"
	"storefront-checkout/internal/domain/ports/repository"
	"storefront-checkout/internal/infra/logging"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

var _ ProfileRefresher = (*ProfileUseCase)(nil)

// ProfileUseCase caches the signed-in user's entitlements.
type ProfileUseCase struct {
	api      adapter.BackendAPI
	sessions repository.SessionStore
	diag     adapter.Diagnostics
	logger   *zerolog.Logger
	now      func() time.Time

	mu      sync.RWMutex
	current *model.Profile
}

func NewProfileUseCase(api adapter.BackendAPI, sessions repository.SessionStore, diag adapter.Diagnostics, logger *zerolog.Logger) *ProfileUseCase {
	return &ProfileUseCase{
		api:      api,
		sessions: sessions,
		diag:     diag,
		logger:   logging.OrNop(logger),
		now:      time.Now,
	}
}

// Refresh fetches auth/profile and stores the returned user next to the
// existing token.
func (uc *ProfileUseCase) Refresh(ctx context.Context) (*model.Profile, error) {
	log := logging.With(ctx, uc.logger)
	env, err := uc.api.Call(ctx, http.MethodGet, "auth/profile", nil)
	if err != nil {
		uc.record(nil, err)
		return nil, err
	}
	if !env.Success {
		err := fmt.Errorf("%w: %s", domain.ErrRequestRejected, messageOr(env.Message, "profile unavailable"))
		uc.record(env.Data, err)
		return nil, err
	}
	uc.record(env.Data, nil)

	p := profileFrom(env.Data)
	p.FetchedAt = uc.now()

	if !p.User.IsZero() {
		if err := uc.updateSessionUser(ctx, p.User); err != nil {
			log.Warn().Err(err).Msg("could not update stored user")
		}
	}

	uc.mu.Lock()
	uc.current = p
	uc.mu.Unlock()
	log.Debug().Str("current_plan", p.CurrentPlanID(p.FetchedAt)).Int("transactions", len(p.Transactions)).Msg("profile refreshed")
	return p, nil
}

// Current returns the last fetched profile or nil.
func (uc *ProfileUseCase) Current() *model.Profile {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return uc.current
}

// CurrentPlanID is the plan of the active subscription, "" when none.
func (uc *ProfileUseCase) CurrentPlanID() string {
	return uc.Current().CurrentPlanID(uc.now())
}

// Clear forgets the cached profile, e.g. on logout.
func (uc *ProfileUseCase) Clear() {
	uc.mu.Lock()
	uc.current = nil
	uc.mu.Unlock()
}

func (uc *ProfileUseCase) updateSessionUser(ctx context.Context, u model.User) error {
	sess, err := uc.sessions.Load(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	sess.User = u
	return uc.sessions.Save(ctx, sess)
}

func (uc *ProfileUseCase) record(payload any, err error) {
	if uc.diag != nil {
		uc.diag.Record("Profile", payload, err)
	}
}

// profileFrom reads {user, activeSubscription, subscriptionHistory, transactions}.
// activeSubscription may be a subscription object, a plan object or a bare plan id.
func profileFrom(data []byte) *model.Profile {
	res := gjson.ParseBytes(data)
	p := &model.Profile{
		SubscriptionHistory: []model.Subscription{},
		Transactions:        []model.Transaction{},
	}
	if u := res.Get("user"); u.IsObject() {
		p.User = model.ParseUser([]byte(u.Raw))
	} else {
		p.User = model.ParseUser(data)
	}
	if s, ok := subscriptionFrom(res.Get("activeSubscription")); ok {
		p.ActiveSubscription = &s
	}
	for _, r := range res.Get("subscriptionHistory").Array() {
		if s, ok := subscriptionFrom(r); ok {
			p.SubscriptionHistory = append(p.SubscriptionHistory, s)
		}
	}
	for _, r := range res.Get("transactions").Array() {
		if !r.IsObject() {
			continue
		}
		amount, _, _ := parseMoney(r.Get("amount"))
		p.Transactions = append(p.Transactions, model.Transaction{
			ID:        firstString(r, "_id", "id"),
			Amount:    amount,
			Currency:  firstString(r, "currency"),
			Status:    firstString(r, "status"),
			PaymentID: firstString(r, "paymentId", "razorpayPaymentId"),
			Date:      parseTime(firstResult(r, "date", "createdAt")),
		})
	}
	return p
}

func subscriptionFrom(r gjson.Result) (model.Subscription, bool) {
	switch {
	case r.Type == gjson.String && r.Str != "":
		return model.Subscription{PlanID: r.Str}, true
	case !r.IsObject():
		return model.Subscription{}, false
	}
	s := model.Subscription{
		ID:        firstString(r, "subscriptionId", "razorpaySubscriptionId"),
		Status:    firstString(r, "status"),
		StartDate: parseTime(firstResult(r, "startDate", "start_date")),
		EndDate:   parseTime(firstResult(r, "endDate", "end_date", "expiryDate")),
	}
	plan := r.Get("plan")
	switch {
	case plan.IsObject():
		s.PlanID = planIDOf(plan)
		s.PlanName = firstString(plan, "name", "title")
		s.ID = firstString(r, "_id", "id", "subscriptionId")
	case plan.Type == gjson.String:
		s.PlanID = plan.Str
		s.ID = firstString(r, "_id", "id", "subscriptionId")
	case r.Get("planId").Exists():
		s.PlanID = firstString(r, "planId")
		s.ID = firstString(r, "_id", "id", "subscriptionId")
	default:
		// a plan object standing in for the subscription
		s.PlanID = planIDOf(r)
		s.PlanName = firstString(r, "name", "title")
	}
	if s.PlanName == "" {
		s.PlanName = firstString(r, "planName")
	}
	return s, s.PlanID != ""
}

func firstResult(r gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}
