// File: internal/usecase/purchase_tracker.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/domain/model"
	"storefront-checkout/internal/domain/ports/adapter"
	"storefront-checkout/internal/domain/ports/repository"
	"storefront-checkout/internal/infra/logging"
	"storefront-checkout/internal/infra/metrics"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// AttemptUpdate mutates fields of an attempt during a transition.
type AttemptUpdate func(a *model.PurchaseAttempt)

func WithOrder(ref string) AttemptUpdate {
	return func(a *model.PurchaseAttempt) { a.OrderRef = ref }
}

func WithPlanName(name string) AttemptUpdate {
	return func(a *model.PurchaseAttempt) { a.PlanName = name }
}

func WithCheckout(sessionID, url string) AttemptUpdate {
	return func(a *model.PurchaseAttempt) {
		a.CheckoutSessionID = sessionID
		a.CheckoutURL = url
	}
}

func WithPayment(paymentID string) AttemptUpdate {
	return func(a *model.PurchaseAttempt) {
		if paymentID != "" {
			a.PaymentID = paymentID
		}
	}
}

func WithFailure(err error, charged model.ChargeState) AttemptUpdate {
	return func(a *model.PurchaseAttempt) {
		a.LastError = err
		a.ErrorKind = domain.KindName(err)
		a.ErrorMessage = err.Error()
		a.Charged = charged
	}
}

func WithOutcome(outcome string) AttemptUpdate {
	return func(a *model.PurchaseAttempt) { a.Outcome = outcome }
}

// PurchaseTracker is the only writer of purchase attempts. Every change is
// validated against the state machine, logged, counted and mirrored.
type PurchaseTracker struct {
	mu       sync.Mutex
	attempts map[string]*model.PurchaseAttempt
	store    repository.AttemptStore
	diag     adapter.Diagnostics
	logger   *zerolog.Logger
	now      func() time.Time
}

// NewPurchaseTracker builds a tracker; store and diag may be nil.
func NewPurchaseTracker(store repository.AttemptStore, diag adapter.Diagnostics, logger *zerolog.Logger) *PurchaseTracker {
	return &PurchaseTracker{
		attempts: map[string]*model.PurchaseAttempt{},
		store:    store,
		diag:     diag,
		logger:   logging.OrNop(logger),
		now:      time.Now,
	}
}

// Get returns the attempt for planKey, or an idle record.
func (t *PurchaseTracker) Get(planKey string) model.PurchaseAttempt {
	t.mu.Lock()
	defer t.mu.Unlock()
	if a, ok := t.attempts[planKey]; ok {
		return a.Clone()
	}
	return model.IdleAttempt(planKey)
}

// Purchasable reports whether a new purchase for planKey may start.
func (t *PurchaseTracker) Purchasable(planKey string) bool {
	return t.Get(planKey).Status.IsTerminal()
}

// Snapshot returns every known attempt ordered by plan key.
func (t *PurchaseTracker) Snapshot() []model.PurchaseAttempt {
	t.mu.Lock()
	out := make([]model.PurchaseAttempt, 0, len(t.attempts))
	for _, a := range t.attempts {
		out = append(out, a.Clone())
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].PlanKey < out[j].PlanKey })
	return out
}

// Begin atomically admits a new attempt for planKey in creating_order, or
// rejects it with ErrPurchaseInProgress while another one is in flight.
func (t *PurchaseTracker) Begin(ctx context.Context, planKey string, kind model.AttemptKind, amount decimal.Decimal, currency string, discount *model.AppliedDiscount, updates ...AttemptUpdate) (model.PurchaseAttempt, error) {
	t.mu.Lock()
	prev, exists := t.attempts[planKey]
	if exists && !prev.Status.IsTerminal() {
		status := prev.Status
		t.mu.Unlock()
		return model.PurchaseAttempt{}, fmt.Errorf("%w: plan %q is %s", domain.ErrPurchaseInProgress, planKey, status)
	}
	from := model.PurchaseIdle
	if exists {
		from = prev.Status
	}
	now := t.now()
	a := &model.PurchaseAttempt{
		ID:        ulid.Make().String(),
		PlanKey:   planKey,
		Status:    model.PurchaseCreatingOrder,
		Kind:      kind,
		Amount:    amount,
		Currency:  currency,
		Discount:  discount,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, u := range updates {
		u(a)
	}
	t.attempts[planKey] = a
	snap := a.Clone()
	t.mu.Unlock()

	if from == model.PurchaseFailed {
		metrics.IncPurchaseTransition(string(from), string(model.PurchaseIdle))
		from = model.PurchaseIdle
	}
	t.observe(ctx, string(from), snap)
	return snap, nil
}

// Set moves the attempt for planKey to status `to`. A non-empty attemptID
// must match the current attempt, so late callbacks cannot touch a newer one.
func (t *PurchaseTracker) Set(ctx context.Context, planKey, attemptID string, to model.PurchaseStatus, updates ...AttemptUpdate) (model.PurchaseAttempt, error) {
	t.mu.Lock()
	a, ok := t.attempts[planKey]
	if !ok {
		t.mu.Unlock()
		return model.IdleAttempt(planKey), fmt.Errorf("%w: no attempt for plan %q", domain.ErrInvalidTransition, planKey)
	}
	if attemptID != "" && a.ID != attemptID {
		cur := a.Clone()
		t.mu.Unlock()
		return cur, fmt.Errorf("%w: %s is not the current attempt %s", domain.ErrStaleAttempt, attemptID, cur.ID)
	}
	from := a.Status
	if !from.CanTransition(to) {
		cur := a.Clone()
		t.mu.Unlock()
		return cur, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}
	a.Status = to
	if to == model.PurchaseIdle {
		a.LastError, a.ErrorKind, a.ErrorMessage, a.Charged = nil, "", "", ""
	}
	for _, u := range updates {
		u(a)
	}
	a.UpdatedAt = t.now()
	snap := a.Clone()
	t.mu.Unlock()

	t.observe(ctx, string(from), snap)
	return snap, nil
}

// Annotate updates fields of the current attempt without changing its status.
func (t *PurchaseTracker) Annotate(ctx context.Context, planKey, attemptID string, updates ...AttemptUpdate) (model.PurchaseAttempt, error) {
	t.mu.Lock()
	a, ok := t.attempts[planKey]
	if !ok || (attemptID != "" && a.ID != attemptID) {
		t.mu.Unlock()
		return model.IdleAttempt(planKey), fmt.Errorf("%w: attempt %s for plan %q", domain.ErrStaleAttempt, attemptID, planKey)
	}
	for _, u := range updates {
		u(a)
	}
	a.UpdatedAt = t.now()
	snap := a.Clone()
	t.mu.Unlock()

	t.mirror(ctx, snap)
	return snap, nil
}

// Restore loads mirrored attempts. Attempts interrupted mid-flight are
// settled: an open checkout is gone, so it returns to idle; an interrupted
// verification stays failed with a maybe-charged flag.
func (t *PurchaseTracker) Restore(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	list, err := t.store.List(ctx)
	if err != nil {
		return fmt.Errorf("restore attempts: %w", err)
	}
	var settled []model.PurchaseAttempt
	t.mu.Lock()
	for i := range list {
		a := list[i]
		if a.ErrorMessage != "" {
			a.LastError = errors.New(a.ErrorMessage)
		}
		from := a.Status
		switch from {
		case model.PurchaseCreatingOrder:
			WithFailure(domain.NewStepError("restore", a.PlanKey, domain.ErrOrderCreationFailed, errors.New("interrupted by restart")), model.NotCharged)(&a)
			a.Status = model.PurchaseFailed
		case model.PurchaseAwaitingPayment:
			a.Status = model.PurchaseIdle
			a.Outcome = "expired"
		case model.PurchaseVerifying:
			WithFailure(domain.NewStepError("restore", a.PlanKey, domain.ErrVerificationFailed, errors.New("interrupted by restart")), model.MaybeCharged)(&a)
			a.Status = model.PurchaseFailed
		}
		if a.Status != from {
			a.UpdatedAt = t.now()
			settled = append(settled, a.Clone())
		}
		t.attempts[a.PlanKey] = &a
	}
	t.mu.Unlock()

	for _, a := range settled {
		if a.Status == model.PurchaseFailed && t.diag != nil {
			t.diag.Record("Restore ("+a.Label()+")", a, a.LastError)
		}
		t.mirror(ctx, a)
	}
	t.logger.Info().Int("attempts", len(list)).Int("settled", len(settled)).Msg("purchase attempts restored")
	return nil
}

func (t *PurchaseTracker) observe(ctx context.Context, from string, a model.PurchaseAttempt) {
	metrics.IncPurchaseTransition(from, string(a.Status))
	ev := t.logger.Info()
	if a.Status == model.PurchaseFailed {
		metrics.IncPurchaseFailure(a.ErrorKind, string(a.Charged))
		ev = t.logger.Warn().Err(a.LastError).Str("charged", string(a.Charged))
	}
	if id := logging.TraceID(ctx); id != "" {
		ev = ev.Str("trace_id", id)
	}
	ev.Str("plan_key", a.PlanKey).Str("attempt_id", a.ID).
		Str("from", from).Str("to", string(a.Status)).
		Msg("purchase transition")
	t.mirror(ctx, a)
}

func (t *PurchaseTracker) mirror(ctx context.Context, a model.PurchaseAttempt) {
	if t.store == nil {
		return
	}
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := t.store.Save(mctx, a); err != nil {
		t.logger.Warn().Err(err).Str("plan_key", a.PlanKey).Msg("failed to mirror purchase attempt")
	}
}
