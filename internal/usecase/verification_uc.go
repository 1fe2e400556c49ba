// File: internal/usecase/verification_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/domain/model"
	"storefront-checkout/internal/domain/ports/adapter"
	"storefront-checkout/internal/infra/logging"
	"storefront-checkout/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// ProfileRefresher reloads the signed-in user's entitlements.
type ProfileRefresher interface {
	Refresh(ctx context.Context) (*model.Profile, error)
}

// PaymentOutcomeHandler consumes the provider's one-shot outcome for an attempt.
type PaymentOutcomeHandler interface {
	HandleSuccess(ctx context.Context, planKey, attemptID string, res adapter.PaymentSuccess) (model.PurchaseAttempt, error)
	HandleFailure(ctx context.Context, planKey, attemptID string, res adapter.PaymentFailure) (model.PurchaseAttempt, error)
	HandleCancel(ctx context.Context, planKey, attemptID string) (model.PurchaseAttempt, error)
}

var _ PaymentOutcomeHandler = (*VerificationUseCase)(nil)

type VerificationUseCase struct {
	api     adapter.BackendAPI
	tracker *PurchaseTracker
	profile ProfileRefresher
	tasks   adapter.TaskQueue
	diag    adapter.Diagnostics
	timeout time.Duration
	logger  *zerolog.Logger
}

// NewVerificationUseCase wires the handler; profile and tasks may be nil.
func NewVerificationUseCase(api adapter.BackendAPI, tracker *PurchaseTracker, profile ProfileRefresher, tasks adapter.TaskQueue, diag adapter.Diagnostics, timeout time.Duration, logger *zerolog.Logger) *VerificationUseCase {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &VerificationUseCase{
		api:     api,
		tracker: tracker,
		profile: profile,
		tasks:   tasks,
		diag:    diag,
		timeout: timeout,
		logger:  logging.OrNop(logger),
	}
}

// HandleSuccess confirms the payment with the backend. Money may have moved,
// so any failure from here on is reported as maybe-charged.
func (uc *VerificationUseCase) HandleSuccess(ctx context.Context, planKey, attemptID string, res adapter.PaymentSuccess) (model.PurchaseAttempt, error) {
	// the callback's request may end before the backend answers
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.timeout)
	defer cancel()
	ctx = logging.WithAttemptID(logging.WithPlanKey(ctx, planKey), attemptID)
	log := logging.With(ctx, uc.logger)
	defer logging.TraceDuration(log, "VerificationUC.HandleSuccess")()

	a, err := uc.tracker.Set(ctx, planKey, attemptID, model.PurchaseVerifying, WithPayment(res.PaymentID))
	if err != nil {
		log.Warn().Err(err).Str("payment_id", res.PaymentID).Msg("ignoring success callback")
		return a, err
	}

	payload := map[string]any{
		"paymentId": res.PaymentID,
		"signature": res.Signature,
		"amount":    a.Amount.InexactFloat64(),
		"planId":    planKey,
	}
	if a.Kind == model.AttemptSubscription {
		payload["subscriptionId"] = firstNonEmpty(res.SubscriptionID, a.OrderRef)
	} else {
		payload["orderId"] = firstNonEmpty(res.OrderID, a.OrderRef)
	}

	start := time.Now()
	env, err := uc.api.Call(ctx, http.MethodPost, "verify-payment", payload)
	label := "Verify Payment (" + a.Label() + ")"
	if err == nil && !env.Success {
		err = fmt.Errorf("backend did not verify payment: %s", messageOr(env.Message, "verification rejected"))
	}
	if err != nil {
		uc.record(label, envData(env), err)
		metrics.ObservePaymentVerify("fail", verifyReason(err, env), time.Since(start))
		metrics.IncPayment("unverified")
		verr := domain.NewStepError("verify_payment", planKey, domain.ErrVerificationFailed, err)
		failed, serr := uc.tracker.Set(ctx, planKey, attemptID, model.PurchaseFailed, WithFailure(verr, model.MaybeCharged))
		if serr != nil {
			log.Error().Err(serr).Msg("could not record verification failure")
		}
		log.Error().Err(err).Str("payment_id", res.PaymentID).Msg("payment verification failed; manual review required")
		return failed, verr
	}
	uc.record(label, env.Data, nil)
	metrics.ObservePaymentVerify("ok", "", time.Since(start))

	done, err := uc.tracker.Set(ctx, planKey, attemptID, model.PurchaseSucceeded, WithOutcome("paid"))
	if err != nil {
		log.Error().Err(err).Msg("could not record successful verification")
		return done, err
	}
	metrics.IncPayment("succeeded")
	metrics.AddPaymentRevenue(done.Currency, done.Amount.InexactFloat64())
	log.Info().Str("payment_id", res.PaymentID).Msg("payment verified")

	uc.refreshProfile(ctx, log)
	return done, nil
}

// HandleFailure records the provider's failure verbatim.
func (uc *VerificationUseCase) HandleFailure(ctx context.Context, planKey, attemptID string, res adapter.PaymentFailure) (model.PurchaseAttempt, error) {
	ctx = logging.WithAttemptID(logging.WithPlanKey(context.WithoutCancel(ctx), planKey), attemptID)
	perr := &domain.ProviderFailureError{
		Code:        res.Code,
		Description: res.Description,
		Source:      res.Source,
		Reason:      res.Reason,
		PaymentID:   res.PaymentID,
	}
	a, err := uc.tracker.Set(ctx, planKey, attemptID, model.PurchaseFailed, WithPayment(res.PaymentID), WithFailure(perr, model.NotCharged))
	if err != nil {
		logging.With(ctx, uc.logger).Warn().Err(err).Msg("ignoring failure callback")
		return a, err
	}
	uc.record("Payment Failed ("+a.Label()+")", res, perr)
	metrics.IncPayment("failed")
	return a, perr
}

// HandleCancel returns the attempt to idle. Cancelling is an outcome, not an error.
func (uc *VerificationUseCase) HandleCancel(ctx context.Context, planKey, attemptID string) (model.PurchaseAttempt, error) {
	ctx = logging.WithAttemptID(logging.WithPlanKey(context.WithoutCancel(ctx), planKey), attemptID)
	a, err := uc.tracker.Set(ctx, planKey, attemptID, model.PurchaseIdle, WithOutcome("cancelled"))
	if err != nil {
		logging.With(ctx, uc.logger).Warn().Err(err).Msg("ignoring cancel callback")
		return a, err
	}
	metrics.IncPayment("cancelled")
	logging.With(ctx, uc.logger).Info().Msg(domain.ErrPaymentCancelled.Error())
	return a, nil
}

func (uc *VerificationUseCase) refreshProfile(ctx context.Context, log *zerolog.Logger) {
	if uc.profile == nil {
		return
	}
	refresh := func(ctx context.Context) error {
		_, err := uc.profile.Refresh(ctx)
		return err
	}
	if uc.tasks == nil {
		if err := refresh(ctx); err != nil {
			log.Warn().Err(err).Msg("profile refresh after payment failed")
		}
		return
	}
	if err := uc.tasks.Submit(refresh); err != nil {
		log.Warn().Err(err).Msg("profile refresh dropped")
	}
}

func (uc *VerificationUseCase) record(label string, payload any, err error) {
	if uc.diag != nil {
		uc.diag.Record(label, payload, err)
	}
}

func verifyReason(err error, env *model.Envelope) string {
	switch {
	case env != nil && !env.Success:
		return "not_verified"
	case errors.Is(err, domain.ErrBackendUnreachable):
		return "transport"
	case errors.Is(err, domain.ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, domain.ErrRequestRejected):
		return "rejected"
	}
	return "unknown"
}

func envData(env *model.Envelope) any {
	if env == nil {
		return nil
	}
	return env.Data
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
