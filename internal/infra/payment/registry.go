package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/domain/ports/adapter"
	"storefront-checkout/internal/infra/logging"
	"storefront-checkout/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// Outcomes a checkout page can report.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeCancel  = "cancel"
	outcomeExpired = "expired"
)

var (
	// ErrUnknownSession is returned for ids that were never opened or are already settled.
	ErrUnknownSession = fmt.Errorf("checkout session: %w", domain.ErrNotFound)
	ErrUnknownOutcome = fmt.Errorf("checkout outcome: %w", domain.ErrInvalidArgument)
	ErrInvalidSession = errors.New("invalid checkout session config")
)

type checkoutSession struct {
	id        string
	cfg       adapter.PaymentSessionConfig
	handlers  adapter.PaymentHandlers
	expiresAt time.Time
	timer     *time.Timer
}

// registry holds open checkout sessions and settles each exactly once.
// Sessions nobody reports back on are cancelled after ttl.
type registry struct {
	provider string
	ttl      time.Duration
	logger   *zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*checkoutSession
}

func newRegistry(provider string, ttl time.Duration, logger *zerolog.Logger) *registry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &registry{
		provider: provider,
		ttl:      ttl,
		logger:   logging.OrNop(logger),
		now:      time.Now,
		sessions: map[string]*checkoutSession{},
	}
}

func (r *registry) open(ctx context.Context, cfg adapter.PaymentSessionConfig, handlers adapter.PaymentHandlers) (*checkoutSession, error) {
	if cfg.OrderRef == "" {
		return nil, fmt.Errorf("%w: missing order reference", ErrInvalidSession)
	}
	if cfg.PlanKey == "" {
		return nil, fmt.Errorf("%w: missing plan key", ErrInvalidSession)
	}
	if handlers.OnSuccess == nil || handlers.OnFailure == nil || handlers.OnCancel == nil {
		return nil, fmt.Errorf("%w: every outcome needs a handler", ErrInvalidSession)
	}
	s := &checkoutSession{
		id:        uuid.NewString(),
		cfg:       cfg,
		handlers:  handlers,
		expiresAt: r.now().Add(r.ttl),
	}
	// the expiry must not depend on the request that opened the session
	expireCtx := context.WithoutCancel(ctx)
	r.mu.Lock()
	r.sessions[s.id] = s
	s.timer = time.AfterFunc(r.ttl, func() {
		if err := r.settle(expireCtx, s.id, outcomeExpired, nil); err == nil {
			logging.With(expireCtx, r.logger).Info().Str("checkout_session", s.id).Msg("checkout session expired")
		}
	})
	r.mu.Unlock()

	metrics.IncCheckoutSession(r.provider, "opened")
	logging.With(ctx, r.logger).Debug().Str("checkout_session", s.id).Time("expires_at", s.expiresAt).Msg("checkout session opened")
	return s, nil
}

func (r *registry) lookup(id string) (*checkoutSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// settle removes the session and fires the handler for outcome. A second
// report for the same session finds nothing and returns ErrUnknownSession.
func (r *registry) settle(ctx context.Context, id, outcome string, body []byte) error {
	switch outcome {
	case OutcomeSuccess, OutcomeFailure, OutcomeCancel, outcomeExpired:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOutcome, outcome)
	}
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
		s.timer.Stop()
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}

	ctx = logging.WithSessID(logging.WithAttemptID(logging.WithPlanKey(ctx, s.cfg.PlanKey), s.cfg.AttemptID), id)
	metrics.IncCheckoutSession(r.provider, outcome)
	switch outcome {
	case OutcomeSuccess:
		s.handlers.OnSuccess(ctx, parseSuccess(body))
	case OutcomeFailure:
		s.handlers.OnFailure(ctx, parseFailure(body))
	default:
		s.handlers.OnCancel(ctx)
	}
	return nil
}

// Pending returns the number of sessions awaiting an outcome.
func (r *registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// parseSuccess reads the checkout handler payload in Razorpay's field names,
// also accepting camelCase.
func parseSuccess(body []byte) adapter.PaymentSuccess {
	res := gjson.ParseBytes(body)
	return adapter.PaymentSuccess{
		PaymentID:      first(res, "razorpay_payment_id", "paymentId"),
		OrderID:        first(res, "razorpay_order_id", "orderId"),
		SubscriptionID: first(res, "razorpay_subscription_id", "subscriptionId"),
		Signature:      first(res, "razorpay_signature", "signature"),
	}
}

// parseFailure reads the payment.failed event, with or without the error wrapper.
func parseFailure(body []byte) adapter.PaymentFailure {
	res := gjson.ParseBytes(body)
	e := res.Get("error")
	if !e.IsObject() {
		e = res
	}
	f := adapter.PaymentFailure{
		Code:        first(e, "code"),
		Description: first(e, "description"),
		Source:      first(e, "source"),
		Step:        first(e, "step"),
		Reason:      first(e, "reason"),
		PaymentID:   first(e, "metadata.payment_id", "paymentId"),
	}
	if f.Description == "" {
		f.Description = "Payment failed"
	}
	return f
}

func first(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := r.Get(p).String(); v != "" {
			return v
		}
	}
	return ""
}
