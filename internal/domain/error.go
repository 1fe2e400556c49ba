package domain

import (
	"errors"
	"fmt"
)

var (
	// Purchase pipeline taxonomy
	ErrInvalidPlan           = errors.New("plan is missing or malformed")
	ErrForbiddenRole         = errors.New("role is not allowed to purchase plans")
	ErrOrderCreationFailed   = errors.New("order creation failed")
	ErrBackendUnreachable    = errors.New("backend unreachable")
	ErrVerificationFailed    = errors.New("payment verification failed")
	ErrInvalidDiscount       = errors.New("invalid discount code")
	ErrPaymentCancelled      = errors.New("payment cancelled")
	ErrProviderPaymentFailed = errors.New("payment provider reported a failure")

	// Session and request errors
	ErrSessionExpired   = errors.New("session expired")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrRequestRejected  = errors.New("request rejected by backend")

	// Client-side guards
	ErrPurchaseInProgress        = errors.New("a purchase for this plan is already in progress")
	ErrDiscountAlreadyApplied    = errors.New("discount already applied")
	ErrIncompleteProfile         = errors.New("profile is missing name or email")
	ErrAlreadySubscribed         = errors.New("plan is already the active subscription")
	ErrPaymentSessionUnavailable = errors.New("payment session could not be opened")
	ErrInvalidTransition         = errors.New("invalid purchase state transition")
	ErrStaleAttempt              = errors.New("callback refers to a superseded attempt")

	// Common
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

// StepError records which pipeline step failed for which plan.
// errors.Is matches both Kind and the underlying cause.
type StepError struct {
	Step    string
	PlanKey string
	Kind    error
	Err     error
}

func (e *StepError) Error() string {
	msg := e.Step
	if e.PlanKey != "" {
		msg += " [" + e.PlanKey + "]"
	}
	if e.Kind != nil {
		msg += ": " + e.Kind.Error()
	}
	if e.Err != nil && !errors.Is(e.Kind, e.Err) {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StepError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewStepError builds a StepError; a nil cause keeps only the kind.
func NewStepError(step, planKey string, kind, cause error) *StepError {
	return &StepError{Step: step, PlanKey: planKey, Kind: kind, Err: cause}
}

// ProviderFailureError keeps the provider's failure details verbatim.
type ProviderFailureError struct {
	Code        string
	Description string
	Source      string
	Reason      string
	PaymentID   string
}

func (e *ProviderFailureError) Error() string {
	if e.Description == "" {
		return ErrProviderPaymentFailed.Error()
	}
	return fmt.Sprintf("%s: %s", ErrProviderPaymentFailed.Error(), e.Description)
}

func (e *ProviderFailureError) Is(target error) bool { return target == ErrProviderPaymentFailed }

// Kind returns the taxonomy sentinel err belongs to, or nil.
func Kind(err error) error {
	for _, k := range []error{
		ErrSessionExpired, ErrNotAuthenticated, ErrForbiddenRole, ErrInvalidPlan,
		ErrIncompleteProfile, ErrAlreadySubscribed, ErrPurchaseInProgress, ErrDiscountAlreadyApplied,
		ErrInvalidDiscount, ErrOrderCreationFailed, ErrPaymentSessionUnavailable,
		ErrVerificationFailed, ErrProviderPaymentFailed, ErrPaymentCancelled,
		ErrBackendUnreachable, ErrRequestRejected, ErrInvalidTransition,
		ErrStaleAttempt, ErrNotFound, ErrInvalidArgument,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// KindName is the stable identifier used in attempt records and API responses.
func KindName(err error) string {
	switch Kind(err) {
	case ErrSessionExpired:
		return "session_expired"
	case ErrNotAuthenticated:
		return "not_authenticated"
	case ErrForbiddenRole:
		return "forbidden_role"
	case ErrInvalidPlan:
		return "invalid_plan"
	case ErrIncompleteProfile:
		return "incomplete_profile"
	case ErrAlreadySubscribed:
		return "already_subscribed"
	case ErrPurchaseInProgress:
		return "purchase_in_progress"
	case ErrDiscountAlreadyApplied:
		return "discount_already_applied"
	case ErrInvalidDiscount:
		return "invalid_discount"
	case ErrOrderCreationFailed:
		return "order_creation_failed"
	case ErrPaymentSessionUnavailable:
		return "payment_session_unavailable"
	case ErrVerificationFailed:
		return "verification_failed"
	case ErrProviderPaymentFailed:
		return "provider_payment_failed"
	case ErrPaymentCancelled:
		return "payment_cancelled"
	case ErrBackendUnreachable:
		return "backend_unreachable"
	case ErrRequestRejected:
		return "request_rejected"
	case ErrInvalidTransition:
		return "invalid_transition"
	case ErrStaleAttempt:
		return "stale_attempt"
	case ErrNotFound:
		return "not_found"
	case ErrInvalidArgument:
		return "invalid_argument"
	case nil:
		if err == nil {
			return ""
		}
	}
	return "internal"
}
