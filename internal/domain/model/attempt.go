package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PurchaseStatus string

const (
	PurchaseIdle            PurchaseStatus = "idle"
	PurchaseCreatingOrder   PurchaseStatus = "creating_order"
	PurchaseAwaitingPayment PurchaseStatus = "awaiting_payment" // provider session open
	PurchaseVerifying       PurchaseStatus = "verifying"
	PurchaseSucceeded       PurchaseStatus = "succeeded"
	PurchaseFailed          PurchaseStatus = "failed"
)

var purchaseTransitions = map[PurchaseStatus][]PurchaseStatus{
	PurchaseIdle:            {PurchaseCreatingOrder},
	PurchaseCreatingOrder:   {PurchaseAwaitingPayment, PurchaseFailed},
	PurchaseAwaitingPayment: {PurchaseVerifying, PurchaseIdle, PurchaseFailed},
	PurchaseVerifying:       {PurchaseSucceeded, PurchaseFailed},
	PurchaseFailed:          {PurchaseIdle},
}

// IsTerminal reports whether a new purchase may start from s.
func (s PurchaseStatus) IsTerminal() bool {
	return s == "" || s == PurchaseIdle || s == PurchaseSucceeded || s == PurchaseFailed
}

// CanTransition reports whether s -> to is an edge of the purchase state machine.
func (s PurchaseStatus) CanTransition(to PurchaseStatus) bool {
	if s == "" {
		s = PurchaseIdle
	}
	for _, next := range purchaseTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type AttemptKind string

const (
	AttemptOrder        AttemptKind = "order"
	AttemptSubscription AttemptKind = "subscription"
)

// ChargeState tells the user whether money may have moved.
type ChargeState string

const (
	NotCharged   ChargeState = "not_charged"
	MaybeCharged ChargeState = "maybe_charged"
)

// PurchaseAttempt is the per-plan purchase record owned by the tracker.
type PurchaseAttempt struct {
	ID                string           `json:"id,omitempty"`
	PlanKey           string           `json:"planKey"`
	PlanName          string           `json:"planName,omitempty"`
	Status            PurchaseStatus   `json:"status"`
	Kind              AttemptKind      `json:"kind,omitempty"`
	OrderRef          string           `json:"orderRef,omitempty"`
	Amount            decimal.Decimal  `json:"amount"`
	Currency          string           `json:"currency,omitempty"`
	Discount          *AppliedDiscount `json:"discount,omitempty"`
	PaymentID         string           `json:"paymentId,omitempty"`
	CheckoutSessionID string           `json:"checkoutSessionId,omitempty"`
	CheckoutURL       string           `json:"checkoutUrl,omitempty"`
	LastError         error            `json:"-"`
	ErrorKind         string           `json:"errorKind,omitempty"`
	ErrorMessage      string           `json:"errorMessage,omitempty"`
	Charged           ChargeState      `json:"charged,omitempty"`
	Outcome           string           `json:"outcome,omitempty"`
	CreatedAt         time.Time        `json:"createdAt,omitempty"`
	UpdatedAt         time.Time        `json:"updatedAt,omitempty"`
}

// IdleAttempt is the implicit record of a plan nobody tried to buy yet.
func IdleAttempt(planKey string) PurchaseAttempt {
	return PurchaseAttempt{PlanKey: planKey, Status: PurchaseIdle}
}

// Label names the plan in diagnostics and messages.
func (a *PurchaseAttempt) Label() string {
	if a.PlanName != "" {
		return a.PlanName
	}
	return a.PlanKey
}

// Clone returns a copy that shares no mutable state with a.
func (a *PurchaseAttempt) Clone() PurchaseAttempt {
	c := *a
	if a.Discount != nil {
		d := *a.Discount
		c.Discount = &d
	}
	return c
}
