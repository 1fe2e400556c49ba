package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Subscription is one entry of the user's subscription history.
type Subscription struct {
	ID        string     `json:"id,omitempty"`
	PlanID    string     `json:"planId,omitempty"`
	PlanName  string     `json:"planName,omitempty"`
	Status    string     `json:"status,omitempty"`
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}

// IsActive reports whether the subscription still grants access at now.
func (s *Subscription) IsActive(now time.Time) bool {
	if s == nil || s.PlanID == "" {
		return false
	}
	if s.Status != "" && s.Status != "active" && s.Status != "authenticated" {
		return false
	}
	return s.EndDate == nil || now.Before(*s.EndDate)
}

type Transaction struct {
	ID        string          `json:"id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency,omitempty"`
	Status    string          `json:"status,omitempty"`
	PaymentID string          `json:"paymentId,omitempty"`
	Date      *time.Time      `json:"date,omitempty"`
}

// Profile is the account overview served by auth/profile.
type Profile struct {
	User                User           `json:"user"`
	ActiveSubscription  *Subscription  `json:"activeSubscription,omitempty"`
	SubscriptionHistory []Subscription `json:"subscriptionHistory"`
	Transactions        []Transaction  `json:"transactions"`
	FetchedAt           time.Time      `json:"fetchedAt"`
}

// CurrentPlanID returns the plan the user is subscribed to, if any.
func (p *Profile) CurrentPlanID(now time.Time) string {
	if p == nil || !p.ActiveSubscription.IsActive(now) {
		return ""
	}
	return p.ActiveSubscription.PlanID
}
