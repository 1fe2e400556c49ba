package adapter

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentSessionConfig is everything the provider needs to open a checkout.
type PaymentSessionConfig struct {
	PlanKey     string
	AttemptID   string
	Kind        string // order|subscription
	OrderRef    string // provider order or subscription id
	Amount      decimal.Decimal
	Currency    string
	Name        string // merchant display name
	Description string
	ThemeColor  string
	Prefill     Prefill
}

type Prefill struct {
	Name    string
	Email   string
	Contact string
}

// PaymentSuccess is the provider's success payload.
type PaymentSuccess struct {
	PaymentID      string
	OrderID        string
	SubscriptionID string
	Signature      string
}

// PaymentFailure carries the provider's failure details verbatim.
type PaymentFailure struct {
	Code        string
	Description string
	Source      string
	Step        string
	Reason      string
	PaymentID   string
}

// PaymentHandlers receive the outcome of an opened session.
// Exactly one of them fires per session.
type PaymentHandlers struct {
	OnSuccess func(ctx context.Context, res PaymentSuccess)
	OnFailure func(ctx context.Context, res PaymentFailure)
	OnCancel  func(ctx context.Context)
}

// PaymentSession identifies an opened checkout.
type PaymentSession struct {
	ID        string
	URL       string // where the user completes payment
	ExpiresAt time.Time
}

// PaymentProvider is the hex port for the external checkout widget.
type PaymentProvider interface {
	Name() string

	// Open registers a checkout session and returns where the user pays.
	// Handlers are invoked later, from whatever goroutine delivers the outcome.
	Open(ctx context.Context, cfg PaymentSessionConfig, handlers PaymentHandlers) (*PaymentSession, error)
}
