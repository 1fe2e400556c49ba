package repository

import (
	"context"

	"storefront-checkout/internal/domain/model"
)

// AttemptStore mirrors purchase attempts so a restart can show the last known state.
type AttemptStore interface {
	Save(ctx context.Context, a model.PurchaseAttempt) error
	List(ctx context.Context) ([]model.PurchaseAttempt, error)
}
