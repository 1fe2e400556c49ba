package adapter

import (
	"context"

	"storefront-checkout/internal/domain/model"
)

// BackendAPI is the resilient request port used by every use case.
type BackendAPI interface {
	Call(ctx context.Context, method, endpoint string, payload any) (*model.Envelope, error)
}

// AuthRedirector is told when the user must sign in again.
type AuthRedirector interface {
	RedirectToLogin(ctx context.Context, reason string)
}

// Diagnostics records the latest request/response per label for troubleshooting.
type Diagnostics interface {
	Record(label string, payload any, err error)
}

// TaskQueue runs fire-and-forget work off the caller's goroutine.
type TaskQueue interface {
	Submit(task func(ctx context.Context) error) error
}
