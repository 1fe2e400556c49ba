package repository

import (
	"context"

	"storefront-checkout/internal/domain/model"
)

// SessionStore is the durable client storage holding the token and user.
type SessionStore interface {
	// Load returns domain.ErrNotFound when nobody is signed in.
	Load(ctx context.Context) (*model.BackendSession, error)
	Save(ctx context.Context, s *model.BackendSession) error
	Clear(ctx context.Context) error
}

// GuardedSessionStore can clear the session atomically, and only while it
// still holds the given token. Stores shared across processes implement it.
type GuardedSessionStore interface {
	ClearIfToken(ctx context.Context, token string) (bool, error)
}
