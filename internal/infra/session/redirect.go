package session

import (
	"context"
	"sync"

	"storefront-checkout/internal/domain/ports/adapter"
	"storefront-checkout/internal/infra/logging"

	"github.com/rs/zerolog"
)

var _ adapter.AuthRedirector = (*LoginRedirector)(nil)

// LoginRedirector raises a "sign in again" flag the UI polls through the
// session endpoint.
type LoginRedirector struct {
	mu       sync.Mutex
	loginURL string
	pending  bool
	reason   string
	logger   *zerolog.Logger
}

func NewLoginRedirector(loginURL string, logger *zerolog.Logger) *LoginRedirector {
	return &LoginRedirector{loginURL: loginURL, logger: logging.OrNop(logger)}
}

func (r *LoginRedirector) RedirectToLogin(ctx context.Context, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = true
	r.reason = reason
	logging.With(ctx, r.logger).Info().Str("reason", reason).Str("login_url", r.loginURL).Msg("login required")
}

// Pending reports whether a redirect is outstanding, and why.
func (r *LoginRedirector) Pending() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending, r.reason
}

// Acknowledge drops the flag once a fresh session exists.
func (r *LoginRedirector) Acknowledge() {
	r.mu.Lock()
	r.pending = false
	r.reason = ""
	r.mu.Unlock()
}

func (r *LoginRedirector) LoginURL() string { return r.loginURL }
