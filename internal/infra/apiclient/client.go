// File: internal/infra/apiclient/client.go
package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/domain/model"
	"storefront-checkout/internal/domain/ports/adapter"
	"storefront-checkout/internal/domain/ports/repository"
	"storefront-checkout/internal/infra/logging"
	"storefront-checkout/internal/infra/metrics"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Tier names one transport in the fallback chain.
type Tier string

const (
	TierPrimary   Tier = "primary"
	TierSecondary Tier = "secondary"
	TierRaw       Tier = "raw"
)

const maxBodyBytes = 4 << 20

type Options struct {
	PrimaryURL     string
	SecondaryURL   string
	AttemptTimeout time.Duration
	// RawClient serves the last-resort tier; http.DefaultTransport when nil.
	RawClient *http.Client
	Dev       bool
}

// Client sends every backend request through primary, secondary and raw
// tiers in order, stopping at the first authoritative answer.
type Client struct {
	primary   *resty.Client
	secondary *resty.Client
	raw       *http.Client
	rawBase   string
	timeout   time.Duration

	sessions repository.SessionStore
	redirect adapter.AuthRedirector
	logger   *zerolog.Logger
	dev      bool

	clearMu sync.Mutex
}

var _ adapter.BackendAPI = (*Client)(nil)

func New(opts Options, sessions repository.SessionStore, redirect adapter.AuthRedirector, logger *zerolog.Logger) *Client {
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 10 * time.Second
	}
	raw := opts.RawClient
	if raw == nil {
		raw = &http.Client{}
	}
	return &Client{
		primary:   newResty(opts.PrimaryURL, opts.AttemptTimeout),
		secondary: newResty(opts.SecondaryURL, opts.AttemptTimeout),
		raw:       raw,
		rawBase:   strings.TrimRight(opts.SecondaryURL, "/"),
		timeout:   opts.AttemptTimeout,
		sessions:  sessions,
		redirect:  redirect,
		logger:    logging.OrNop(logger),
		dev:       opts.Dev,
	}
}

func newResty(base string, timeout time.Duration) *resty.Client {
	return resty.New().
		SetBaseURL(strings.TrimRight(base, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
}

func (c *Client) Get(ctx context.Context, endpoint string, query any) (*model.Envelope, error) {
	return c.Call(ctx, http.MethodGet, endpoint, query)
}

func (c *Client) Post(ctx context.Context, endpoint string, body any) (*model.Envelope, error) {
	return c.Call(ctx, http.MethodPost, endpoint, body)
}

func (c *Client) Put(ctx context.Context, endpoint string, body any) (*model.Envelope, error) {
	return c.Call(ctx, http.MethodPut, endpoint, body)
}

func (c *Client) Delete(ctx context.Context, endpoint string, body any) (*model.Envelope, error) {
	return c.Call(ctx, http.MethodDelete, endpoint, body)
}

type attemptResult struct {
	status int
	body   []byte
	err    error
}

type verdict int

const (
	verdictOK verdict = iota
	verdictFallback
	verdictUnauthorized
	verdictRejected
)

// Call performs one logical request. A 401 clears the session and stops the
// chain; any other 4xx is authoritative. Only transport failures, timeouts,
// 5xx and unparseable 2xx bodies move on to the next tier.
func (c *Client) Call(ctx context.Context, method, endpoint string, payload any) (*model.Envelope, error) {
	method = strings.ToUpper(method)
	endpoint = strings.TrimLeft(endpoint, "/")
	log := logging.With(ctx, c.logger).With().Str("http_method", method).Str("endpoint", endpoint).Logger()
	defer logging.TraceDuration(&log, "APIClient.Call")()

	body, query, err := encodePayload(method, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encode payload: %v", domain.ErrInvalidArgument, err)
	}
	token := c.currentToken(ctx)

	var (
		primaryErr error
		attempts   []error
	)
	for _, tier := range []Tier{TierPrimary, TierSecondary, TierRaw} {
		start := time.Now()
		res := c.attempt(ctx, tier, method, endpoint, token, body, query)
		v, result, env, aerr := classify(tier, res)
		metrics.ObserveBackendAttempt(string(tier), result, time.Since(start))

		switch v {
		case verdictOK:
			env.Tier = string(tier)
			log.Debug().Str("tier", string(tier)).Int("status", res.status).Dur("elapsed", time.Since(start)).Msg("backend call ok")
			return env, nil
		case verdictUnauthorized:
			log.Warn().Str("tier", string(tier)).Msg("backend rejected credentials; clearing session")
			c.expireSession(ctx, token, &log)
			return nil, aerr
		case verdictRejected:
			log.Info().Str("tier", string(tier)).Int("status", res.status).Err(aerr).Msg("backend rejected request")
			return nil, aerr
		}

		log.Warn().Str("tier", string(tier)).Str("result", result).Err(aerr).Msg("backend attempt failed; falling back")
		if primaryErr == nil {
			primaryErr = aerr
		}
		attempts = append(attempts, fmt.Errorf("%s: %w", tier, aerr))
		if ctx.Err() != nil {
			break
		}
	}

	metrics.IncBackendUnreachable()
	log.Error().Err(primaryErr).Int("attempts", len(attempts)).Msg("backend unreachable")
	return nil, &UnreachableError{Endpoint: endpoint, Primary: primaryErr, Attempts: attempts}
}

func (c *Client) attempt(ctx context.Context, tier Tier, method, endpoint, token string, body []byte, query url.Values) attemptResult {
	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if tier == TierRaw {
		return c.rawAttempt(actx, method, endpoint, token, body, query)
	}
	rc := c.primary
	if tier == TierSecondary {
		rc = c.secondary
	}
	req := rc.R().SetContext(actx)
	if token != "" {
		req.SetAuthToken(token)
	}
	if len(query) > 0 {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, endpoint)
	if err != nil {
		return attemptResult{err: err}
	}
	return attemptResult{status: resp.StatusCode(), body: resp.Body()}
}

// rawAttempt is the last-resort transport: plain net/http against the secondary base.
func (c *Client) rawAttempt(ctx context.Context, method, endpoint, token string, body []byte, query url.Values) attemptResult {
	u := c.rawBase + "/" + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return attemptResult{err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.raw.Do(req)
	if err != nil {
		return attemptResult{err: err}
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return attemptResult{err: err}
	}
	return attemptResult{status: resp.StatusCode, body: b}
}

func classify(tier Tier, res attemptResult) (verdict, string, *model.Envelope, error) {
	if res.err != nil {
		if isTimeout(res.err) {
			return verdictFallback, "timeout", nil, res.err
		}
		return verdictFallback, "transport", nil, res.err
	}
	switch {
	case res.status == http.StatusUnauthorized:
		return verdictUnauthorized, "unauthorized", nil, &StatusError{
			Tier: tier, Status: res.status, Message: bodyMessage(res.body), Err: domain.ErrSessionExpired,
		}
	case res.status >= 500:
		return verdictFallback, "server_error", nil, &StatusError{
			Tier: tier, Status: res.status, Message: bodyMessage(res.body), Err: ErrServerError,
		}
	case res.status >= 400:
		return verdictRejected, "rejected", nil, &StatusError{
			Tier: tier, Status: res.status, Message: bodyMessage(res.body), Err: domain.ErrRequestRejected,
		}
	case res.status >= 200 && res.status < 300:
		env, err := ParseEnvelope(res.status, res.body)
		if err != nil {
			return verdictFallback, "bad_body", nil, err
		}
		return verdictOK, "ok", env, nil
	}
	return verdictFallback, "bad_status", nil, fmt.Errorf("%w: %d", ErrBadStatus, res.status)
}

func bodyMessage(body []byte) string {
	env, err := ParseEnvelope(0, body)
	if err != nil {
		return ""
	}
	return env.Message
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (c *Client) currentToken(ctx context.Context) string {
	if c.sessions == nil {
		return ""
	}
	s, err := c.sessions.Load(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logging.With(ctx, c.logger).Warn().Err(err).Msg("session load failed; calling backend anonymously")
		}
		return ""
	}
	return s.Token
}

// expireSession clears the stored session only if it still holds the token
// the rejected request used, so concurrent 401s clear it once.
func (c *Client) expireSession(ctx context.Context, usedToken string, log *zerolog.Logger) {
	c.clearMu.Lock()
	defer c.clearMu.Unlock()

	if usedToken != "" && c.sessions != nil {
		cleared, err := c.clearIfToken(ctx, usedToken)
		if err != nil {
			log.Error().Err(err).Msg("failed to clear expired session")
		}
		if !cleared {
			log.Debug().Msg("session already cleared or replaced")
			return
		}
		metrics.IncSessionExpired()
		log.Info().Str("token", logging.Redact(usedToken, c.dev)).Msg("session cleared after 401")
	}
	if c.redirect != nil {
		c.redirect.RedirectToLogin(ctx, "session expired")
	}
}

func (c *Client) clearIfToken(ctx context.Context, token string) (bool, error) {
	if g, ok := c.sessions.(repository.GuardedSessionStore); ok {
		return g.ClearIfToken(ctx, token)
	}
	cur, err := c.sessions.Load(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if cur.Token != token {
		return false, nil
	}
	return true, c.sessions.Clear(ctx)
}
