package usecase

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/domain/model"
	"storefront-checkout/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// --- Backend ---

type apiCall struct {
	Method   string
	Endpoint string
	Payload  map[string]any
}

type mockBackend struct {
	mu       sync.Mutex
	calls    []apiCall
	CallFunc func(ctx context.Context, method, endpoint string, payload any) (*model.Envelope, error)
}

func (m *mockBackend) Call(ctx context.Context, method, endpoint string, payload any) (*model.Envelope, error) {
	m.mu.Lock()
	m.calls = append(m.calls, apiCall{Method: method, Endpoint: endpoint, Payload: asMap(payload)})
	m.mu.Unlock()
	if m.CallFunc != nil {
		return m.CallFunc(ctx, method, endpoint, payload)
	}
	return okEnv(`{}`), nil
}

func (m *mockBackend) Calls(endpoint string) []apiCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []apiCall
	for _, c := range m.calls {
		if c.Endpoint == endpoint {
			out = append(out, c)
		}
	}
	return out
}

// asMap round-trips payload through JSON so tests see what goes on the wire.
func asMap(payload any) map[string]any {
	if payload == nil {
		return nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m
}

func okEnv(data string) *model.Envelope {
	return &model.Envelope{Success: true, Data: json.RawMessage(data), Status: 200, Tier: "primary"}
}

func declined(msg string) *model.Envelope {
	return &model.Envelope{Success: false, Data: json.RawMessage(`{}`), Message: msg, Status: 200, Tier: "primary"}
}

// routes answers by endpoint; unknown endpoints fail as unreachable.
func routes(m map[string]func(payload map[string]any) (*model.Envelope, error)) func(context.Context, string, string, any) (*model.Envelope, error) {
	return func(_ context.Context, _ string, endpoint string, payload any) (*model.Envelope, error) {
		if h, found := m[endpoint]; found {
			return h(asMap(payload))
		}
		return nil, domain.ErrBackendUnreachable
	}
}

// --- Session store ---

type memSessionStore struct {
	mu        sync.Mutex
	sess      *model.BackendSession
	LoadError error
	clears    int
}

func (m *memSessionStore) Load(ctx context.Context) (*model.BackendSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	if m.sess == nil {
		return nil, domain.ErrNotFound
	}
	cp := *m.sess
	return &cp, nil
}

func (m *memSessionStore) Save(ctx context.Context, s *model.BackendSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sess = &cp
	return nil
}

func (m *memSessionStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess = nil
	m.clears++
	return nil
}

func signedIn() *memSessionStore {
	return &memSessionStore{sess: &model.BackendSession{
		Token: "opaque-token",
		User:  model.User{ID: "u1", Name: "Asha Rao", Email: "asha@example.com", Phone: "9990001111", Role: model.RoleUser},
	}}
}

// --- Redirect ---

type countingRedirect struct {
	mu      sync.Mutex
	reasons []string
}

func (r *countingRedirect) RedirectToLogin(ctx context.Context, reason string) {
	r.mu.Lock()
	r.reasons = append(r.reasons, reason)
	r.mu.Unlock()
}

func (r *countingRedirect) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reasons)
}

// --- Payment provider ---

type mockProvider struct {
	mu       sync.Mutex
	opened   []adapter.PaymentSessionConfig
	handlers []adapter.PaymentHandlers
	OpenErr  error
}

func (p *mockProvider) Name() string { return "mock" }

func (p *mockProvider) Open(ctx context.Context, cfg adapter.PaymentSessionConfig, h adapter.PaymentHandlers) (*adapter.PaymentSession, error) {
	if p.OpenErr != nil {
		return nil, p.OpenErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opened = append(p.opened, cfg)
	p.handlers = append(p.handlers, h)
	return &adapter.PaymentSession{ID: "cs_" + cfg.AttemptID, URL: "http://localhost/checkout/cs_" + cfg.AttemptID}, nil
}

func (p *mockProvider) Last() (adapter.PaymentSessionConfig, adapter.PaymentHandlers) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.opened)
	return p.opened[n-1], p.handlers[n-1]
}

// --- Tasks ---

// inlineTasks runs submitted work synchronously and remembers how many ran.
type inlineTasks struct {
	mu  sync.Mutex
	ran int
}

func (q *inlineTasks) Submit(task func(ctx context.Context) error) error {
	q.mu.Lock()
	q.ran++
	q.mu.Unlock()
	return task(context.Background())
}

// --- Profile ---

type mockProfile struct {
	mu          sync.Mutex
	refreshes   int
	RefreshFunc func(ctx context.Context) (*model.Profile, error)
}

func (m *mockProfile) Refresh(ctx context.Context) (*model.Profile, error) {
	m.mu.Lock()
	m.refreshes++
	m.mu.Unlock()
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx)
	}
	return &model.Profile{}, nil
}

// --- Attempt store ---

type memAttemptStore struct {
	mu    sync.Mutex
	saved map[string]model.PurchaseAttempt
}

func newMemAttemptStore(list ...model.PurchaseAttempt) *memAttemptStore {
	s := &memAttemptStore{saved: map[string]model.PurchaseAttempt{}}
	for _, a := range list {
		s.saved[a.PlanKey] = a
	}
	return s
}

func (s *memAttemptStore) Save(ctx context.Context, a model.PurchaseAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[a.PlanKey] = a
	return nil
}

func (s *memAttemptStore) List(ctx context.Context) ([]model.PurchaseAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.PurchaseAttempt, 0, len(s.saved))
	for _, a := range s.saved {
		out = append(out, a)
	}
	return out, nil
}

func (s *memAttemptStore) Get(planKey string) (model.PurchaseAttempt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, found := s.saved[planKey]
	return a, found
}
