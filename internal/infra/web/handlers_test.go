//go:build !integration

package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"storefront-checkout/internal/application"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/domain/model"
	"storefront-checkout/internal/infra/diagnostics"

	"github.com/rs/zerolog"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// --- Mock service ---

type mockStorefront struct {
	application.StorefrontService // embed for forward compatibility

	plans       []application.PlanView
	purchaseErr error
	purchase    *application.AttemptView
	selectErr   error
	discountErr error
	gotCode     string
	cleared     bool
	loggedOut   bool
	panicOn     string
}

func (m *mockStorefront) PlanViews(ctx context.Context) []application.PlanView {
	if m.panicOn == "plans" {
		panic("boom")
	}
	return m.plans
}

func (m *mockStorefront) SelectPlan(ctx context.Context, planID string) (*application.PlanView, error) {
	if m.selectErr != nil {
		return nil, m.selectErr
	}
	return &application.PlanView{Plan: model.Plan{ID: planID}}, nil
}

func (m *mockStorefront) ApplyDiscount(ctx context.Context, planID, code string) (*application.DiscountView, error) {
	m.gotCode = code
	if m.discountErr != nil {
		return nil, m.discountErr
	}
	return &application.DiscountView{Message: "Discount applied! You save 319.80."}, nil
}

func (m *mockStorefront) Purchase(ctx context.Context, planID string) (*application.AttemptView, error) {
	return m.purchase, m.purchaseErr
}

func (m *mockStorefront) Attempt(ctx context.Context, planID string) application.AttemptView {
	return application.AttemptView{Attempt: model.PurchaseAttempt{PlanKey: planID, Status: model.PurchaseIdle}, Purchasable: true}
}

func (m *mockStorefront) Session(ctx context.Context) application.SessionView {
	return application.SessionView{LoginRequired: true, LoginURL: "http://localhost:3000/login"}
}

func (m *mockStorefront) Logout(ctx context.Context) error {
	m.loggedOut = true
	return nil
}

func (m *mockStorefront) Diagnostics() []diagnostics.Entry {
	return []diagnostics.Entry{{Label: "Plans"}}
}

func (m *mockStorefront) ClearDiagnostics() { m.cleared = true }

func (m *mockStorefront) UserMessage(err error) string {
	return "msg:" + domain.KindName(err)
}

// --- Mock checkout host ---

type mockHost struct {
	resolved []string
	body     string
}

func (h *mockHost) RenderPage(w io.Writer, id string) error {
	if id != "cs_1" {
		return fmt.Errorf("checkout session: %w", domain.ErrNotFound)
	}
	_, err := io.WriteString(w, "<html>checkout cs_1</html>")
	return err
}

func (h *mockHost) Resolve(ctx context.Context, id, outcome string, body []byte) error {
	if id != "cs_1" {
		return fmt.Errorf("checkout session: %w", domain.ErrNotFound)
	}
	if outcome != "success" && outcome != "failure" && outcome != "cancel" {
		return fmt.Errorf("checkout outcome: %w", domain.ErrInvalidArgument)
	}
	h.resolved = append(h.resolved, outcome)
	h.body = string(body)
	return nil
}

func newTestRouter(svc *mockStorefront, host *mockHost) http.Handler {
	return NewServer(svc, host, 0, newTestLogger()).Router()
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != "" {
		rdr = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPlansHandler(t *testing.T) {
	svc := &mockStorefront{plans: []application.PlanView{{Plan: model.Plan{ID: "pro", Name: "Pro"}, Purchasable: true}}}
	r := newTestRouter(svc, &mockHost{})

	rec := do(r, http.MethodGet, "/api/plans", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d, body=%s", rec.Code, rec.Body.String())
	}
	var body struct {
		Items []application.PlanView `json:"items"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Items) != 1 || body.Items[0].Plan.ID != "pro" {
		t.Fatalf("items mismatch: %+v", body.Items)
	}
	if rec.Header().Get(traceHeader) == "" {
		t.Error("responses should carry a trace id")
	}
}

func TestPurchaseHandler(t *testing.T) {
	t.Run("accepted with checkout url", func(t *testing.T) {
		svc := &mockStorefront{purchase: &application.AttemptView{Attempt: model.PurchaseAttempt{
			PlanKey: "pro", Status: model.PurchaseAwaitingPayment, CheckoutURL: "http://127.0.0.1:8088/checkout/cs_1",
		}}}
		r := newTestRouter(svc, &mockHost{})

		rec := do(r, http.MethodPost, "/api/plans/pro/purchase", "")

		if rec.Code != http.StatusAccepted {
			t.Fatalf("want 202, got %d, body=%s", rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), "/checkout/cs_1") {
			t.Errorf("body = %s", rec.Body.String())
		}
	})

	tests := []struct {
		name string
		err  error
		want int
		kind string
	}{
		{"not signed in", domain.NewStepError("purchase", "", domain.ErrNotAuthenticated, nil), http.StatusUnauthorized, "not_authenticated"},
		{"admin", domain.ErrForbiddenRole, http.StatusForbidden, "forbidden_role"},
		{"unknown plan", fmt.Errorf("%w: %w", domain.ErrInvalidPlan, domain.ErrNotFound), http.StatusNotFound, "invalid_plan"},
		{"in flight", domain.ErrPurchaseInProgress, http.StatusConflict, "purchase_in_progress"},
		{"current plan", domain.ErrAlreadySubscribed, http.StatusConflict, "already_subscribed"},
		{"incomplete profile", domain.ErrIncompleteProfile, http.StatusUnprocessableEntity, "incomplete_profile"},
		{"order failed", domain.NewStepError("create_order", "pro", domain.ErrOrderCreationFailed, domain.ErrBackendUnreachable), http.StatusBadGateway, "order_creation_failed"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(&mockStorefront{purchaseErr: tt.err}, &mockHost{})

			rec := do(r, http.MethodPost, "/api/plans/pro/purchase", "")

			if rec.Code != tt.want {
				t.Fatalf("want %d, got %d, body=%s", tt.want, rec.Code, rec.Body.String())
			}
			var body errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error != tt.kind || body.Message != "msg:"+tt.kind {
				t.Errorf("body = %+v", body)
			}
			if body.Attempt != nil {
				t.Errorf("no attempt expected, got %v", body.Attempt)
			}
		})
	}

	t.Run("failed attempt is returned with the error", func(t *testing.T) {
		svc := &mockStorefront{
			purchaseErr: domain.NewStepError("open_payment", "pro", domain.ErrPaymentSessionUnavailable, nil),
			purchase: &application.AttemptView{
				Attempt: model.PurchaseAttempt{PlanKey: "pro", Status: model.PurchaseFailed, Charged: model.NotCharged},
				Message: "The payment window could not be opened. You were not charged; please try again.",
			},
		}
		r := newTestRouter(svc, &mockHost{})

		rec := do(r, http.MethodPost, "/api/plans/pro/purchase", "")

		if rec.Code != http.StatusBadGateway {
			t.Fatalf("want 502, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "not_charged") {
			t.Errorf("attempt should be in the body: %s", rec.Body.String())
		}
	})
}

func TestDiscountHandler(t *testing.T) {
	svc := &mockStorefront{}
	r := newTestRouter(svc, &mockHost{})

	rec := do(r, http.MethodPost, "/api/plans/pro/discount", `{"code":"SAVE20"}`)
	if rec.Code != http.StatusOK || svc.gotCode != "SAVE20" {
		t.Fatalf("want 200 with code forwarded, got %d (%q)", rec.Code, svc.gotCode)
	}

	rec = do(r, http.MethodPost, "/api/plans/pro/discount", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: want 400, got %d", rec.Code)
	}

	svc.discountErr = domain.ErrDiscountAlreadyApplied
	rec = do(r, http.MethodPost, "/api/plans/pro/discount", `{"code":"SAVE20"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("already applied: want 409, got %d", rec.Code)
	}

	svc.discountErr = fmt.Errorf("%w: expired", domain.ErrInvalidDiscount)
	rec = do(r, http.MethodPost, "/api/plans/pro/discount", `{"code":"OLD"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid code: want 422, got %d", rec.Code)
	}
}

func TestCheckoutRoutes(t *testing.T) {
	host := &mockHost{}
	r := newTestRouter(&mockStorefront{}, host)

	rec := do(r, http.MethodGet, "/checkout/cs_1", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "checkout cs_1") {
		t.Fatalf("page: %d %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q", ct)
	}

	rec = do(r, http.MethodGet, "/checkout/gone", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown page: want 404, got %d", rec.Code)
	}

	rec = do(r, http.MethodPost, "/checkout/cs_1/SUCCESS", `{"razorpay_payment_id":"pay_123"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("outcome: want 204, got %d, body=%s", rec.Code, rec.Body.String())
	}
	if len(host.resolved) != 1 || host.resolved[0] != "success" || !strings.Contains(host.body, "pay_123") {
		t.Errorf("resolved = %v body = %q", host.resolved, host.body)
	}

	rec = do(r, http.MethodPost, "/checkout/cs_1/refund", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad outcome: want 400, got %d", rec.Code)
	}
	rec = do(r, http.MethodPost, "/checkout/gone/cancel", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown session: want 404, got %d", rec.Code)
	}
}

func TestMiscRoutes(t *testing.T) {
	svc := &mockStorefront{}
	r := newTestRouter(svc, &mockHost{})

	if rec := do(r, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("healthz: %d %q", rec.Code, rec.Body.String())
	}
	if rec := do(r, http.MethodGet, "/metrics", ""); rec.Code != http.StatusOK {
		t.Errorf("metrics: %d", rec.Code)
	}
	if rec := do(r, http.MethodGet, "/api/session", ""); !strings.Contains(rec.Body.String(), `"loginRequired":true`) {
		t.Errorf("session body = %s", rec.Body.String())
	}
	if rec := do(r, http.MethodPost, "/api/session/logout", ""); rec.Code != http.StatusNoContent || !svc.loggedOut {
		t.Errorf("logout: %d", rec.Code)
	}
	if rec := do(r, http.MethodGet, "/api/diagnostics", ""); !strings.Contains(rec.Body.String(), `"label":"Plans"`) {
		t.Errorf("diagnostics body = %s", rec.Body.String())
	}
	if rec := do(r, http.MethodDelete, "/api/diagnostics", ""); rec.Code != http.StatusNoContent || !svc.cleared {
		t.Errorf("clear diagnostics: %d", rec.Code)
	}
	if rec := do(r, http.MethodGet, "/api/plans/pro/attempt", ""); !strings.Contains(rec.Body.String(), `"status":"idle"`) {
		t.Errorf("attempt body = %s", rec.Body.String())
	}
}

func TestRecoverMiddleware(t *testing.T) {
	r := newTestRouter(&mockStorefront{panicOn: "plans"}, &mockHost{})

	rec := do(r, http.MethodGet, "/api/plans", "")

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("panic should become 500, got %d", rec.Code)
	}
}

func TestTraceIDIsPropagated(t *testing.T) {
	r := newTestRouter(&mockStorefront{}, &mockHost{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(traceHeader, "trace-abc")
	rec := httptest.NewRecorder()

	r.ServeHTTP(rec, req)

	if got := rec.Header().Get(traceHeader); got != "trace-abc" {
		t.Errorf("trace header = %q", got)
	}
}
