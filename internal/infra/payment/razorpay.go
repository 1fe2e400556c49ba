package payment

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"storefront-checkout/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const razorpayScript = "https://checkout.razorpay.com/v1/checkout.js"

var _ adapter.PaymentProvider = (*RazorpayProvider)(nil)

type RazorpayConfig struct {
	KeyID      string
	PublicURL  string // base the browser reaches this process on
	SessionTTL time.Duration
}

// CheckoutOptions is the object handed to the Razorpay checkout widget.
type CheckoutOptions struct {
	Key            string            `json:"key"`
	Amount         int64             `json:"amount,omitempty"` // minor units
	Currency       string            `json:"currency,omitempty"`
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	OrderID        string            `json:"order_id,omitempty"`
	SubscriptionID string            `json:"subscription_id,omitempty"`
	Prefill        map[string]string `json:"prefill"`
	Theme          map[string]string `json:"theme"`
	Notes          map[string]string `json:"notes"`
}

// RazorpayProvider hosts a checkout page per session and turns the widget's
// handler, payment.failed and modal.ondismiss events into handler calls.
type RazorpayProvider struct {
	*registry
	keyID     string
	publicURL string
}

func NewRazorpayProvider(cfg RazorpayConfig, logger *zerolog.Logger) *RazorpayProvider {
	return &RazorpayProvider{
		registry:  newRegistry("razorpay", cfg.SessionTTL, logger),
		keyID:     cfg.KeyID,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
	}
}

func (p *RazorpayProvider) Name() string { return "razorpay" }

func (p *RazorpayProvider) Open(ctx context.Context, cfg adapter.PaymentSessionConfig, handlers adapter.PaymentHandlers) (*adapter.PaymentSession, error) {
	if p.keyID == "" {
		return nil, fmt.Errorf("%w: razorpay key id is not configured", ErrInvalidSession)
	}
	if cfg.Kind != "subscription" && MinorUnits(cfg.Amount) <= 0 {
		return nil, fmt.Errorf("%w: amount %s is not payable", ErrInvalidSession, cfg.Amount)
	}
	s, err := p.open(ctx, cfg, handlers)
	if err != nil {
		return nil, err
	}
	return &adapter.PaymentSession{ID: s.id, URL: p.publicURL + "/checkout/" + s.id, ExpiresAt: s.expiresAt}, nil
}

// Options builds the widget options for an open session.
func (p *RazorpayProvider) Options(sessionID string) (CheckoutOptions, error) {
	s, ok := p.lookup(sessionID)
	if !ok {
		return CheckoutOptions{}, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	c := s.cfg
	o := CheckoutOptions{
		Key:         p.keyID,
		Name:        c.Name,
		Description: c.Description,
		Prefill: map[string]string{
			"name":    c.Prefill.Name,
			"email":   c.Prefill.Email,
			"contact": c.Prefill.Contact,
		},
		Theme: map[string]string{"color": c.ThemeColor},
		Notes: map[string]string{"plan_key": c.PlanKey, "attempt_id": c.AttemptID},
	}
	if c.Kind == "subscription" {
		o.SubscriptionID = c.OrderRef
	} else {
		o.OrderID = c.OrderRef
		o.Amount = MinorUnits(c.Amount)
		o.Currency = c.Currency
	}
	return o, nil
}

// Resolve settles a session with the outcome the checkout page reported.
func (p *RazorpayProvider) Resolve(ctx context.Context, sessionID, outcome string, body []byte) error {
	return p.settle(ctx, sessionID, outcome, body)
}

// RenderPage writes the hosted checkout page for sessionID.
func (p *RazorpayProvider) RenderPage(w io.Writer, sessionID string) error {
	o, err := p.Options(sessionID)
	if err != nil {
		return err
	}
	return checkoutPage.Execute(w, pageData{
		Title:    o.Description,
		Script:   razorpayScript,
		Options:  o,
		Callback: "/checkout/" + sessionID + "/",
	})
}

// MinorUnits converts an amount to the provider's integer minor units (paise).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

type pageData struct {
	Title    string
	Script   string
	Options  CheckoutOptions
	Callback string
}

var checkoutPage = template.Must(template.New("checkout").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<script src="{{.Script}}"></script>
</head>
<body>
<p id="status">Opening secure checkout...</p>
<script>
(function () {
  var base = {{.Callback}};
  var settled = false;
  function report(outcome, payload) {
    if (settled) { return; }
    settled = true;
    fetch(base + outcome, {
      method: "POST",
      headers: {"Content-Type": "application/json"},
      body: JSON.stringify(payload || {})
    }).then(function () {
      document.getElementById("status").textContent = "You can close this window.";
    });
  }
  var options = {{.Options}};
  options.handler = function (resp) { report("success", resp); };
  options.modal = {ondismiss: function () { report("cancel"); }};
  var rzp = new Razorpay(options);
  rzp.on("payment.failed", function (resp) { report("failure", resp); });
  rzp.open();
})();
</script>
</body>
</html>
`))
