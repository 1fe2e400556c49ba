package payment

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"strings"
	"sync"
	"time"

	"storefront-checkout/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

var _ adapter.PaymentProvider = (*ManualProvider)(nil)

// ManualProvider is an in-process checkout for development and tests.
// Its page offers pay/fail/cancel buttons instead of a real widget.
type ManualProvider struct {
	*registry
	publicURL string

	mu  sync.Mutex
	seq int64
}

func NewManualProvider(publicURL string, ttl time.Duration, logger *zerolog.Logger) *ManualProvider {
	return &ManualProvider{
		registry:  newRegistry("manual", ttl, logger),
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

func (p *ManualProvider) Name() string { return "manual" }

func (p *ManualProvider) Open(ctx context.Context, cfg adapter.PaymentSessionConfig, handlers adapter.PaymentHandlers) (*adapter.PaymentSession, error) {
	s, err := p.open(ctx, cfg, handlers)
	if err != nil {
		return nil, err
	}
	return &adapter.PaymentSession{ID: s.id, URL: p.publicURL + "/checkout/" + s.id, ExpiresAt: s.expiresAt}, nil
}

// Resolve settles the session. A success without a payment id gets a
// generated one so the flow can be driven with an empty body.
func (p *ManualProvider) Resolve(ctx context.Context, sessionID, outcome string, body []byte) error {
	if outcome == OutcomeSuccess && parseSuccess(body).PaymentID == "" {
		body = []byte(fmt.Sprintf(`{"paymentId":%q}`, p.next()))
	}
	return p.settle(ctx, sessionID, outcome, body)
}

func (p *ManualProvider) RenderPage(w io.Writer, sessionID string) error {
	s, ok := p.lookup(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	return manualPage.Execute(w, map[string]any{
		"Description": s.cfg.Description,
		"Amount":      s.cfg.Amount.StringFixed(2),
		"Currency":    s.cfg.Currency,
		"Ref":         s.cfg.OrderRef,
		"Callback":    "/checkout/" + sessionID + "/",
	})
}

func (p *ManualProvider) next() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	return fmt.Sprintf("manual-%d", p.seq)
}

var manualPage = template.Must(template.New("manual").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>{{.Description}}</title></head>
<body>
<h1>{{.Description}}</h1>
<p>{{.Amount}} {{.Currency}} &middot; {{.Ref}}</p>
<button onclick="report('success')">Pay</button>
<button onclick="report('failure')">Fail</button>
<button onclick="report('cancel')">Cancel</button>
<script>
var base = {{.Callback}};
function report(outcome) {
  var body = outcome === "failure" ? {error: {code: "MANUAL_DECLINE", description: "Declined on the manual checkout page"}} : {};
  fetch(base + outcome, {method: "POST", headers: {"Content-Type": "application/json"}, body: JSON.stringify(body)})
    .then(function () { document.body.textContent = "You can close this window."; });
}
</script>
</body>
</html>
`))
