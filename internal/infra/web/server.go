package web

import (
	"context"
	"io"
	"net/http"
	"time"

	"storefront-checkout/internal/application"
	"storefront-checkout/internal/infra/logging"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// CheckoutHost serves hosted checkout pages and receives their outcomes.
type CheckoutHost interface {
	RenderPage(w io.Writer, sessionID string) error
	Resolve(ctx context.Context, sessionID, outcome string, body []byte) error
}

// Server is the local storefront API the plans page talks to.
type Server struct {
	svc      application.StorefrontService
	checkout CheckoutHost
	timeout  time.Duration
	log      *zerolog.Logger
}

func NewServer(svc application.StorefrontService, checkout CheckoutHost, timeout time.Duration, logger *zerolog.Logger) *Server {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Server{
		svc:      svc,
		checkout: checkout,
		timeout:  timeout,
		log:      logging.OrNop(logger),
	}
}

// Router builds the chi router with every route and the middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), Recover(s.log), RequestLog(s.log), Timeout(s.timeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/session", s.handleSession)
		r.Post("/session/logout", s.handleLogout)
		r.Get("/profile", s.handleProfile)

		r.Get("/plans", s.handlePlans)
		r.Route("/plans/{planID}", func(r chi.Router) {
			r.Post("/select", s.handleSelect)
			r.Post("/discount", s.handleDiscount)
			r.Post("/purchase", s.handlePurchase)
			r.Get("/attempt", s.handleAttempt)
		})

		r.Get("/diagnostics", s.handleDiagnostics)
		r.Delete("/diagnostics", s.handleClearDiagnostics)
	})

	if s.checkout != nil {
		r.Get("/checkout/{sessionID}", s.handleCheckoutPage)
		r.Post("/checkout/{sessionID}/{outcome}", s.handleCheckoutOutcome)
	}
	return r
}
