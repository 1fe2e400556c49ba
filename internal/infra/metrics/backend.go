package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		backendRequestsTotal,
		backendRequestDuration,
		backendUnreachableTotal,
		sessionExpiredTotal,
	)
}

var (
	// tier: primary|secondary|raw
	// result: ok|transport|timeout|server_error|bad_body|unauthorized|rejected
	backendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_backend_requests_total",
			Help: "Backend request attempts by transport tier and result.",
		},
		[]string{"tier", "result"},
	)

	backendRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_backend_request_duration_seconds",
			Help:    "Duration of a single backend attempt by tier.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"tier"},
	)

	backendUnreachableTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_backend_unreachable_total",
			Help: "Calls for which every transport tier failed.",
		},
	)

	sessionExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_session_expired_total",
			Help: "Sessions cleared after the backend answered 401.",
		},
	)
)

func ObserveBackendAttempt(tier, result string, d time.Duration) {
	backendRequestsTotal.WithLabelValues(norm(tier), norm(result)).Inc()
	backendRequestDuration.WithLabelValues(norm(tier)).Observe(d.Seconds())
}

func IncBackendUnreachable() { backendUnreachableTotal.Inc() }

func IncSessionExpired() { sessionExpiredTotal.Inc() }
