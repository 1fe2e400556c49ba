package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(purchaseTransitionsTotal, purchaseFailuresTotal, checkoutSessionsTotal)
}

var (
	purchaseTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchase_transitions_total",
			Help: "Purchase attempt state transitions.",
		},
		[]string{"from", "to"},
	)

	// kind is the error taxonomy name, charged is not_charged|maybe_charged.
	purchaseFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchase_failures_total",
			Help: "Failed purchase attempts by error kind.",
		},
		[]string{"kind", "charged"},
	)

	// outcome: opened|success|failure|cancel|expired
	checkoutSessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_sessions_total",
			Help: "Hosted checkout sessions by outcome.",
		},
		[]string{"provider", "outcome"},
	)
)

func IncPurchaseTransition(from, to string) {
	purchaseTransitionsTotal.WithLabelValues(norm(from), norm(to)).Inc()
}

func IncPurchaseFailure(kind, charged string) {
	purchaseFailuresTotal.WithLabelValues(norm(kind), norm(charged)).Inc()
}

func IncCheckoutSession(provider, outcome string) {
	checkoutSessionsTotal.WithLabelValues(norm(provider), norm(outcome)).Inc()
}
