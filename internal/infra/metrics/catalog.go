package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(catalogLookupsTotal) }

// result: hit when FindPlan answers from the loaded catalog, reload when a
// miss forces a fresh plans request, unknown when the reload still lacks the id.
var catalogLookupsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_catalog_lookups_total",
		Help: "Plan lookups against the cached catalog.",
	},
	[]string{"result"},
)

func IncCatalogLookup(result string) {
	catalogLookupsTotal.WithLabelValues(norm(result)).Inc()
}
