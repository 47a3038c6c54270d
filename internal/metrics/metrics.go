// Package metrics holds the prometheus collectors shared by the resolver,
// the provider clients and the HTTP server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Resolutions counts resolved queries by cache state.
	Resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "toonrank_resolutions_total",
		Help: "Resolved queries by cache state.",
	}, []string{"state"})

	// ResolveErrors counts failed resolutions by stage.
	ResolveErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "toonrank_resolve_errors_total",
		Help: "Failed resolutions by stage.",
	}, []string{"stage"})

	// ProviderRequests counts outbound provider calls.
	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "toonrank_provider_requests_total",
		Help: "Outbound provider requests by provider and outcome.",
	}, []string{"provider", "outcome"})

	// ResolveDuration observes end-to-end resolution latency.
	ResolveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "toonrank_resolve_duration_seconds",
		Help:    "Resolution latency by cache state.",
		Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
	}, []string{"state"})
)

// ObserveProvider records the outcome of one provider call.
func ObserveProvider(provider string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ProviderRequests.WithLabelValues(provider, outcome).Inc()
}
