// Package metrics registers the Prometheus instruments exposed on
// /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProviderCalls counts outbound provider operations by outcome.
	ProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skydeck_provider_calls_total",
		Help: "Cloud provider API calls by provider, operation and status.",
	}, []string{"provider", "operation", "status"})

	// TokenRefreshes counts OAuth refresh attempts by outcome.
	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skydeck_token_refreshes_total",
		Help: "OAuth token refresh attempts by provider and status.",
	}, []string{"provider", "status"})

	// HTTPRequests counts handled API requests.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skydeck_http_requests_total",
		Help: "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})

	// HTTPDuration observes request latency per route.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "skydeck_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// ObserveProviderCall records one provider operation.
func ObserveProviderCall(provider, operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ProviderCalls.WithLabelValues(provider, operation, status).Inc()
}

// ObserveTokenRefresh records one refresh attempt.
func ObserveTokenRefresh(provider string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	TokenRefreshes.WithLabelValues(provider, status).Inc()
}
