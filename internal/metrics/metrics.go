// Package metrics holds the Prometheus collectors for the HTTP surface
// and the claim workflow.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts all HTTP requests by route template
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration records request duration in seconds
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ClaimsTotal counts claim attempts by outcome (success, already_taken,
	// external_error, invalid)
	ClaimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subhub_claims_total",
			Help: "Total number of subdomain claim attempts by outcome",
		},
		[]string{"outcome"},
	)

	// OrphanRecordsFlagged counts DNS records flagged for reconciliation
	OrphanRecordsFlagged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subhub_orphan_records_flagged_total",
			Help: "Total number of orphan DNS records flagged for cleanup",
		},
	)
)

// MustRegister registers all collectors with the default registry. Call
// exactly once from main.
func MustRegister() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ClaimsTotal,
		OrphanRecordsFlagged,
	)
}

// Handler returns the /metrics endpoint handler
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
