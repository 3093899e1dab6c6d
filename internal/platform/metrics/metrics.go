// Package metrics exposes Prometheus instrumentation for the claims service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	eligibilityChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eligibility_checks_total",
			Help: "Eligibility checks by verdict source.",
		},
		[]string{"source", "eligible"},
	)

	eligibilityCacheErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eligibility_cache_errors_total",
		Help: "Cache failures tolerated during eligibility checks.",
	})

	claimSubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claim_submissions_total",
			Help: "Claim submissions by outcome.",
		},
		[]string{"outcome"},
	)

	ediGenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edi_generations_total",
			Help: "837P generation attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

// Init registers all collectors with the default registry. Call once at
// startup.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		eligibilityChecksTotal,
		eligibilityCacheErrors,
		claimSubmissionsTotal,
		ediGenerationsTotal,
	)
}

// Handler serves the /metrics scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts, latency, and in-flight gauge. The route
// template is used as the path label so IDs do not explode cardinality.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			httpInFlight.Inc()
			start := time.Now()

			err := next(c)

			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			status := strconv.Itoa(c.Response().Status)
			method := c.Request().Method

			httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
			httpRequestsTotal.WithLabelValues(method, path, status).Inc()
			httpInFlight.Dec()

			return err
		}
	}
}

// ObserveEligibilityCheck counts one completed check. Source is "cache" or
// "store".
func ObserveEligibilityCheck(source string, eligible bool) {
	eligibilityChecksTotal.WithLabelValues(source, strconv.FormatBool(eligible)).Inc()
}

// ObserveEligibilityCacheError counts a cache failure that the check survived.
func ObserveEligibilityCacheError() {
	eligibilityCacheErrors.Inc()
}

// ObserveClaimSubmission counts one submission attempt. Outcome is
// "submitted" or "rejected".
func ObserveClaimSubmission(outcome string) {
	claimSubmissionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveEDIGeneration counts one 837P generation attempt. Outcome is "ok" or
// "error".
func ObserveEDIGeneration(outcome string) {
	ediGenerationsTotal.WithLabelValues(outcome).Inc()
}
