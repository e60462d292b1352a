package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_api_requests_total",
			Help: "Total number of API requests processed",
		},
		[]string{"method", "route", "status"},
	)

	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_api_request_duration_seconds",
			Help:    "API request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	apiInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_api_inflight_requests",
			Help: "Number of API requests currently being served",
		},
	)
)

// Metrics returns a Fiber middleware recording request counts, latencies and
// the in-flight gauge. The matched route template is used as the route label
// so per-UUID paths do not explode cardinality.
func Metrics() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		apiInFlight.Inc()
		defer apiInFlight.Dec()

		err := c.Next()

		route := c.Path()
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path
		}

		labels := prometheus.Labels{
			"method": c.Method(),
			"route":  route,
			"status": strconv.Itoa(c.Response().StatusCode()),
		}
		apiRequestsTotal.With(labels).Inc()
		apiRequestDuration.With(labels).Observe(time.Since(start).Seconds())

		return err
	}
}
