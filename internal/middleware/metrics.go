package middleware

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arturoeanton/campus-market/internal/domain"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campus_market_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campus_market_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	sessionEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campus_market_session_events_total",
			Help: "Session lifecycle transitions by event",
		},
		[]string{"provider", "event"},
	)

	storeMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campus_market_store_mutations_total",
			Help: "Marketplace store mutations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
)

// Metrics records request count and latency per route pattern.
func Metrics() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		method := c.Method()

		err := c.Next()

		route := c.Route().Path
		status := c.Response().StatusCode()
		if err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		return err
	}
}

// MetricsHandler exposes the prometheus registry.
func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

// RecordSessionEvent counts a session lifecycle transition.
func RecordSessionEvent(provider string, event domain.SessionEvent) {
	if provider == "" {
		provider = "none"
	}
	sessionEventsTotal.WithLabelValues(provider, string(event)).Inc()
}

// RecordStoreMutation counts a marketplace store mutation.
func RecordStoreMutation(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	storeMutationsTotal.WithLabelValues(operation, outcome).Inc()
}
