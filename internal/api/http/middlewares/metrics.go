package middlewares

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// probePaths are polled by orchestrators and scrapers. They are kept out of
// the request metrics and logged at debug.
var probePaths = map[string]bool{
	"/healthcheck": true,
	"/ready":       true,
	"/metrics":     true,
}

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forwarder_http_requests_total",
			Help: "HTTP requests by route and status class",
		},
		[]string{"method", "route", "class"},
	)

	// The handler returns once the producer has buffered the record, so
	// latencies sit well below the default buckets.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forwarder_http_request_duration_seconds",
			Help:    "HTTP request duration by route",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "route"},
	)

	httpRequestBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forwarder_http_request_bytes",
			Help:    "Declared request body size by route",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		},
		[]string{"route"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "forwarder_http_requests_in_flight",
			Help: "HTTP requests currently being handled",
		},
	)
)

// statusClass folds a status code into 2xx, 4xx, 5xx and so on, keeping the
// label set small.
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}

// PrometheusMetrics records count, latency and body size per route. Probe
// paths are skipped.
func PrometheusMetrics(c *gin.Context) {
	if probePaths[c.Request.URL.Path] {
		c.Next()
		return
	}

	httpRequestsInFlight.Inc()
	defer httpRequestsInFlight.Dec()
	start := time.Now()

	c.Next()

	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	httpRequestsTotal.WithLabelValues(c.Request.Method, route, statusClass(c.Writer.Status())).Inc()
	httpRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	if c.Request.ContentLength > 0 {
		httpRequestBytes.WithLabelValues(route).Observe(float64(c.Request.ContentLength))
	}
}
