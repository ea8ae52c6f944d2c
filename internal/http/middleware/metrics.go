// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file exposes Prometheus instrumentation for HTTP traffic. Metrics()
// records request counts, latency, in-flight requests and request body sizes.
// Labels stay bounded:
//
//   - method: HTTP verb
//   - route:  the registered Gin route (e.g. /api/v1/sessions/:id/messages);
//     requests that matched no route share the value "unmatched", so
//     scanners probing random paths cannot grow the series count
//   - status: numeric status code, on the request counter only
//
// Pipeline-level measurements (reply path, speech outcome, send duration)
// live in the observability package. Collectors are safe for concurrent use.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const unmatchedRoute = "unmatched"

var (
	// httpReqs counts requests by method, route and status.
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	// Reply latency is dominated by the generative and speech providers,
	// hence the long tail buckets.
	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"method", "route"},
	)

	// httpInflight is the number of requests currently being served.
	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// httpReqSize observes declared body sizes; uploads dominate the top buckets.
	httpReqSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_size_bytes",
			Help:    "Size of HTTP request bodies in bytes, when known.",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8), // 256B..4MiB
		},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpReqSize)
}

// Metrics returns middleware that records http_requests_total,
// http_request_duration_seconds, http_requests_inflight and
// http_request_size_bytes for every request.
//
// Usage:
//
//	r.Use(middleware.Metrics())
//	r.GET("/metrics", middleware.MetricsHandler())
//
// Notes:
//   - Register it after Recovery so panicking requests are counted as 500
//   - Chunked bodies (ContentLength -1) are not observed for size
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := c.Request.Method
		httpReqs.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		if n := c.Request.ContentLength; n > 0 {
			httpReqSize.WithLabelValues(method, route).Observe(float64(n))
		}
	}
}

// MetricsHandler serves the default registry in the Prometheus text format,
// including the Go runtime and process collectors.
func MetricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
