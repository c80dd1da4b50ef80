package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"tenantgate/internal/core/identity"
	"tenantgate/pkg/logger"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tenantgate_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tenantgate_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Logger middleware logs HTTP requests with timing, status and principal,
// and records request metrics.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(c.Request.Method, route).Observe(latency.Seconds())

		// Request context carries identity and tenant set further down the chain.
		ctx := c.Request.Context()
		entry := log.WithContext(ctx).With(
			"method", c.Request.Method,
			"path", path,
			"route", route,
			"status", status,
			"latency_ms", latency.Milliseconds(),
			"client_ip", c.ClientIP(),
			"authenticated", identity.Current(ctx).IsAuthenticated(),
		)
		if errs := c.Errors.ByType(gin.ErrorTypePrivate).String(); errs != "" {
			entry = entry.With("error", errs)
		}

		switch {
		case status >= 500:
			entry.Errorw("http request")
		case status >= 400:
			entry.Warnw("http request")
		default:
			entry.Infow("http request")
		}
	}
}
