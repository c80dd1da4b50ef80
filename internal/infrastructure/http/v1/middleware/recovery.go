// Package middleware provides HTTP middleware components.
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"tenantgate/internal/core/apperror"
	"tenantgate/pkg/logger"
)

var panicsRecovered = promauto.NewCounter(prometheus.CounterOpts{
	Name: "tenantgate_http_panics_total",
	Help: "Handler panics recovered by the HTTP layer.",
})

// Recovery middleware recovers from panics and returns 500 error.
// Logs stack trace but never exposes internal details to client.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				panicsRecovered.Inc()
				logger.Error(c.Request.Context(), "panic recovered",
					"error", err,
					"route", c.FullPath(),
					"stack", string(debug.Stack()),
				)

				// ErrorHandler sits inside this frame and has already unwound.
				_ = c.Error(apperror.NewInternal(fmt.Errorf("panic: %v", err)))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"code":    apperror.CodeInternal,
					"message": "Internal server error",
					"details": map[string]any{"request_id": c.GetString("request_id")},
				})
			}
		}()
		c.Next()
	}
}
